package console

import (
	"errors"

	"github.com/pitabwire/govconsole/model"
)

// User-visible messages of the fallback views. None of them says why a
// request failed beyond the category.
const (
	MsgInvalidRequest   = "This control is no longer valid. Open the dashboard again."
	MsgNotFound         = "That item could not be found."
	MsgDenied           = "You do not have access to this."
	MsgInvalidOperation = "This action is not supported."
	MsgGenericError     = "Something went wrong. Please try again."
)

func fallbackView(title string, banner model.Banner) model.View {
	return model.View{
		Kind:   model.ViewMessage,
		Title:  title,
		Banner: &banner,
	}
}

// InvalidRequestView is shown for identifiers that cannot be decoded or
// encoded.
func InvalidRequestView() model.View {
	return fallbackView("Invalid request", model.ErrorBanner(MsgInvalidRequest))
}

// NotFoundView is shown when a dashboard, screen, action or entity is
// missing.
func NotFoundView() model.View {
	return fallbackView("Not found", model.ErrorBanner(MsgNotFound))
}

// DeniedView is shown when a permission check fails for any reason.
func DeniedView() model.View {
	return fallbackView("Access denied", model.ErrorBanner(MsgDenied))
}

// InvalidOperationView is shown for operations an action does not support.
func InvalidOperationView() model.View {
	return fallbackView("Unsupported action", model.ErrorBanner(MsgInvalidOperation))
}

// GenericErrorView is shown for defects and unexpected failures.
func GenericErrorView() model.View {
	return fallbackView("Error", model.ErrorBanner(MsgGenericError))
}

// ErrorView converts an error raised below an action into the view the
// requester sees. Domain and conflict errors carry their own message;
// everything else maps onto a fixed view by code.
func ErrorView(err error) model.View {
	switch model.CodeOf(err) {
	case model.ErrMalformedIdentifier, model.ErrIdentifierTooLong, model.ErrEncoding, model.ErrBadRequest:
		return InvalidRequestView()
	case model.ErrNotFound:
		return NotFoundView()
	case model.ErrForbidden, model.ErrUnauthorized:
		return DeniedView()
	case model.ErrInvalidOperation:
		return InvalidOperationView()
	case model.ErrDomain, model.ErrConflict:
		var ee *model.ErrorEnvelope
		if errors.As(err, &ee) && ee.Message != "" {
			return fallbackView("Could not complete the request", model.ErrorBanner(ee.Message))
		}
		return GenericErrorView()
	default:
		return GenericErrorView()
	}
}
