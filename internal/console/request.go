// Package console implements the screen and action tree of a chat dashboard.
//
// A Dashboard owns one home Screen and a flat table of screens; every Screen
// owns a flat table of Actions; every Action dispatches on the operation
// segment of the decoded identifier. Interactions enter through
// Dashboard.Route and always leave as exactly one model.View.
package console

import (
	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/model"
)

// Request is one routed interaction as seen by permissions and handlers.
type Request struct {
	// ID is the decoded identifier that addressed the action. For the home
	// fallback it addresses the home screen's open action.
	ID identifier.ID

	// Interaction is the narrowed inbound event.
	Interaction model.Interaction

	// Requester is the authenticated operator; nil when the caller did not
	// attach one.
	Requester *model.RequestContext

	// Capabilities granted to the requester.
	Capabilities model.CapabilitySet

	// Scratch carries values between handler steps of this request only.
	Scratch *Scratch
}

// Component returns the interaction as a component activation.
func (r *Request) Component() (model.Component, bool) {
	c, ok := r.Interaction.(model.Component)
	return c, ok
}

// FormSubmit returns the interaction as a form submission.
func (r *Request) FormSubmit() (model.FormSubmit, bool) {
	f, ok := r.Interaction.(model.FormSubmit)
	return f, ok
}

// Arg returns the named argument of the addressing identifier.
func (r *Request) Arg(name string) (string, bool) {
	return r.ID.Arg(name)
}

// SubjectID returns the requester's subject id or "".
func (r *Request) SubjectID() string {
	if r.Requester == nil {
		return ""
	}
	return r.Requester.SubjectID
}
