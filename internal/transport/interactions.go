package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/internal/dedupe"
	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/model"
)

// InteractionBody is the JSON body of POST /interactions.
type InteractionBody struct {
	// ID is the platform's interaction id, used to reject redeliveries.
	ID   string `json:"id"`
	Type string `json:"type"`
	// Dashboard selects the dashboard for identifier-less interactions.
	Dashboard string            `json:"dashboard,omitempty"`
	CustomID  string            `json:"custom_id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Values    []string          `json:"values,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Interaction narrows the body to its interaction variant.
func (b InteractionBody) Interaction() (model.Interaction, error) {
	switch model.InteractionKind(b.Type) {
	case model.KindCommand:
		return model.Command{Name: b.Name}, nil
	case model.KindComponent:
		return model.Component{CustomID: b.CustomID, Values: b.Values}, nil
	case model.KindFormSubmit:
		return model.FormSubmit{CustomID: b.CustomID, Fields: b.Fields}, nil
	default:
		return nil, model.NewBadRequestError(fmt.Sprintf("unknown interaction type %q", b.Type))
	}
}

// Dashboards is the set of dashboards served by the interaction endpoint.
type Dashboards struct {
	byID        map[string]*console.Dashboard
	defaultDash string
}

// NewDashboards indexes dashboards by id. The first one is the default.
func NewDashboards(dashboards ...*console.Dashboard) (*Dashboards, error) {
	if len(dashboards) == 0 {
		return nil, model.NewConfigurationError("at least one dashboard is required")
	}
	d := &Dashboards{byID: make(map[string]*console.Dashboard, len(dashboards))}
	for _, dash := range dashboards {
		if _, dup := d.byID[dash.ID()]; dup {
			return nil, model.NewConfigurationError(fmt.Sprintf("dashboard %q registered twice", dash.ID()))
		}
		d.byID[dash.ID()] = dash
	}
	d.defaultDash = dashboards[0].ID()
	return d, nil
}

// Select picks the dashboard for an interaction: the one named by the
// identifier's dashboard segment, then the body's dashboard field, then the
// default. An identifier naming an unknown dashboard is routed to the
// default, which answers it with the not-found view.
func (d *Dashboards) Select(in model.Interaction, named string) (*console.Dashboard, error) {
	if raw := in.Identifier(); raw != "" {
		if id, err := identifier.Decode(raw); err == nil {
			if dash, ok := d.byID[id.Dashboard]; ok {
				return dash, nil
			}
		}
		return d.byID[d.defaultDash], nil
	}
	if named != "" {
		dash, ok := d.byID[named]
		if !ok {
			return nil, model.NewNotFoundError(fmt.Sprintf("dashboard %q not found", named))
		}
		return dash, nil
	}
	return d.byID[d.defaultDash], nil
}

// InteractionHandler serves POST /interactions.
type InteractionHandler struct {
	Dashboards *Dashboards
	// Guard rejects redelivered interaction ids. Nil disables the check.
	Guard dedupe.Guard
	// OnDuplicate is called for every rejected redelivery.
	OnDuplicate  func()
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// ServeHTTP decodes the interaction, claims its id and routes it. The
// response is always either an error envelope or exactly one view.
func (h *InteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := observability.RequestLogger(ctx, logger)

	rctx := model.RequestContextFrom(ctx)
	if rctx == nil {
		WriteError(w, model.NewUnauthorizedError("missing request context"))
		return
	}

	body := r.Body
	if h.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	}
	var in InteractionBody
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, model.NewBadRequestError("request body too large"))
			return
		}
		if errors.Is(err, io.EOF) {
			WriteError(w, model.NewBadRequestError("empty request body"))
			return
		}
		WriteError(w, model.NewBadRequestError("invalid JSON body"))
		return
	}
	if in.ID == "" {
		WriteError(w, model.NewBadRequestError("interaction id is required"))
		return
	}
	interaction, err := in.Interaction()
	if err != nil {
		WriteError(w, err)
		return
	}
	dash, err := h.Dashboards.Select(interaction, in.Dashboard)
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.Guard != nil {
		first, err := h.Guard.Claim(ctx, in.ID)
		switch {
		case err != nil:
			// Fail open.
			log.Warn("dedupe claim failed, routing anyway",
				zap.String("interaction_id", in.ID),
				zap.Error(err),
			)
		case !first:
			if h.OnDuplicate != nil {
				h.OnDuplicate()
			}
			log.Info("redelivered interaction rejected", zap.String("interaction_id", in.ID))
			WriteError(w, model.NewConflictError("interaction already handled"))
			return
		}
	}

	if ce := log.Check(zap.DebugLevel, "interaction received"); ce != nil {
		ce.Write(
			zap.String("interaction_id", in.ID),
			zap.String("type", in.Type),
			zap.String("custom_id", in.CustomID),
			zap.Any("fields", observability.RedactFields(in.Fields)),
		)
	}

	ctx, span := observability.StartSpan(ctx, "console.route",
		observability.AttrInteractionType.String(in.Type),
		observability.AttrTenantID.String(rctx.TenantID),
		observability.AttrSubjectID.String(rctx.SubjectID),
	)
	defer span.End()

	view := dash.Route(ctx, interaction, rctx, CapabilitiesFrom(ctx))
	WriteJSON(w, http.StatusOK, view)
}
