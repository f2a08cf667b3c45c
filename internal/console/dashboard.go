package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/model"
)

// Outcome classifies how Route answered an interaction.
type Outcome string

// Route outcomes.
const (
	OutcomeOK               Outcome = "ok"
	OutcomeHome             Outcome = "home"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeDenied           Outcome = "denied"
	OutcomeInvalidOperation Outcome = "invalid_operation"
	OutcomeError            Outcome = "error"
	OutcomePanic            Outcome = "panic"
)

// RouteResult describes one completed Route call.
type RouteResult struct {
	Dashboard string
	Screen    string
	Action    string
	Operation string
	Outcome   Outcome
	Duration  time.Duration
}

// RouteObserver is notified after every Route call.
type RouteObserver interface {
	ObserveRoute(ctx context.Context, res RouteResult)
}

// DashboardOption configures a Dashboard.
type DashboardOption func(*Dashboard)

// WithScreens registers screens besides the home screen and its
// descendants.
func WithScreens(screens ...*Screen) DashboardOption {
	return func(d *Dashboard) { d.pending = append(d.pending, screens...) }
}

// WithLogger sets the logger used for dispatch failures.
func WithLogger(logger *zap.Logger) DashboardOption {
	return func(d *Dashboard) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sets the route observer.
func WithObserver(o RouteObserver) DashboardOption {
	return func(d *Dashboard) { d.observer = o }
}

// Dashboard is the root of a screen tree. It owns exactly one home screen
// and resolves identifiers to screen actions.
type Dashboard struct {
	id       string
	home     *Screen
	screens  map[string]*Screen
	order    []string
	logger   *zap.Logger
	observer RouteObserver

	pending []*Screen
}

// NewDashboard builds a dashboard from fully formed screens. The home
// screen and its descendants are registered automatically. It fails with
// CONFIGURATION_ERROR when ids are invalid or repeat, when an action is
// registered on two screens, or when the home screen carries a permission.
func NewDashboard(id string, home *Screen, opts ...DashboardOption) (*Dashboard, error) {
	d := &Dashboard{
		id:      id,
		home:    home,
		screens: make(map[string]*Screen),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := checkSegment("dashboard", id); err != nil {
		return nil, err
	}
	if home == nil {
		return nil, model.NewConfigurationError("dashboard " + id + ": home screen is nil")
	}
	if home.permission != nil {
		return nil, model.NewConfigurationError("dashboard " + id + ": home screen must not carry a permission")
	}

	var errs []error
	seen := make(map[*Screen]bool)
	var visit func(s *Screen)
	visit = func(s *Screen) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		if err := d.register(s); err != nil {
			errs = append(errs, err)
			return
		}
		for _, child := range s.children {
			visit(child)
		}
	}
	visit(home)
	for _, s := range d.pending {
		visit(s)
	}
	d.pending = nil

	if len(errs) > 0 {
		return nil, model.NewConfigurationError(errors.Join(errs...).Error())
	}
	return d, nil
}

func (d *Dashboard) register(s *Screen) error {
	if err := checkSegment("screen", s.id); err != nil {
		return err
	}
	if _, dup := d.screens[s.id]; dup {
		return fmt.Errorf("screen %q registered twice", s.id)
	}
	if s.dashboard != nil && s.dashboard != d {
		return fmt.Errorf("screen %q already belongs to dashboard %q", s.id, s.dashboard.id)
	}
	if len(s.errs) > 0 {
		return errors.Join(s.errs...)
	}
	for _, aid := range s.order {
		a := s.actions[aid]
		if err := checkSegment("action", a.id); err != nil {
			return err
		}
		if a != s.open && a.id == OpenActionID {
			return fmt.Errorf("screen %q: action id %q is reserved", s.id, OpenActionID)
		}
		if a.screen != nil && a.screen != s {
			return fmt.Errorf("action %q is registered on screens %q and %q", a.id, a.screen.id, s.id)
		}
		if len(a.errs) > 0 {
			return errors.Join(a.errs...)
		}
		for op := range a.ops {
			if strings.ContainsAny(op, ":%") {
				return fmt.Errorf("action %q: operation %q contains a reserved character", a.id, op)
			}
		}
	}

	for _, aid := range s.order {
		s.actions[aid].screen = s
	}
	s.dashboard = d
	d.screens[s.id] = s
	d.order = append(d.order, s.id)
	return nil
}

func checkSegment(label, v string) error {
	if v == "" {
		return model.NewConfigurationError(label + " id is empty")
	}
	if strings.ContainsAny(v, ":%") {
		return model.NewConfigurationError(fmt.Sprintf("%s id %q contains a reserved character", label, v))
	}
	return nil
}

// ID returns the dashboard id.
func (d *Dashboard) ID() string { return d.id }

// Home returns the home screen.
func (d *Dashboard) Home() *Screen { return d.home }

// Screen returns the named screen.
func (d *Dashboard) Screen(id string) (*Screen, bool) {
	s, ok := d.screens[id]
	return s, ok
}

// Screens returns every registered screen in registration order.
func (d *Dashboard) Screens() []*Screen {
	out := make([]*Screen, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.screens[id])
	}
	return out
}

// Route answers an interaction with exactly one view. An interaction without
// an identifier, or with one that does not decode, opens the home screen.
// Identifiers naming another dashboard, an unknown screen or an unknown
// action yield the not-found view; a failed permission check yields the
// denial view; everything else is dispatched to the action.
func (d *Dashboard) Route(ctx context.Context, in model.Interaction, requester *model.RequestContext, caps model.CapabilitySet) model.View {
	start := time.Now()
	req := &Request{
		Interaction:  in,
		Requester:    requester,
		Capabilities: caps,
		Scratch:      NewScratch(),
	}
	res := RouteResult{Dashboard: d.id}

	view := d.route(ctx, req, &res)
	view = normalize(view, in)

	res.Duration = time.Since(start)
	if d.observer != nil {
		d.observer.ObserveRoute(ctx, res)
	}
	d.logger.Debug("interaction routed",
		zap.String("dashboard", res.Dashboard),
		zap.String("screen", res.Screen),
		zap.String("action", res.Action),
		zap.String("operation", res.Operation),
		zap.String("outcome", string(res.Outcome)),
		zap.Duration("duration", res.Duration),
	)
	return view
}

func (d *Dashboard) route(ctx context.Context, req *Request, res *RouteResult) model.View {
	raw := ""
	if req.Interaction != nil {
		raw = req.Interaction.Identifier()
	}
	if raw == "" {
		return d.renderHome(ctx, req, res)
	}

	id, err := identifier.Decode(raw)
	if err != nil {
		d.logger.Debug("undecodable identifier, rendering home",
			zap.String("custom_id", raw),
			zap.Error(err),
		)
		return d.renderHome(ctx, req, res)
	}
	req.ID = id

	// Only known names reach the result so observers see a bounded set.
	if id.Dashboard != d.id {
		res.Outcome = OutcomeNotFound
		return NotFoundView()
	}
	s, ok := d.screens[id.Screen]
	if !ok {
		res.Outcome = OutcomeNotFound
		return NotFoundView()
	}
	res.Screen = s.id
	a, ok := s.Action(id.Action)
	if !ok {
		res.Outcome = OutcomeNotFound
		return NotFoundView()
	}
	res.Action = a.id
	if _, known := a.ops[id.Operation]; known {
		res.Operation = id.Operation
	}
	if !s.Authorize(ctx, req) {
		res.Outcome = OutcomeDenied
		return DeniedView()
	}

	view, outcome := a.execute(ctx, req)
	res.Outcome = outcome
	return view
}

func (d *Dashboard) renderHome(ctx context.Context, req *Request, res *RouteResult) model.View {
	req.ID = d.home.open.ID(DefaultOperation)
	res.Screen, res.Action = d.home.id, OpenActionID
	res.Outcome = OutcomeHome
	v, ok := d.home.tryRender(ctx, req)
	if !ok {
		res.Outcome = OutcomeError
	}
	return v
}

// normalize fills in the view kind when a handler left it empty: commands
// post a new message, component and form interactions update in place.
func normalize(v model.View, in model.Interaction) model.View {
	if v.Kind != "" {
		return v
	}
	if in == nil || in.Kind() == model.KindCommand {
		v.Kind = model.ViewMessage
	} else {
		v.Kind = model.ViewUpdate
	}
	return v
}
