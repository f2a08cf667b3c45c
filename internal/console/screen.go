package console

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/model"
)

// OpenActionID is the reserved action every screen owns. Its default
// operation renders the screen, so links between screens keep the flat
// dashboard:screen:action addressing.
const OpenActionID = "open"

// RenderFunc produces the default view of a screen.
type RenderFunc func(ctx context.Context, req *Request) (model.View, error)

// ScreenOption configures a Screen at construction.
type ScreenOption func(*Screen)

// WithTitle sets the title used by the default render and by links.
func WithTitle(title string) ScreenOption {
	return func(s *Screen) { s.title = title }
}

// WithRender sets the default render. Without one the screen renders its
// title and links to its children.
func WithRender(fn RenderFunc) ScreenOption {
	return func(s *Screen) { s.render = fn }
}

// WithActions registers actions on the screen.
func WithActions(actions ...*Action) ScreenOption {
	return func(s *Screen) {
		for _, a := range actions {
			s.addAction(a)
		}
	}
}

// WithChildren registers child screens for menu construction.
func WithChildren(children ...*Screen) ScreenOption {
	return func(s *Screen) { s.children = append(s.children, children...) }
}

// WithPermission sets the visibility check evaluated before any render or
// action of the screen.
func WithPermission(p Permission) ScreenOption {
	return func(s *Screen) { s.permission = p }
}

// Screen is a named node owning actions and an access policy.
type Screen struct {
	id         string
	title      string
	render     RenderFunc
	permission Permission
	actions    map[string]*Action
	order      []string
	children   []*Screen
	open       *Action
	errs       []error

	dashboard *Dashboard
}

// NewScreen creates a screen. Construction problems such as duplicate
// action ids are reported by NewDashboard.
func NewScreen(id string, opts ...ScreenOption) *Screen {
	s := &Screen{id: id, title: id, actions: make(map[string]*Action)}
	s.open = NewAction(OpenActionID, Operation(DefaultOperation, s.renderDefault))
	s.addAction(s.open)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Screen) addAction(a *Action) {
	if a == nil {
		s.errs = append(s.errs, fmt.Errorf("screen %q: nil action", s.id))
		return
	}
	if _, dup := s.actions[a.id]; dup {
		s.errs = append(s.errs, fmt.Errorf("screen %q: action %q registered twice", s.id, a.id))
		return
	}
	s.actions[a.id] = a
	s.order = append(s.order, a.id)
}

// ID returns the screen id.
func (s *Screen) ID() string { return s.id }

// Title returns the screen title.
func (s *Screen) Title() string { return s.title }

// Children returns the child screens. They are used for menus only;
// addressing is always flat.
func (s *Screen) Children() []*Screen { return s.children }

// Action returns the named action.
func (s *Screen) Action(id string) (*Action, bool) {
	a, ok := s.actions[id]
	return a, ok
}

// Actions returns the registered actions in registration order, starting
// with the open action.
func (s *Screen) Actions() []*Action {
	out := make([]*Action, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.actions[id])
	}
	return out
}

// Open returns the reserved open action.
func (s *Screen) Open() *Action { return s.open }

// OpenControl returns a button linking to this screen.
func (s *Screen) OpenControl(label string) (model.Control, error) {
	if label == "" {
		label = s.title
	}
	return s.open.Button(label, model.StylePrimary, DefaultOperation)
}

func (s *Screen) logger() *zap.Logger {
	if s.dashboard != nil {
		return s.dashboard.logger
	}
	return zap.NewNop()
}

// Authorize evaluates the screen's permission. It fails closed: a false
// result, an error or a panic all deny.
func (s *Screen) Authorize(ctx context.Context, req *Request) (allowed bool) {
	if s.permission == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("permission check panicked",
				zap.String("screen", s.id),
				zap.Any("panic", r),
			)
			allowed = false
		}
	}()
	ok, err := s.permission.Allow(ctx, req)
	if err != nil {
		s.logger().Warn("permission check failed",
			zap.String("screen", s.id),
			zap.Error(err),
		)
		return false
	}
	return ok
}

// Render checks the permission and then produces the default view.
func (s *Screen) Render(ctx context.Context, req *Request) model.View {
	if !s.Authorize(ctx, req) {
		return DeniedView()
	}
	return s.safeRender(ctx, req)
}

// ReRender is Render with a transient status banner. The banner exists only
// in the returned view. A failed render keeps its own error view.
func (s *Screen) ReRender(ctx context.Context, req *Request, banner model.Banner) model.View {
	if !s.Authorize(ctx, req) {
		return DeniedView()
	}
	v, ok := s.tryRender(ctx, req)
	if !ok {
		return v
	}
	return v.WithBanner(banner)
}

func (s *Screen) safeRender(ctx context.Context, req *Request) model.View {
	v, _ := s.tryRender(ctx, req)
	return v
}

func (s *Screen) tryRender(ctx context.Context, req *Request) (view model.View, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("screen render panicked",
				zap.String("screen", s.id),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			view, ok = GenericErrorView(), false
		}
	}()
	v, err := s.renderDefault(ctx, req)
	if err != nil {
		s.logger().Warn("screen render failed",
			zap.String("screen", s.id),
			zap.String("code", model.CodeOf(err)),
			zap.Error(err),
		)
		return ErrorView(err), false
	}
	return v, true
}

func (s *Screen) renderDefault(ctx context.Context, req *Request) (model.View, error) {
	if s.render != nil {
		return s.render(ctx, req)
	}
	return s.Menu(ctx, req)
}

// Menu renders the screen title with a link to every child screen the
// requester may open.
func (s *Screen) Menu(ctx context.Context, req *Request) (model.View, error) {
	v := model.View{Title: s.title}
	var links []model.Control
	for _, child := range s.children {
		if !child.Authorize(ctx, req) {
			continue
		}
		c, err := child.OpenControl("")
		if err != nil {
			return model.View{}, err
		}
		links = append(links, c)
	}
	if len(links) == 0 {
		v.Description = "Nothing here is available to you."
	}
	v.Rows = model.RowsOf(links...)
	return v, nil
}
