package console

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/model"
)

// DefaultOperation is the operation addressed by an identifier without an
// operation segment.
const DefaultOperation = ""

// Handler handles an operation for any interaction variant.
type Handler func(ctx context.Context, req *Request) (model.View, error)

// ComponentHandler handles an operation triggered by a button or select.
type ComponentHandler func(ctx context.Context, req *Request, c model.Component) (model.View, error)

// FormHandler handles an operation triggered by a form submission.
type FormHandler func(ctx context.Context, req *Request, f model.FormSubmit) (model.View, error)

// ActionOption configures an Action at construction.
type ActionOption func(*Action)

// Operation registers h for op, accepting every interaction variant.
func Operation(op string, h Handler) ActionOption {
	return func(a *Action) {
		a.register(op, h)
	}
}

// ComponentOperation registers h for op. Other interaction variants are
// answered with the invalid-operation view.
func ComponentOperation(op string, h ComponentHandler) ActionOption {
	return func(a *Action) {
		a.register(op, func(ctx context.Context, req *Request) (model.View, error) {
			c, ok := req.Interaction.(model.Component)
			if !ok {
				return model.View{}, model.NewInvalidOperationError(
					fmt.Sprintf("operation %q requires a component interaction", op))
			}
			return h(ctx, req, c)
		})
	}
}

// FormOperation registers h for op. Other interaction variants are answered
// with the invalid-operation view.
func FormOperation(op string, h FormHandler) ActionOption {
	return func(a *Action) {
		a.register(op, func(ctx context.Context, req *Request) (model.View, error) {
			f, ok := req.Interaction.(model.FormSubmit)
			if !ok {
				return model.View{}, model.NewInvalidOperationError(
					fmt.Sprintf("operation %q requires a form submission", op))
			}
			return h(ctx, req, f)
		})
	}
}

// SubActions groups child actions under a for bookkeeping. Dispatch never
// descends into them: a screen that wants them addressable registers them
// itself.
func SubActions(children ...*Action) ActionOption {
	return func(a *Action) {
		a.children = append(a.children, children...)
	}
}

// Action is a named handler under a screen that dispatches on the operation
// segment of the identifier.
type Action struct {
	id       string
	ops      map[string]Handler
	children []*Action
	errs     []error

	screen *Screen
}

// NewAction creates an action with the given operations.
func NewAction(id string, opts ...ActionOption) *Action {
	a := &Action{id: id, ops: make(map[string]Handler)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Action) register(op string, h Handler) {
	if _, dup := a.ops[op]; dup {
		a.errs = append(a.errs, fmt.Errorf("action %q: operation %q registered twice", a.id, op))
		return
	}
	a.ops[op] = h
}

// Name returns the action id.
func (a *Action) Name() string { return a.id }

// Screen returns the owning screen, or nil before the action is bound.
func (a *Action) Screen() *Screen { return a.screen }

// Operations returns the registered operation ids, sorted.
func (a *Action) Operations() []string {
	out := make([]string, 0, len(a.ops))
	for op := range a.ops {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// SubActions returns the grouped child actions.
func (a *Action) SubActions() []*Action { return a.children }

func (a *Action) bound() bool {
	return a.screen != nil && a.screen.dashboard != nil
}

func (a *Action) logger() *zap.Logger {
	if a.bound() {
		return a.screen.dashboard.logger
	}
	return zap.NewNop()
}

// Execute dispatches req to the operation named by req.ID. Unknown
// operations, handler errors and panics are turned into views; exactly one
// view is returned.
func (a *Action) Execute(ctx context.Context, req *Request) model.View {
	v, _ := a.execute(ctx, req)
	return v
}

func (a *Action) execute(ctx context.Context, req *Request) (view model.View, outcome Outcome) {
	if req.Scratch == nil {
		req.Scratch = NewScratch()
	}
	log := a.logger().With(
		zap.String("action", a.id),
		zap.String("operation", req.ID.Operation),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("action handler panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			view, outcome = GenericErrorView(), OutcomePanic
		}
	}()

	h, ok := a.ops[req.ID.Operation]
	if !ok {
		log.Warn("unsupported operation")
		return InvalidOperationView(), OutcomeInvalidOperation
	}

	v, err := h(ctx, req)
	if err != nil {
		code := model.CodeOf(err)
		log.Warn("action handler failed", zap.String("code", code), zap.Error(err))
		if code == model.ErrInvalidOperation {
			return ErrorView(err), OutcomeInvalidOperation
		}
		return ErrorView(err), OutcomeError
	}
	return v, OutcomeOK
}

// ID returns the identifier that re-enters this action with op and args.
// Before the action is bound the dashboard and screen segments are empty.
func (a *Action) ID(op string, args ...identifier.Arg) identifier.ID {
	id := identifier.ID{Action: a.id, Operation: op}
	if a.screen != nil {
		id.Screen = a.screen.id
		if a.screen.dashboard != nil {
			id.Dashboard = a.screen.dashboard.id
		}
	}
	for _, arg := range args {
		id = id.With(arg.Name, arg.Value)
	}
	return id
}

// CustomID encodes ID(op, args...). It fails with CONFIGURATION_ERROR before
// the action is bound to a dashboard.
func (a *Action) CustomID(op string, args ...identifier.Arg) (string, error) {
	if !a.bound() {
		return "", model.NewConfigurationError(fmt.Sprintf("action %q is not bound to a dashboard", a.id))
	}
	return identifier.Encode(a.ID(op, args...))
}

// Button builds a button that re-enters this action.
func (a *Action) Button(label string, style model.ButtonStyle, op string, args ...identifier.Arg) (model.Control, error) {
	customID, err := a.CustomID(op, args...)
	if err != nil {
		return model.Control{}, err
	}
	return model.Control{
		Type:     model.ControlButton,
		Label:    label,
		Style:    style,
		CustomID: customID,
	}, nil
}

// Select builds a single choice select menu that re-enters this action with
// the chosen value in the component's values.
func (a *Action) Select(placeholder, op string, options []model.Option, args ...identifier.Arg) (model.Control, error) {
	customID, err := a.CustomID(op, args...)
	if err != nil {
		return model.Control{}, err
	}
	return model.Control{
		Type:        model.ControlSelect,
		Placeholder: placeholder,
		CustomID:    customID,
		Options:     options,
		MinValues:   1,
		MaxValues:   1,
		Disabled:    len(options) == 0,
	}, nil
}

// Arg is shorthand for identifier.Arg{Name: name, Value: value}.
func Arg(name, value string) identifier.Arg {
	return identifier.Arg{Name: name, Value: value}
}
