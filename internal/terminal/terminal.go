// Package terminal renders console views in a terminal and feeds key
// presses back into a dashboard as interactions.
package terminal

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/pitabwire/govconsole/model"
)

// Router is the part of a dashboard the terminal drives.
type Router interface {
	Route(ctx context.Context, in model.Interaction, rctx *model.RequestContext, caps model.CapabilitySet) model.View
}

// Model is the bubbletea model for one operator session.
type Model struct {
	ctx    context.Context
	router Router
	rctx   *model.RequestContext
	caps   model.CapabilitySet

	view     model.View
	controls []model.Control
	cursor   int

	// choosing is set while the options of the focused select are listed.
	choosing  bool
	optCursor int
	picked    map[string]bool

	form       *huh.Form
	formID     string
	formValues map[string]*string
}

// New opens the dashboard's home screen with command and returns the model.
func New(ctx context.Context, router Router, rctx *model.RequestContext, caps model.CapabilitySet, command string) Model {
	m := Model{ctx: ctx, router: router, rctx: rctx, caps: caps}
	return m.route(model.Command{Name: command})
}

// Run starts the terminal program and blocks until the operator quits.
func Run(ctx context.Context, router Router, rctx *model.RequestContext, caps model.CapabilitySet, command string) error {
	p := tea.NewProgram(New(ctx, router, rctx, caps, command), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Current returns the view on screen, not counting an open form.
func (m Model) Current() model.View { return m.view }

func (m Model) Init() tea.Cmd {
	if m.form != nil {
		return m.form.Init()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.form != nil {
		if key, ok := msg.(tea.KeyMsg); ok && key.String() == "ctrl+c" {
			return m, tea.Quit
		}
		formModel, cmd := m.form.Update(msg)
		if f, ok := formModel.(*huh.Form); ok {
			m.form = f
		}
		switch m.form.State {
		case huh.StateCompleted:
			return m.submitForm(), nil
		case huh.StateAborted:
			m.form = nil
			return m, nil
		}
		return m, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	if m.choosing {
		return m.updateChoice(key), nil
	}

	switch key.String() {
	case "up", "k", "shift+tab", "left", "h":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab", "right", "l":
		if m.cursor < len(m.controls)-1 {
			m.cursor++
		}
	case "enter", " ", "space":
		var cmd tea.Cmd
		m, cmd = m.activate()
		return m, cmd
	}
	return m, nil
}

func (m Model) updateChoice(key tea.KeyMsg) Model {
	c := m.controls[m.cursor]
	switch key.String() {
	case "esc":
		m.choosing = false
	case "up", "k":
		if m.optCursor > 0 {
			m.optCursor--
		}
	case "down", "j":
		if m.optCursor < len(c.Options)-1 {
			m.optCursor++
		}
	case " ", "space", "x":
		if c.MaxValues > 1 {
			v := c.Options[m.optCursor].Value
			if m.picked[v] {
				delete(m.picked, v)
			} else if len(m.picked) < c.MaxValues {
				m.picked[v] = true
			}
		}
	case "enter":
		values := m.pickedValues(c)
		if len(values) < c.MinValues {
			return m
		}
		m.choosing = false
		return m.route(model.Component{CustomID: c.CustomID, Values: values})
	}
	return m
}

// pickedValues returns the toggled options in display order, or the option
// under the cursor when nothing is toggled.
func (m Model) pickedValues(c model.Control) []string {
	var values []string
	for _, o := range c.Options {
		if m.picked[o.Value] {
			values = append(values, o.Value)
		}
	}
	if len(values) == 0 && len(c.Options) > 0 {
		values = []string{c.Options[m.optCursor].Value}
	}
	return values
}

func (m Model) activate() (Model, tea.Cmd) {
	if len(m.controls) == 0 {
		return m, nil
	}
	c := m.controls[m.cursor]
	if c.Disabled {
		return m, nil
	}
	if c.Type == model.ControlSelect {
		m.choosing = true
		m.optCursor = 0
		m.picked = make(map[string]bool)
		return m, nil
	}
	m = m.route(model.Component{CustomID: c.CustomID})
	if m.form != nil {
		return m, m.form.Init()
	}
	return m, nil
}

func (m Model) submitForm() Model {
	fields := make(map[string]string, len(m.formValues))
	for name, v := range m.formValues {
		fields[name] = strings.TrimSpace(*v)
	}
	id := m.formID
	m.form = nil
	return m.route(model.FormSubmit{CustomID: id, Fields: fields})
}

// route hands in to the dashboard. Form views open a form on top of the
// current view, anything else replaces it.
func (m Model) route(in model.Interaction) Model {
	v := m.router.Route(m.ctx, in, m.rctx, m.caps)
	if v.Kind == model.ViewForm && v.Form != nil {
		m.form, m.formValues = buildForm(*v.Form)
		m.formID = v.Form.CustomID
		return m
	}
	m.view = v
	m.controls = flatten(v.Rows)
	m.cursor = 0
	m.choosing = false
	return m
}

func flatten(rows []model.Row) []model.Control {
	var out []model.Control
	for _, r := range rows {
		out = append(out, r.Controls...)
	}
	return out
}

func buildForm(desc model.FormDescriptor) (*huh.Form, map[string]*string) {
	values := make(map[string]*string, len(desc.Inputs))
	fields := make([]huh.Field, 0, len(desc.Inputs))
	for _, in := range desc.Inputs {
		value := in.Value
		values[in.Name] = &value
		validate := func(string) error { return nil }
		if in.Required {
			label := in.Label
			validate = func(s string) error {
				if strings.TrimSpace(s) == "" {
					return fmt.Errorf("%s is required", label)
				}
				return nil
			}
		}
		if in.Style == model.InputParagraph {
			t := huh.NewText().Title(in.Label).Key(in.Name).Placeholder(in.Placeholder).Validate(validate).Value(&value)
			if in.MaxLength > 0 {
				t = t.CharLimit(in.MaxLength)
			}
			fields = append(fields, t)
			continue
		}
		i := huh.NewInput().Title(in.Label).Key(in.Name).Placeholder(in.Placeholder).Validate(validate).Value(&value)
		if in.MaxLength > 0 {
			i = i.CharLimit(in.MaxLength)
		}
		fields = append(fields, i)
	}
	return huh.NewForm(huh.NewGroup(fields...).Title(desc.Title)), values
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	fieldStyle   = lipgloss.NewStyle().Bold(true)
	focusStyle   = lipgloss.NewStyle().Reverse(true)
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1)
	bannerStyles = map[model.BannerStyle]lipgloss.Style{
		model.BannerSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		model.BannerError:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		model.BannerNotice:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
	buttonStyles = map[model.ButtonStyle]lipgloss.Style{
		model.StylePrimary:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		model.StyleSecondary: lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		model.StyleSuccess:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		model.StyleDanger:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func (m Model) View() string {
	if m.form != nil {
		return frameStyle.Render(m.form.View())
	}

	var b strings.Builder
	if m.view.Banner != nil {
		b.WriteString(bannerStyles[m.view.Banner.Style].Render(m.view.Banner.Message))
		b.WriteString("\n\n")
	}
	b.WriteString(titleStyle.Render(m.view.Title))
	b.WriteString("\n")
	if m.view.Description != "" {
		b.WriteString(m.view.Description)
		b.WriteString("\n")
	}
	for _, f := range m.view.Fields {
		b.WriteString("\n")
		b.WriteString(fieldStyle.Render(f.Name))
		b.WriteString("\n  ")
		b.WriteString(f.Value)
	}
	if len(m.view.Fields) > 0 {
		b.WriteString("\n")
	}

	i := 0
	for _, row := range m.view.Rows {
		rendered := make([]string, 0, len(row.Controls))
		for _, c := range row.Controls {
			rendered = append(rendered, m.renderControl(c, i == m.cursor))
			i++
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	}
	if m.choosing {
		b.WriteString("\n")
		b.WriteString(m.renderOptions(m.controls[m.cursor]))
	}

	help := "↑/↓ move • enter select • q quit"
	if m.choosing {
		help = "↑/↓ move • space toggle • enter confirm • esc back"
	}
	return frameStyle.Render(b.String()) + "\n" + mutedStyle.Render(help)
}

func (m Model) renderControl(c model.Control, focused bool) string {
	label := c.Label
	style := buttonStyles[c.Style]
	if c.Type == model.ControlSelect {
		label = c.Placeholder + " ▾"
		style = buttonStyles[model.StyleSecondary]
	}
	text := "[" + label + "]"
	if c.Disabled {
		style = mutedStyle
	}
	if focused {
		style = style.Inherit(focusStyle)
	}
	return style.Render(text) + " "
}

func (m Model) renderOptions(c model.Control) string {
	var b strings.Builder
	for i, o := range c.Options {
		marker := "  "
		if i == m.optCursor {
			marker = "> "
		}
		check := ""
		if c.MaxValues > 1 {
			check = "[ ] "
			if m.picked[o.Value] {
				check = "[x] "
			}
		}
		line := marker + check + o.Label
		if o.Description != "" {
			line += " " + mutedStyle.Render(o.Description)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
