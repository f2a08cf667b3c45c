package model

// InteractionKind names the variant of an inbound interaction.
type InteractionKind string

// Interaction kinds.
const (
	KindCommand    InteractionKind = "command"
	KindComponent  InteractionKind = "component"
	KindFormSubmit InteractionKind = "form_submit"
)

// Interaction is an inbound event from the chat client. The set of variants
// is closed: Command, Component and FormSubmit. The transport decides the
// variant once while decoding; handlers receive the narrowed value.
type Interaction interface {
	Kind() InteractionKind
	// Identifier returns the custom id carried by the interaction, or ""
	// when the interaction was not produced by one of our controls.
	Identifier() string
	interaction()
}

// Command is the slash command that opens a dashboard. It never carries an
// identifier.
type Command struct {
	Name string
}

// Kind implements Interaction.
func (Command) Kind() InteractionKind { return KindCommand }

// Identifier implements Interaction.
func (Command) Identifier() string { return "" }

func (Command) interaction() {}

// Component is the activation of a button or a select menu.
type Component struct {
	CustomID string
	Values   []string
}

// Kind implements Interaction.
func (Component) Kind() InteractionKind { return KindComponent }

// Identifier implements Interaction.
func (c Component) Identifier() string { return c.CustomID }

func (Component) interaction() {}

// FirstValue returns the first selected value, if any.
func (c Component) FirstValue() (string, bool) {
	if len(c.Values) == 0 {
		return "", false
	}
	return c.Values[0], true
}

// FormSubmit is the submission of a form view.
type FormSubmit struct {
	CustomID string
	Fields   map[string]string
}

// Kind implements Interaction.
func (FormSubmit) Kind() InteractionKind { return KindFormSubmit }

// Identifier implements Interaction.
func (f FormSubmit) Identifier() string { return f.CustomID }

func (FormSubmit) interaction() {}

// Field returns the submitted value of the named input ("" when absent).
func (f FormSubmit) Field(name string) string {
	if f.Fields == nil {
		return ""
	}
	return f.Fields[name]
}
