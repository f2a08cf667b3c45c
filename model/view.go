package model

// MaxControlsPerRow is the number of controls the chat client renders on a
// single row.
const MaxControlsPerRow = 5

// ViewKind tells the render collaborator how to present a view.
type ViewKind string

// View kinds.
const (
	// ViewMessage posts a new message.
	ViewMessage ViewKind = "message"
	// ViewUpdate replaces the message the activated control belongs to.
	ViewUpdate ViewKind = "update"
	// ViewForm opens a form and expects a FormSubmit in return.
	ViewForm ViewKind = "form"
)

// BannerStyle is the visual tone of a status banner.
type BannerStyle string

// Banner styles.
const (
	BannerSuccess BannerStyle = "success"
	BannerError   BannerStyle = "error"
	BannerNotice  BannerStyle = "notice"
)

// ControlType distinguishes buttons from select menus.
type ControlType string

// Control types.
const (
	ControlButton ControlType = "button"
	ControlSelect ControlType = "select"
)

// ButtonStyle is the visual tone of a button.
type ButtonStyle string

// Button styles.
const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StyleSuccess   ButtonStyle = "success"
	StyleDanger    ButtonStyle = "danger"
)

// View is the render payload handed to the chat client for one interaction.
type View struct {
	Kind        ViewKind        `json:"kind"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Banner      *Banner         `json:"banner,omitempty"`
	Fields      []Field         `json:"fields,omitempty"`
	Rows        []Row           `json:"rows,omitempty"`
	Form        *FormDescriptor `json:"form,omitempty"`
}

// Banner is a transient status line shown above a view. It exists only in
// the response it was attached to.
type Banner struct {
	Style   BannerStyle `json:"style"`
	Message string      `json:"message"`
}

// SuccessBanner returns a success banner.
func SuccessBanner(msg string) Banner {
	return Banner{Style: BannerSuccess, Message: msg}
}

// ErrorBanner returns an error banner.
func ErrorBanner(msg string) Banner {
	return Banner{Style: BannerError, Message: msg}
}

// NoticeBanner returns a notice banner.
func NoticeBanner(msg string) Banner {
	return Banner{Style: BannerNotice, Message: msg}
}

// Field is a labelled line of view content.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Row is a horizontal group of controls.
type Row struct {
	Controls []Control `json:"controls"`
}

// Control is a clickable element. CustomID re-enters the console when the
// control is activated.
type Control struct {
	Type        ControlType `json:"type"`
	Label       string      `json:"label,omitempty"`
	Style       ButtonStyle `json:"style,omitempty"`
	CustomID    string      `json:"custom_id"`
	Placeholder string      `json:"placeholder,omitempty"`
	Options     []Option    `json:"options,omitempty"`
	MinValues   int         `json:"min_values,omitempty"`
	MaxValues   int         `json:"max_values,omitempty"`
	Disabled    bool        `json:"disabled,omitempty"`
}

// Option is one choice of a select control.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// FormDescriptor describes a form the client shows before submitting a
// FormSubmit interaction carrying CustomID.
type FormDescriptor struct {
	CustomID string  `json:"custom_id"`
	Title    string  `json:"title"`
	Inputs   []Input `json:"inputs"`
}

// InputStyle is the shape of a text input.
type InputStyle string

// Input styles.
const (
	InputShort     InputStyle = "short"
	InputParagraph InputStyle = "paragraph"
)

// Input is a single text field of a form.
type Input struct {
	Name        string     `json:"name"`
	Label       string     `json:"label"`
	Style       InputStyle `json:"style"`
	Placeholder string     `json:"placeholder,omitempty"`
	Required    bool       `json:"required,omitempty"`
	MaxLength   int        `json:"max_length,omitempty"`
	Value       string     `json:"value,omitempty"`
}

// RowsOf packs controls into rows of at most MaxControlsPerRow. Select menus
// always occupy a row of their own.
func RowsOf(controls ...Control) []Row {
	var rows []Row
	var current []Control
	flush := func() {
		if len(current) > 0 {
			rows = append(rows, Row{Controls: current})
			current = nil
		}
	}
	for _, c := range controls {
		if c.Type == ControlSelect {
			flush()
			rows = append(rows, Row{Controls: []Control{c}})
			continue
		}
		current = append(current, c)
		if len(current) == MaxControlsPerRow {
			flush()
		}
	}
	flush()
	return rows
}

// WithBanner returns a copy of v carrying the given banner.
func (v View) WithBanner(b Banner) View {
	v.Banner = &b
	return v
}
