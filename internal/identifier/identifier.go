// Package identifier encodes and decodes the colon-delimited custom ids that
// address a dashboard, screen, action and operation, optionally followed by
// name/value argument pairs:
//
//	dashboard:screen:action[:operation[:name:value]*]
//
// Structural segments may not contain the delimiter or the escape
// character. Argument values are percent-escaped so any string can travel
// in an identifier.
package identifier

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pitabwire/govconsole/model"
)

// Delimiter separates identifier segments.
const Delimiter = ":"

// MaxLength is the longest custom id the chat transport accepts, in
// characters.
const MaxLength = 100

var valueEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Arg is one argument pair carried by an identifier.
type Arg struct {
	Name  string
	Value string
}

// ID is a decoded identifier. Argument order is preserved and a name
// appears at most once.
type ID struct {
	Dashboard string
	Screen    string
	Action    string
	Operation string
	Args      []Arg
}

// Encode renders id as a custom id string. It fails with ENCODING_ERROR when
// a structural segment is empty or contains a reserved character, or when an
// argument name repeats, and with IDENTIFIER_TOO_LONG when the result would
// exceed MaxLength. It never truncates.
func Encode(id ID) (string, error) {
	raw, err := build(id)
	if err != nil {
		return "", err
	}
	if n := utf8.RuneCountInString(raw); n > MaxLength {
		return "", model.NewIdentifierTooLongError(n, MaxLength)
	}
	return raw, nil
}

// Remaining returns the number of characters id can still grow by before it
// reaches MaxLength. A negative result means id is already too long.
func Remaining(id ID) (int, error) {
	raw, err := build(id)
	if err != nil {
		return 0, err
	}
	return MaxLength - utf8.RuneCountInString(raw), nil
}

// Fits reports whether adding the argument pair to id keeps it within
// MaxLength.
func Fits(id ID, name, value string) bool {
	raw, err := build(id.With(name, value))
	if err != nil {
		return false
	}
	return utf8.RuneCountInString(raw) <= MaxLength
}

func build(id ID) (string, error) {
	for _, seg := range []struct{ label, value string }{
		{"dashboard", id.Dashboard},
		{"screen", id.Screen},
		{"action", id.Action},
	} {
		if seg.value == "" {
			return "", model.NewEncodingError(seg.label + " id is empty")
		}
		if err := checkStructural(seg.label, seg.value); err != nil {
			return "", err
		}
	}
	if err := checkStructural("operation", id.Operation); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(id.Dashboard)
	b.WriteString(Delimiter)
	b.WriteString(id.Screen)
	b.WriteString(Delimiter)
	b.WriteString(id.Action)

	if id.Operation == "" && len(id.Args) == 0 {
		return b.String(), nil
	}
	b.WriteString(Delimiter)
	b.WriteString(id.Operation)

	seen := make(map[string]struct{}, len(id.Args))
	for _, a := range id.Args {
		if a.Name == "" {
			return "", model.NewEncodingError("argument name is empty")
		}
		if err := checkStructural("argument name", a.Name); err != nil {
			return "", err
		}
		if _, dup := seen[a.Name]; dup {
			return "", model.NewEncodingError(fmt.Sprintf("argument %q appears twice", a.Name))
		}
		seen[a.Name] = struct{}{}
		if !utf8.ValidString(a.Value) {
			return "", model.NewEncodingError(fmt.Sprintf("argument %q value is not valid UTF-8", a.Name))
		}
		b.WriteString(Delimiter)
		b.WriteString(a.Name)
		b.WriteString(Delimiter)
		b.WriteString(valueEscaper.Replace(a.Value))
	}
	return b.String(), nil
}

func checkStructural(label, s string) error {
	if strings.ContainsAny(s, ":%") {
		return model.NewEncodingError(fmt.Sprintf("%s %q contains a reserved character", label, s))
	}
	if !utf8.ValidString(s) {
		return model.NewEncodingError(label + " is not valid UTF-8")
	}
	return nil
}

// Decode parses a custom id. It fails with MALFORMED_IDENTIFIER when fewer
// than three segments are present, a dashboard, screen or action segment is
// empty, argument segments are unpaired, an argument name repeats, or a
// value carries an invalid escape. Input that is not valid UTF-8 is
// malformed too.
func Decode(raw string) (ID, error) {
	if !utf8.ValidString(raw) {
		return ID{}, model.NewMalformedIdentifierError("identifier is not valid UTF-8")
	}
	parts := strings.Split(raw, Delimiter)
	if len(parts) < 3 {
		return ID{}, model.NewMalformedIdentifierError(
			fmt.Sprintf("identifier has %d segments, want at least 3", len(parts)))
	}
	for i, label := range []string{"dashboard", "screen", "action"} {
		if parts[i] == "" {
			return ID{}, model.NewMalformedIdentifierError(label + " segment is empty")
		}
		if strings.Contains(parts[i], "%") {
			return ID{}, model.NewMalformedIdentifierError(label + " segment contains an escape")
		}
	}

	id := ID{Dashboard: parts[0], Screen: parts[1], Action: parts[2]}
	if len(parts) == 3 {
		return id, nil
	}
	id.Operation = parts[3]
	if strings.Contains(id.Operation, "%") {
		return ID{}, model.NewMalformedIdentifierError("operation segment contains an escape")
	}

	rest := parts[4:]
	if len(rest)%2 != 0 {
		return ID{}, model.NewMalformedIdentifierError("trailing argument segment is unpaired")
	}
	if len(rest) > 0 {
		id.Args = make([]Arg, 0, len(rest)/2)
	}
	seen := make(map[string]struct{}, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		name := rest[i]
		if name == "" || strings.Contains(name, "%") {
			return ID{}, model.NewMalformedIdentifierError(fmt.Sprintf("invalid argument name %q", name))
		}
		if _, dup := seen[name]; dup {
			return ID{}, model.NewMalformedIdentifierError(fmt.Sprintf("argument %q appears twice", name))
		}
		seen[name] = struct{}{}
		value, err := unescape(rest[i+1])
		if err != nil {
			return ID{}, err
		}
		id.Args = append(id.Args, Arg{Name: name, Value: value})
	}
	return id, nil
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+3 > len(s) {
			return "", model.NewMalformedIdentifierError(fmt.Sprintf("truncated escape in %q", s))
		}
		switch strings.ToUpper(s[i+1 : i+3]) {
		case "25":
			b.WriteByte('%')
		case "3A":
			b.WriteByte(':')
		default:
			return "", model.NewMalformedIdentifierError(fmt.Sprintf("invalid escape %q", s[i:i+3]))
		}
		i += 2
	}
	return b.String(), nil
}

// NamedArgument returns the value of the named argument of raw. An
// undecodable identifier yields absent.
func NamedArgument(raw, name string) (string, bool) {
	id, err := Decode(raw)
	if err != nil {
		return "", false
	}
	return id.Arg(name)
}

// Arg returns the value of the named argument.
func (id ID) Arg(name string) (string, bool) {
	for _, a := range id.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// With returns a copy of id carrying name=value. An existing argument of the
// same name is replaced in place.
func (id ID) With(name, value string) ID {
	args := make([]Arg, 0, len(id.Args)+1)
	replaced := false
	for _, a := range id.Args {
		if a.Name == name {
			args = append(args, Arg{Name: name, Value: value})
			replaced = true
			continue
		}
		args = append(args, a)
	}
	if !replaced {
		args = append(args, Arg{Name: name, Value: value})
	}
	id.Args = args
	return id
}

// Without returns a copy of id without the named argument.
func (id ID) Without(name string) ID {
	if _, ok := id.Arg(name); !ok {
		return id
	}
	args := make([]Arg, 0, len(id.Args)-1)
	for _, a := range id.Args {
		if a.Name != name {
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		args = nil
	}
	id.Args = args
	return id
}

// WithOperation returns a copy of id addressing op.
func (id ID) WithOperation(op string) ID {
	id.Operation = op
	id.Args = append([]Arg(nil), id.Args...)
	return id
}

// String returns the encoded identifier, or a diagnostic placeholder when id
// cannot be encoded. Use Encode wherever the result reaches a client.
func (id ID) String() string {
	raw, err := build(id)
	if err != nil {
		return "<invalid identifier>"
	}
	return raw
}
