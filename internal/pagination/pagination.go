// Package pagination derives page state from identifiers and builds the
// previous/next controls of paginated screens.
package pagination

import (
	"fmt"
	"strconv"

	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/model"
)

// PageArg is the identifier argument carrying the page index.
const PageArg = "page"

// Control labels.
const (
	PreviousLabel = "Previous"
	NextLabel     = "Next"
)

// Page is the resolved page of a collection.
type Page struct {
	// Index is the zero-based page to render, always within range.
	Index int
	// Total is the number of pages; 0 for an empty collection.
	Total int
	// Offset and Limit select the page's items.
	Offset int
	Limit  int
	// Stale is set when the requested page no longer exists and Index was
	// clamped.
	Stale bool
}

// Empty reports whether the collection has no items.
func (p Page) Empty() bool { return p.Total == 0 }

// Label returns a human readable position such as "Page 2 of 5".
func (p Page) Label() string {
	if p.Total == 0 {
		return "No entries"
	}
	return fmt.Sprintf("Page %d of %d", p.Index+1, p.Total)
}

// CurrentPage reads the page argument of id. An absent argument yields 0; a
// value that is not a non-negative base 10 integer fails with INVALID_PAGE.
func CurrentPage(id identifier.ID) (int, error) {
	raw, ok := id.Arg(PageArg)
	if !ok {
		return 0, nil
	}
	if raw == "" {
		return 0, model.NewInvalidPageError(raw)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return 0, model.NewInvalidPageError(raw)
		}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewInvalidPageError(raw)
	}
	return n, nil
}

// TotalPages returns ceil(collectionSize / pageSize). pageSize must be
// positive and collectionSize non-negative, otherwise CONFIGURATION_ERROR.
func TotalPages(collectionSize, pageSize int) (int, error) {
	if pageSize <= 0 {
		return 0, model.NewConfigurationError(fmt.Sprintf("page size must be positive, got %d", pageSize))
	}
	if collectionSize < 0 {
		return 0, model.NewConfigurationError(fmt.Sprintf("collection size must not be negative, got %d", collectionSize))
	}
	return (collectionSize + pageSize - 1) / pageSize, nil
}

// Resolve combines CurrentPage and TotalPages. A requested page at or past
// the end is clamped to the last page (0 for an empty collection) and the
// result is marked Stale, so callers never read out of range.
func Resolve(id identifier.ID, collectionSize, pageSize int) (Page, error) {
	total, err := TotalPages(collectionSize, pageSize)
	if err != nil {
		return Page{}, err
	}
	requested, err := CurrentPage(id)
	if err != nil {
		return Page{}, err
	}

	p := Page{Index: requested, Total: total, Limit: pageSize}
	last := total - 1
	if last < 0 {
		last = 0
	}
	if p.Index > last {
		p.Index = last
		p.Stale = true
	}
	p.Offset = p.Index * pageSize
	return p, nil
}

// NavigationControls returns the previous/next buttons for current within
// total pages. Previous is present when current > 0 and next when
// current < total-1; no controls are returned when total <= 1. Each control
// re-enters base with the target page in the page argument.
func NavigationControls(base identifier.ID, current, total int) ([]model.Control, error) {
	if current < 0 {
		return nil, model.NewConfigurationError(fmt.Sprintf("current page must not be negative, got %d", current))
	}
	if total <= 1 {
		return nil, nil
	}

	var controls []model.Control
	if current > 0 {
		c, err := pageButton(base, PreviousLabel, current-1)
		if err != nil {
			return nil, err
		}
		controls = append(controls, c)
	}
	if current < total-1 {
		c, err := pageButton(base, NextLabel, current+1)
		if err != nil {
			return nil, err
		}
		controls = append(controls, c)
	}
	return controls, nil
}

func pageButton(base identifier.ID, label string, page int) (model.Control, error) {
	customID, err := identifier.Encode(base.With(PageArg, strconv.Itoa(page)))
	if err != nil {
		return model.Control{}, err
	}
	return model.Control{
		Type:     model.ControlButton,
		Label:    label,
		Style:    model.StyleSecondary,
		CustomID: customID,
	}, nil
}
