// Package store holds the data-access collaborators behind the admin
// screens: managed collections (groups, topics, committees) and funding
// round proposals.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pitabwire/govconsole/model"
)

// Kind names a managed collection.
type Kind string

// Collection kinds.
const (
	KindGroups     Kind = "groups"
	KindTopics     Kind = "topics"
	KindCommittees Kind = "committees"
)

// Kinds returns every collection kind.
func Kinds() []Kind {
	return []Kind{KindGroups, KindTopics, KindCommittees}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindGroups, KindTopics, KindCommittees:
		return true
	}
	return false
}

// Singular returns the display name of one item of the collection.
func (k Kind) Singular() string {
	switch k {
	case KindGroups:
		return "SME group"
	case KindTopics:
		return "topic"
	case KindCommittees:
		return "committee"
	}
	return string(k)
}

// Item is one entry of a managed collection.
type Item struct {
	ID          int64
	Kind        Kind
	Name        string
	Description string
	CreatedAt   time.Time
}

// Round is a funding round proposals are submitted to.
type Round struct {
	ID       int64
	Name     string
	OpenedAt time.Time
	Closed   bool
}

// Status is the review state of a proposal.
type Status string

// Proposal statuses.
const (
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusFunded      Status = "funded"
	StatusWithdrawn   Status = "withdrawn"
)

// Statuses returns every proposal status in workflow order.
func Statuses() []Status {
	return []Status{StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusFunded, StatusWithdrawn}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses() {
		if s == v {
			return true
		}
	}
	return false
}

// Label returns the display name of s.
func (s Status) Label() string {
	switch s {
	case StatusUnderReview:
		return "Under review"
	case "":
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Proposal is a funding request submitted to a round.
type Proposal struct {
	ID        int64
	RoundID   int64
	Title     string
	Proposer  string
	Status    Status
	UpdatedAt time.Time
}

// Collections manages groups, topics and committees.
type Collections interface {
	// Count returns the number of items of kind.
	Count(ctx context.Context, kind Kind) (int, error)

	// List returns up to limit items of kind ordered by name, skipping
	// offset items.
	List(ctx context.Context, kind Kind, offset, limit int) ([]Item, error)

	// Item returns one item. NOT_FOUND if it does not exist.
	Item(ctx context.Context, kind Kind, id int64) (Item, error)

	// Create adds an item. Names are unique per kind regardless of case;
	// a duplicate yields CONFLICT and an invalid name DOMAIN_ERROR.
	Create(ctx context.Context, kind Kind, name, description string) (Item, error)

	// Delete removes the given items and returns how many existed.
	// NOT_FOUND when none did.
	Delete(ctx context.Context, kind Kind, ids ...int64) (int, error)
}

// Proposals reads funding rounds and moves proposals between statuses.
type Proposals interface {
	// Rounds returns every round, newest first.
	Rounds(ctx context.Context) ([]Round, error)

	// Round returns one round. NOT_FOUND if it does not exist.
	Round(ctx context.Context, id int64) (Round, error)

	// CountByRound returns the number of proposals in a round.
	CountByRound(ctx context.Context, roundID int64) (int, error)

	// ListByRound returns a page of a round's proposals ordered by id.
	ListByRound(ctx context.Context, roundID int64, offset, limit int) ([]Proposal, error)

	// Proposal returns one proposal. NOT_FOUND if it does not exist.
	Proposal(ctx context.Context, id int64) (Proposal, error)

	// SetStatus moves a proposal to status and returns the updated record.
	SetStatus(ctx context.Context, id int64, status Status) (Proposal, error)
}

// Seeder creates rounds and proposals. Proposals normally arrive from the
// submission bot; the console only needs this for fixtures and the CLI.
type Seeder interface {
	CreateRound(ctx context.Context, name string) (Round, error)
	CreateProposal(ctx context.Context, roundID int64, title, proposer string) (Proposal, error)
}

// Store is the complete data-access surface.
type Store interface {
	Collections
	Proposals
	Seeder

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// MaxNameLength bounds item and round names.
const MaxNameLength = 80

// MaxDescriptionLength bounds item descriptions.
const MaxDescriptionLength = 1000

func checkKind(kind Kind) error {
	if !kind.Valid() {
		return model.NewBadRequestError(fmt.Sprintf("unknown collection %q", kind))
	}
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", model.NewDomainError("A name is required.")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", model.NewDomainError(fmt.Sprintf("Names are limited to %d characters.", MaxNameLength))
	}
	return name, nil
}

func checkDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return "", model.NewDomainError(fmt.Sprintf("Descriptions are limited to %d characters.", MaxDescriptionLength))
	}
	return desc, nil
}

func nameKey(name string) string {
	return strings.ToLower(name)
}

func duplicateError(kind Kind, name string) error {
	return model.NewConflictError(fmt.Sprintf("A %s named %q already exists.", kind.Singular(), name))
}

func checkPage(offset, limit int) error {
	if offset < 0 || limit <= 0 {
		return model.NewBadRequestError(fmt.Sprintf("invalid page offset=%d limit=%d", offset, limit))
	}
	return nil
}

func itemNotFound(kind Kind, id int64) error {
	return model.NewNotFoundError(fmt.Sprintf("%s %d not found", kind.Singular(), id))
}

func checkStatus(s Status) error {
	if !s.Valid() {
		return model.NewDomainError(fmt.Sprintf("%q is not a proposal status.", s))
	}
	return nil
}

func isConflict(err error) bool {
	return model.HasCode(err, model.ErrConflict)
}
