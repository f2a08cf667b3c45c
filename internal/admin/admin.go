// Package admin assembles the governance dashboard: the managed collections
// (SME groups, topics, committees) and the funding round proposal review,
// built on the console core.
package admin

import (
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/internal/pagination"
	"github.com/pitabwire/govconsole/internal/store"
	"github.com/pitabwire/govconsole/model"
)

// Defaults applied by New.
const (
	DefaultID       = "admin"
	DefaultPageSize = 5
)

// HomeScreenID is the id of the dashboard's home screen.
const HomeScreenID = "home"

// Options configures the dashboard built by New.
type Options struct {
	// ID is the dashboard id. Empty means DefaultID.
	ID string

	// PageSize is the number of entries per page. Zero means
	// DefaultPageSize.
	PageSize int

	// ProposalsRule is an extra permission on the proposals screen, checked
	// after the proposals:manage capability. Nil skips it.
	ProposalsRule console.Permission

	Logger   *zap.Logger
	Observer console.RouteObserver
}

// admin holds what every screen of the dashboard shares.
type admin struct {
	store    store.Store
	pageSize int
	home     *console.Screen
}

// New builds the governance dashboard over st.
func New(st store.Store, opts Options) (*console.Dashboard, error) {
	if st == nil {
		return nil, model.NewConfigurationError("admin dashboard: store is nil")
	}
	if opts.ID == "" {
		opts.ID = DefaultID
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PageSize < 0 {
		return nil, model.NewConfigurationError("admin dashboard: page size must be positive")
	}

	a := &admin{store: st, pageSize: opts.PageSize}

	groups := a.collectionScreen(store.KindGroups, "SME groups")
	topics := a.collectionScreen(store.KindTopics, "Topics")
	committees := a.collectionScreen(store.KindCommittees, "Committees")
	proposals := a.proposalsScreen(opts.ProposalsRule)

	a.home = console.NewScreen(HomeScreenID,
		console.WithTitle("Governance console"),
		console.WithChildren(groups, topics, committees, proposals),
	)

	dopts := []console.DashboardOption{console.WithLogger(opts.Logger)}
	if opts.Observer != nil {
		dopts = append(dopts, console.WithObserver(opts.Observer))
	}
	return console.NewDashboard(opts.ID, a.home, dopts...)
}

// homeButton links back to the home screen.
func (a *admin) homeButton() (model.Control, error) {
	return a.home.OpenControl("Home")
}

// pageArgs carries the page argument of req forward, if present.
func pageArgs(req *console.Request) []identifier.Arg {
	if p, ok := req.Arg(pagination.PageArg); ok {
		return []identifier.Arg{console.Arg(pagination.PageArg, p)}
	}
	return nil
}

func pageArg(index int) identifier.Arg {
	return console.Arg(pagination.PageArg, strconv.Itoa(index))
}

// parseID reads an entity id from a control value or identifier argument.
func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewBadRequestError("invalid " + what + " id " + strconv.Quote(raw))
	}
	return id, nil
}

// userMessage returns the message of a DOMAIN_ERROR or CONFLICT, which is
// written for the requester.
func userMessage(err error) (string, bool) {
	switch model.CodeOf(err) {
	case model.ErrDomain, model.ErrConflict:
	default:
		return "", false
	}
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) && ee.Message != "" {
		return ee.Message, true
	}
	return "", false
}

const staleNotice = "That page no longer exists. Showing the last page instead."
