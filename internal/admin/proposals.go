package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/internal/pagination"
	"github.com/pitabwire/govconsole/internal/store"
	"github.com/pitabwire/govconsole/model"
)

// Identifier arguments of the proposals screen.
const (
	argRound    = "round"
	argProposal = "proposal"
)

// ProposalsCapability opens the proposals screen.
const ProposalsCapability = "proposals:manage"

type proposals struct {
	*admin

	screen *console.Screen
	rounds *console.Action
	list   *console.Action
	status *console.Action
}

func (a *admin) proposalsScreen(rule console.Permission) *console.Screen {
	p := &proposals{admin: a}

	p.rounds = console.NewAction("rounds",
		console.Operation(console.DefaultOperation, p.renderRounds),
		console.ComponentOperation("choose", p.choose),
	)
	p.list = console.NewAction("list",
		console.Operation(console.DefaultOperation, p.renderList),
	)
	p.status = console.NewAction("status",
		console.Operation("pick", p.pickStatus),
		console.ComponentOperation("apply", p.applyStatus),
	)

	p.screen = console.NewScreen("proposals",
		console.WithTitle("Proposals"),
		console.WithRender(p.renderRounds),
		console.WithActions(p.rounds, p.list, p.status),
		console.WithPermission(console.AllOf(console.RequireCapabilities(ProposalsCapability), rule)),
	)
	return p.screen
}

func (p *proposals) renderRounds(ctx context.Context, _ *console.Request) (model.View, error) {
	rounds, err := p.store.Rounds(ctx)
	if err != nil {
		return model.View{}, err
	}
	opts := make([]model.Option, 0, len(rounds))
	for _, r := range rounds {
		state := "Open"
		if r.Closed {
			state = "Closed"
		}
		opts = append(opts, model.Option{Label: r.Name, Value: fmt.Sprint(r.ID), Description: state})
	}

	v := model.View{Title: "Proposals", Description: "Choose a funding round to review."}
	if len(rounds) == 0 {
		v.Description = "No funding rounds yet."
	}
	sel, err := p.rounds.Select("Funding round", "choose", opts)
	if err != nil {
		return model.View{}, err
	}
	home, err := p.homeButton()
	if err != nil {
		return model.View{}, err
	}
	v.Rows = model.RowsOf(sel, home)
	return v, nil
}

func (p *proposals) choose(ctx context.Context, req *console.Request, c model.Component) (model.View, error) {
	raw, ok := c.FirstValue()
	if !ok {
		return model.View{}, model.NewBadRequestError("no funding round selected")
	}
	req.Scratch.Set(console.ScratchRoundID(), raw)
	return p.renderList(ctx, req)
}

// renderList shows the round named by the round argument, or the one chosen
// earlier in the same request.
func (p *proposals) renderList(ctx context.Context, req *console.Request) (model.View, error) {
	raw, ok := req.Arg(argRound)
	if !ok {
		raw, ok = req.Scratch.Get(console.ScratchRoundID())
	}
	if !ok {
		v, err := p.renderRounds(ctx, req)
		if err != nil {
			return model.View{}, err
		}
		return v.WithBanner(model.NoticeBanner("Choose a funding round first.")), nil
	}
	id, err := parseID(raw, "funding round")
	if err != nil {
		return model.View{}, err
	}
	round, err := p.store.Round(ctx, id)
	if err != nil {
		return model.View{}, err
	}
	return p.renderRound(ctx, req, round)
}

func (p *proposals) renderRound(ctx context.Context, req *console.Request, round store.Round) (model.View, error) {
	n, err := p.store.CountByRound(ctx, round.ID)
	if err != nil {
		return model.View{}, err
	}
	page, err := pagination.Resolve(req.ID, n, p.pageSize)
	if err != nil {
		return model.View{}, err
	}
	var items []store.Proposal
	if !page.Empty() {
		items, err = p.store.ListByRound(ctx, round.ID, page.Offset, page.Limit)
		if err != nil {
			return model.View{}, err
		}
	}

	roundArg := console.Arg(argRound, fmt.Sprint(round.ID))
	v := model.View{Title: "Proposals: " + round.Name, Description: page.Label()}
	if page.Empty() {
		v.Description = "No proposals in this round yet."
	}

	// The proposal this request just changed is highlighted.
	changed, _ := req.Scratch.Get(console.ScratchEntityID())

	var controls []model.Control
	for _, pr := range items {
		v.Fields = append(v.Fields, model.Field{
			Name:  fmt.Sprintf("#%d %s", pr.ID, pr.Title),
			Value: fmt.Sprintf("%s, proposed by %s", pr.Status.Label(), proposer(pr)),
		})
		style := model.StyleSecondary
		if fmt.Sprint(pr.ID) == changed {
			style = model.StylePrimary
		}
		b, err := p.status.Button(fmt.Sprintf("#%d", pr.ID), style, "pick",
			console.Arg(argProposal, fmt.Sprint(pr.ID)), roundArg, pageArg(page.Index))
		if err != nil {
			return model.View{}, err
		}
		controls = append(controls, b)
	}

	nav, err := pagination.NavigationControls(p.list.ID(console.DefaultOperation, roundArg), page.Index, page.Total)
	if err != nil {
		return model.View{}, err
	}
	back, err := p.rounds.Button("Rounds", model.StyleSecondary, console.DefaultOperation)
	if err != nil {
		return model.View{}, err
	}
	controls = append(controls, nav...)
	v.Rows = model.RowsOf(append(controls, back)...)

	if page.Stale {
		v = v.WithBanner(model.NoticeBanner(staleNotice))
	}
	return v, nil
}

func (p *proposals) proposalArg(req *console.Request) (int64, error) {
	raw, ok := req.Arg(argProposal)
	if !ok {
		return 0, model.NewBadRequestError("missing proposal argument")
	}
	return parseID(raw, "proposal")
}

func (p *proposals) pickStatus(ctx context.Context, req *console.Request) (model.View, error) {
	id, err := p.proposalArg(req)
	if err != nil {
		return model.View{}, err
	}
	pr, err := p.store.Proposal(ctx, id)
	if err != nil {
		return model.View{}, err
	}

	var opts []model.Option
	for _, s := range store.Statuses() {
		if s == pr.Status {
			continue
		}
		opts = append(opts, model.Option{Label: s.Label(), Value: string(s)})
	}
	args := append([]identifier.Arg{
		console.Arg(argProposal, fmt.Sprint(pr.ID)),
		console.Arg(argRound, fmt.Sprint(pr.RoundID)),
	}, pageArgs(req)...)
	sel, err := p.status.Select("Move to", "apply", opts, args...)
	if err != nil {
		return model.View{}, err
	}
	back, err := p.list.Button("Back", model.StyleSecondary, console.DefaultOperation, args[1:]...)
	if err != nil {
		return model.View{}, err
	}

	return model.View{
		Title: fmt.Sprintf("#%d %s", pr.ID, pr.Title),
		Fields: []model.Field{
			{Name: "Proposer", Value: proposer(pr), Inline: true},
			{Name: "Status", Value: pr.Status.Label(), Inline: true},
		},
		Rows: model.RowsOf(sel, back),
	}, nil
}

func (p *proposals) applyStatus(ctx context.Context, req *console.Request, c model.Component) (model.View, error) {
	id, err := p.proposalArg(req)
	if err != nil {
		return model.View{}, err
	}
	raw, ok := c.FirstValue()
	if !ok {
		return model.View{}, model.NewBadRequestError("no status selected")
	}
	pr, err := p.store.SetStatus(ctx, id, store.Status(raw))
	if err != nil {
		return model.View{}, err
	}
	req.Scratch.Set(console.ScratchEntityID(), fmt.Sprint(pr.ID))

	round, err := p.store.Round(ctx, pr.RoundID)
	if err != nil {
		return model.View{}, err
	}
	v, err := p.renderRound(ctx, req, round)
	if err != nil {
		return model.View{}, err
	}
	return v.WithBanner(model.SuccessBanner(
		fmt.Sprintf("Proposal #%d is now %s.", pr.ID, strings.ToLower(pr.Status.Label())))), nil
}

func proposer(pr store.Proposal) string {
	if pr.Proposer == "" {
		return "unknown"
	}
	return pr.Proposer
}
