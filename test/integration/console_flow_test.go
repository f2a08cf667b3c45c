package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/govconsole/internal/store"
	"github.com/pitabwire/govconsole/internal/transport"
	"github.com/pitabwire/govconsole/model"
)

var interactionSeq atomic.Int64

// session sends interactions as one user.
type session struct {
	h     *TestHarness
	token string
}

func newSession(h *TestHarness, claims TestClaims) *session {
	return &session{h: h, token: h.GenerateToken(claims)}
}

func (s *session) send(body transport.InteractionBody) model.View {
	s.h.t.Helper()
	body.ID = fmt.Sprintf("flow-%d", interactionSeq.Add(1))
	return s.h.Interact(s.token, body)
}

func (s *session) command() model.View {
	s.h.t.Helper()
	return s.send(transport.InteractionBody{Type: "command", Name: "admin"})
}

func (s *session) click(t *testing.T, v model.View, label string, values ...string) model.View {
	t.Helper()
	c := Control(t, v, label)
	return s.send(transport.InteractionBody{Type: "component", CustomID: c.CustomID, Values: values})
}

func TestConsole_groupLifecycle(t *testing.T) {
	h := NewTestHarness(t)
	s := newSession(h, ModeratorClaims())

	list := s.click(t, s.command(), "SME groups")
	if list.Title != "SME groups" || list.Kind != model.ViewUpdate {
		t.Fatalf("list = %q %q", list.Title, list.Kind)
	}

	form := s.click(t, s.click(t, list, "Manage"), "Add")
	if form.Kind != model.ViewForm || form.Form == nil {
		t.Fatalf("Add opened %+v, want a form", form)
	}

	for _, name := range []string{"Security", "Tooling"} {
		v := s.send(transport.InteractionBody{
			Type:     "form_submit",
			CustomID: form.Form.CustomID,
			Fields:   map[string]string{"name": name, "description": "Reviews " + name},
		})
		if v.Banner == nil || v.Banner.Style != model.BannerSuccess {
			t.Fatalf("add %q banner = %+v", name, v.Banner)
		}
	}

	dup := s.send(transport.InteractionBody{
		Type:     "form_submit",
		CustomID: form.Form.CustomID,
		Fields:   map[string]string{"name": "security"},
	})
	if dup.Banner == nil || dup.Banner.Style != model.BannerError {
		t.Errorf("duplicate banner = %+v, want error", dup.Banner)
	}

	n, err := h.Store.Count(context.Background(), store.KindGroups)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2", n, err)
	}

	manage := s.click(t, s.click(t, s.command(), "SME groups"), "Manage")
	pick := s.click(t, manage, "Remove")
	sel := Control(t, pick, "Choose the SME groups to remove")
	if len(sel.Options) != 2 {
		t.Fatalf("options = %+v", sel.Options)
	}

	v := s.send(transport.InteractionBody{
		Type:     "component",
		CustomID: sel.CustomID,
		Values:   []string{sel.Options[0].Value},
	})
	if v.Banner == nil || v.Banner.Style != model.BannerSuccess {
		t.Errorf("remove banner = %+v", v.Banner)
	}
	if len(v.Fields) != 1 || v.Fields[0].Name != "Tooling" {
		t.Errorf("remaining fields = %+v", v.Fields)
	}
}

func TestConsole_paginationAcrossRequests(t *testing.T) {
	h := NewTestHarness(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		if _, err := h.Store.Create(ctx, store.KindTopics, fmt.Sprintf("Topic %d", i), ""); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	s := newSession(h, ModeratorClaims())

	first := s.click(t, s.command(), "Topics")
	if len(first.Fields) != 5 {
		t.Fatalf("first page fields = %d, want 5", len(first.Fields))
	}

	second := s.click(t, first, "Next")
	if len(second.Fields) != 2 || second.Fields[0].Name != "Topic 6" {
		t.Errorf("second page fields = %+v", second.Fields)
	}
}

func TestConsole_proposalReview(t *testing.T) {
	h := NewTestHarness(t, WithProposalsRule(`"funding_admin" in roles`))
	ctx := context.Background()
	round, err := h.Store.CreateRound(ctx, "Round A")
	if err != nil {
		t.Fatalf("CreateRound() error = %v", err)
	}
	prop, err := h.Store.CreateProposal(ctx, round.ID, "Tooling grant", "alice")
	if err != nil {
		t.Fatalf("CreateProposal() error = %v", err)
	}

	s := newSession(h, FundingAdminClaims())
	rounds := s.click(t, s.command(), "Proposals")
	list := s.click(t, rounds, "Funding round", fmt.Sprint(round.ID))
	if list.Title != "Proposals: Round A" {
		t.Fatalf("Title = %q", list.Title)
	}

	pick := s.click(t, list, fmt.Sprintf("#%d", prop.ID))
	v := s.click(t, pick, "Move to", string(store.StatusApproved))
	want := fmt.Sprintf("Proposal #%d is now approved.", prop.ID)
	if v.Banner == nil || v.Banner.Message != want {
		t.Errorf("banner = %+v, want %q", v.Banner, want)
	}

	got, err := h.Store.Proposal(ctx, prop.ID)
	if err != nil || got.Status != store.StatusApproved {
		t.Errorf("stored = %+v, %v; want approved", got, err)
	}
}

func TestConsole_proposalRuleDeniesOwnerWithoutRole(t *testing.T) {
	h := NewTestHarness(t, WithProposalsRule(`"funding_admin" in roles`))
	claims := ModeratorClaims()
	claims.Roles = []string{"owner"}
	owner := newSession(h, claims)

	for _, row := range owner.command().Rows {
		for _, c := range row.Controls {
			if c.Label == "Proposals" {
				t.Error("owner without funding_admin sees Proposals")
			}
		}
	}

	link := Control(t, newSession(h, FundingAdminClaims()).command(), "Proposals")
	v := owner.send(transport.InteractionBody{Type: "component", CustomID: link.CustomID})
	if v.Title != "Access denied" {
		t.Errorf("Title = %q, want Access denied", v.Title)
	}
	if got := testutil.ToFloat64(h.Metrics.RouteTotal.WithLabelValues("admin", "proposals", "open", "denied")); got != 1 {
		t.Errorf("denied routes = %v, want 1", got)
	}
}

func TestConsole_staleIdentifierAfterDelete(t *testing.T) {
	h := NewTestHarness(t)
	ctx := context.Background()
	it, err := h.Store.Create(ctx, store.KindGroups, "Security", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s := newSession(h, ModeratorClaims())

	pick := s.click(t, s.click(t, s.click(t, s.command(), "SME groups"), "Manage"), "Remove")
	sel := Control(t, pick, "Choose the SME groups to remove")

	if _, err := h.Store.Delete(ctx, store.KindGroups, it.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	v := s.send(transport.InteractionBody{Type: "component", CustomID: sel.CustomID, Values: []string{fmt.Sprint(it.ID)}})
	if v.Banner == nil || v.Banner.Style != model.BannerError {
		t.Errorf("banner = %+v, want error", v.Banner)
	}
}

func TestConsole_undecodableIdentifierOpensHome(t *testing.T) {
	h := NewTestHarness(t)
	s := newSession(h, ModeratorClaims())

	v := s.send(transport.InteractionBody{Type: "component", CustomID: "garbage"})
	if v.Title != "Governance console" {
		t.Errorf("Title = %q, want the home screen", v.Title)
	}

	resp := h.POST("/interactions", transport.InteractionBody{ID: "x", Type: "carrier_pigeon"}, s.token)
	h.AssertStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}
