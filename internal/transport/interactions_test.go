package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/govconsole/internal/admin"
	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/internal/dedupe"
	"github.com/pitabwire/govconsole/internal/identifier"
	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/internal/store"
	"github.com/pitabwire/govconsole/model"
)

// claimsAuth stands in for the JWT authenticator and injects fixed claims.
func claimsAuth(claims map[string]any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func testDashboards(t *testing.T) *Dashboards {
	t.Helper()
	dash, err := admin.New(store.NewMemoryStore(), admin.Options{})
	if err != nil {
		t.Fatalf("admin.New() error = %v", err)
	}
	ds, err := NewDashboards(dash)
	if err != nil {
		t.Fatalf("NewDashboards() error = %v", err)
	}
	return ds
}

type interactionEnv struct {
	t       *testing.T
	router  http.Handler
	metrics *observability.Metrics
}

func newInteractionEnv(t *testing.T, guard dedupe.Guard, caps ...string) *interactionEnv {
	t.Helper()
	set := make(model.CapabilitySet)
	for _, c := range caps {
		set[c] = true
	}
	deps := testDeps()
	deps.Config.Server.MaxBodyBytes = 1 << 10
	deps.Authenticate = claimsAuth(map[string]any{"sub": "user-1", "tenant_id": "guild-1", "name": "Ada"})
	deps.CapabilityResolver = &mockResolver{caps: set}
	deps.Dashboards = testDashboards(t)
	deps.Guard = guard
	deps.Metrics = observability.InitMetrics(prometheus.NewRegistry())
	return &interactionEnv{t: t, router: NewRouter(deps), metrics: deps.Metrics}
}

func (e *interactionEnv) post(body string) *httptest.ResponseRecorder {
	e.t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest("POST", "/interactions", strings.NewReader(body)))
	return w
}

func (e *interactionEnv) postJSON(body InteractionBody) *httptest.ResponseRecorder {
	e.t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		e.t.Fatalf("Marshal() error = %v", err)
	}
	return e.post(string(raw))
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) model.View {
	t.Helper()
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	var v model.View
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding view: %v", err)
	}
	return v
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return resp.Error.Code
}

func controlByLabel(t *testing.T, v model.View, label string) model.Control {
	t.Helper()
	for _, row := range v.Rows {
		for _, c := range row.Controls {
			if c.Label == label {
				return c
			}
		}
	}
	t.Fatalf("no control %q in view %q", label, v.Title)
	return model.Control{}
}

func TestInteraction_commandOpensHome(t *testing.T) {
	env := newInteractionEnv(t, nil, "groups:manage")

	v := decodeView(t, env.postJSON(InteractionBody{ID: "i-1", Type: "command", Name: "admin"}))

	if v.Title != "Governance console" {
		t.Errorf("Title = %q, want Governance console", v.Title)
	}
	if v.Kind != model.ViewMessage {
		t.Errorf("Kind = %q, want %q", v.Kind, model.ViewMessage)
	}
	controlByLabel(t, v, "SME groups")
}

func TestInteraction_componentFollowsMenu(t *testing.T) {
	env := newInteractionEnv(t, nil, "groups:manage")

	home := decodeView(t, env.postJSON(InteractionBody{ID: "i-1", Type: "command"}))
	link := controlByLabel(t, home, "SME groups")

	v := decodeView(t, env.postJSON(InteractionBody{ID: "i-2", Type: "component", CustomID: link.CustomID}))
	if v.Title != "SME groups" {
		t.Errorf("Title = %q, want SME groups", v.Title)
	}
	if v.Kind != model.ViewUpdate {
		t.Errorf("Kind = %q, want %q", v.Kind, model.ViewUpdate)
	}
}

func TestInteraction_deniedWithoutCapability(t *testing.T) {
	env := newInteractionEnv(t, nil)

	raw, err := identifier.Encode(identifier.ID{Dashboard: admin.DefaultID, Screen: "groups", Action: console.OpenActionID})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	v := decodeView(t, env.postJSON(InteractionBody{ID: "i-1", Type: "component", CustomID: raw}))
	if v.Title != console.DeniedView().Title {
		t.Errorf("Title = %q, want %q", v.Title, console.DeniedView().Title)
	}
}

func TestInteraction_unknownDashboardInIdentifier(t *testing.T) {
	env := newInteractionEnv(t, nil, "groups:manage")

	v := decodeView(t, env.postJSON(InteractionBody{ID: "i-1", Type: "component", CustomID: "elsewhere:home:open"}))
	if v.Title != console.NotFoundView().Title {
		t.Errorf("Title = %q, want %q", v.Title, console.NotFoundView().Title)
	}
}

func TestInteraction_malformedIdentifier(t *testing.T) {
	env := newInteractionEnv(t, nil, "groups:manage")

	// Undecodable identifiers fall back to the home screen.
	v := decodeView(t, env.postJSON(InteractionBody{ID: "i-1", Type: "component", CustomID: "nonsense"}))
	if v.Title != "Governance console" {
		t.Errorf("Title = %q, want Governance console", v.Title)
	}
}

func TestInteraction_badRequests(t *testing.T) {
	env := newInteractionEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"invalid json", "{not json"},
		{"missing id", `{"type":"command"}`},
		{"unknown type", `{"id":"i-1","type":"modal"}`},
		{"too large", `{"id":"i-1","type":"command","name":"` + strings.Repeat("x", 2<<10) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.post(tt.body)
			if w.Code != 400 {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if code := decodeErrorCode(t, w); code != model.ErrBadRequest {
				t.Errorf("code = %q, want %s", code, model.ErrBadRequest)
			}
		})
	}
}

func TestInteraction_unknownNamedDashboard(t *testing.T) {
	env := newInteractionEnv(t, nil)

	w := env.postJSON(InteractionBody{ID: "i-1", Type: "command", Dashboard: "elsewhere"})
	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestInteraction_redeliveryRejected(t *testing.T) {
	env := newInteractionEnv(t, dedupe.NewMemoryGuard(time.Minute))

	first := env.postJSON(InteractionBody{ID: "i-1", Type: "command"})
	if first.Code != 200 {
		t.Fatalf("first status = %d, want 200", first.Code)
	}
	second := env.postJSON(InteractionBody{ID: "i-1", Type: "command"})
	if second.Code != 409 {
		t.Fatalf("second status = %d, want 409", second.Code)
	}
	if code := decodeErrorCode(t, second); code != model.ErrConflict {
		t.Errorf("code = %q, want %s", code, model.ErrConflict)
	}
	if got := testutil.ToFloat64(env.metrics.DedupeRejectionsTotal); got != 1 {
		t.Errorf("dedupe rejections = %v, want 1", got)
	}
}

type failingGuard struct{}

func (failingGuard) Claim(context.Context, string) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestInteraction_guardErrorFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ds := testDashboards(t)
	h := &InteractionHandler{Dashboards: ds, Guard: failingGuard{}, Logger: zap.New(core)}

	req := httptest.NewRequest("POST", "/interactions", strings.NewReader(`{"id":"i-1","type":"command"}`))
	req = req.WithContext(model.WithRequestContext(req.Context(), &model.RequestContext{SubjectID: "user-1"}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200 when the guard fails", w.Code)
	}
	if logs.FilterMessage("dedupe claim failed, routing anyway").Len() != 1 {
		t.Errorf("guard failure was not logged: %v", logs.All())
	}
}

func TestInteractionHandler_requiresRequestContext(t *testing.T) {
	h := &InteractionHandler{Dashboards: testDashboards(t)}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/interactions", strings.NewReader(`{"id":"i-1","type":"command"}`)))

	if w.Code != 401 {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestInteractionBody_Interaction(t *testing.T) {
	tests := []struct {
		body InteractionBody
		want model.InteractionKind
	}{
		{InteractionBody{Type: "command", Name: "admin"}, model.KindCommand},
		{InteractionBody{Type: "component", CustomID: "admin:home:open"}, model.KindComponent},
		{InteractionBody{Type: "form_submit", CustomID: "admin:groups:add:submit", Fields: map[string]string{"name": "x"}}, model.KindFormSubmit},
	}
	for _, tt := range tests {
		t.Run(tt.body.Type, func(t *testing.T) {
			in, err := tt.body.Interaction()
			if err != nil {
				t.Fatalf("Interaction() error = %v", err)
			}
			if in.Kind() != tt.want {
				t.Errorf("Kind() = %q, want %q", in.Kind(), tt.want)
			}
		})
	}
}

func TestNewDashboards_errors(t *testing.T) {
	if _, err := NewDashboards(); !model.HasCode(err, model.ErrConfiguration) {
		t.Errorf("NewDashboards() error = %v, want %s", err, model.ErrConfiguration)
	}

	dash, err := admin.New(store.NewMemoryStore(), admin.Options{})
	if err != nil {
		t.Fatalf("admin.New() error = %v", err)
	}
	if _, err := NewDashboards(dash, dash); !model.HasCode(err, model.ErrConfiguration) {
		t.Errorf("NewDashboards(dup) error = %v, want %s", err, model.ErrConfiguration)
	}
}

func TestDashboards_Select(t *testing.T) {
	st := store.NewMemoryStore()
	first, err := admin.New(st, admin.Options{})
	if err != nil {
		t.Fatalf("admin.New() error = %v", err)
	}
	second, err := admin.New(st, admin.Options{ID: "review"})
	if err != nil {
		t.Fatalf("admin.New() error = %v", err)
	}
	ds, err := NewDashboards(first, second)
	if err != nil {
		t.Fatalf("NewDashboards() error = %v", err)
	}

	tests := []struct {
		name  string
		in    model.Interaction
		named string
		want  string
	}{
		{"command defaults", model.Command{Name: "admin"}, "", admin.DefaultID},
		{"command named", model.Command{}, "review", "review"},
		{"identifier wins", model.Component{CustomID: "review:home:open"}, admin.DefaultID, "review"},
		{"unknown identifier dashboard", model.Component{CustomID: "other:home:open"}, "", admin.DefaultID},
		{"malformed identifier", model.Component{CustomID: "x"}, "review", admin.DefaultID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash, err := ds.Select(tt.in, tt.named)
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if dash.ID() != tt.want {
				t.Errorf("Select() = %q, want %q", dash.ID(), tt.want)
			}
		})
	}

	if _, err := ds.Select(model.Command{}, "missing"); !model.HasCode(err, model.ErrNotFound) {
		t.Errorf("Select(missing) error = %v, want %s", err, model.ErrNotFound)
	}
}
