// Package integration starts the full console HTTP stack for end-to-end
// tests: a SQLite store, the static capability policy, a Redis-backed
// dedupe guard and a JWKS-verified token issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/govconsole/internal/admin"
	"github.com/pitabwire/govconsole/internal/capability"
	"github.com/pitabwire/govconsole/internal/config"
	"github.com/pitabwire/govconsole/internal/dedupe"
	"github.com/pitabwire/govconsole/internal/observability"
	"github.com/pitabwire/govconsole/internal/store"
	"github.com/pitabwire/govconsole/internal/transport"
	"github.com/pitabwire/govconsole/model"
)

// TestHarness encapsulates a fully wired console server.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Store    store.Store
	Redis    *miniredis.Miniredis
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	policyFile     string
	handlerTimeout time.Duration
	rateLimit      *config.RateLimitConfig
	proposalsRule  string
}

// WithPolicyFile sets the static policy YAML file for capability resolution.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithRateLimit enables per-user rate limiting.
func WithRateLimit(rps float64, burst int) HarnessOption {
	return func(c *harnessConfig) {
		c.rateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerSecond: rps, Burst: burst}
	}
}

// WithProposalsRule narrows proposal review with a CEL expression.
func WithProposalsRule(expr string) HarnessOption {
	return func(c *harnessConfig) {
		c.proposalsRule = expr
	}
}

// NewTestHarness creates and starts a full console instance. The server is
// cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		policyFile:     filepath.Join(testdataDir(), "policies.yaml"),
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	ctx := context.Background()
	h := &TestHarness{t: t}

	st, err := store.Open(ctx, "sqlite", filepath.Join(t.TempDir(), "console.db"), 1)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	h.Store = st

	evaluator, err := capability.NewStaticPolicyEvaluator(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}
	resolver := capability.NewResolver(evaluator, 0) // no caching in tests

	h.Registry = prometheus.NewRegistry()
	h.Metrics = observability.InitMetrics(h.Registry)

	adminOpts := admin.Options{Observer: h.Metrics}
	if hc.proposalsRule != "" {
		rule, err := capability.NewRule(hc.proposalsRule)
		if err != nil {
			t.Fatalf("compile proposals rule: %v", err)
		}
		adminOpts.ProposalsRule = rule
	}
	dash, err := admin.New(st, adminOpts)
	if err != nil {
		t.Fatalf("build dashboard: %v", err)
	}
	dashboards, err := transport.NewDashboards(dash)
	if err != nil {
		t.Fatalf("index dashboards: %v", err)
	}

	h.Redis = miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
	t.Cleanup(func() { client.Close() })
	guard := dedupe.NewRedisGuard(client, 15*time.Minute)

	h.issuer = newTokenIssuer(t)

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Identity.Issuer = h.issuer.Issuer()
	h.cfg.Identity.Audience = h.issuer.Audience()
	h.cfg.Identity.JWKSURL = h.issuer.JWKSURL()
	h.cfg.RateLimit.Enabled = false
	if hc.rateLimit != nil {
		h.cfg.RateLimit = *hc.rateLimit
	}

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), time.Hour, zap.NewNop())

	router := transport.NewRouter(transport.Dependencies{
		Config:             h.cfg,
		Authenticate:       transport.JWTAuthenticator(h.cfg.Identity, jwks),
		CapabilityResolver: resolver,
		Dashboards:         dashboards,
		Guard:              guard,
		Readiness: observability.ReadinessChecks{
			Store:  st,
			Dedupe: guard,
		},
		Metrics:  h.Metrics,
		Gatherer: h.Registry,
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT token with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GenerateForeignToken creates a JWT signed by an unpublished key.
func (h *TestHarness) GenerateForeignToken(claims TestClaims) string {
	return h.issuer.GenerateForeignToken(claims)
}

// --- HTTP client helpers ---

// GET performs an optionally authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("GET", path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, nil)
}

// POSTWithHeaders performs an authenticated POST request with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest("POST", path, body, token, headers)
}

// Interact posts an interaction and decodes the returned view. It fails
// the test unless the server answers 200.
func (h *TestHarness) Interact(token string, body transport.InteractionBody) model.View {
	h.t.Helper()
	resp := h.POST("/interactions", body, token)
	var v model.View
	h.AssertJSON(h.t, resp, http.StatusOK, &v)
	return v
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// ReadBody reads and returns the response body as bytes.
func (h *TestHarness) ReadBody(resp *http.Response) []byte {
	h.t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	return data
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Errorf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks that the response has the expected status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// ErrorCode decodes an error envelope and returns its code.
func (h *TestHarness) ErrorCode(resp *http.Response) string {
	h.t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &body)
	return body.Error.Code
}

// --- Default test claims ---

// ModeratorClaims returns TestClaims for a moderator.
func ModeratorClaims() TestClaims {
	return TestClaims{
		SubjectID: "1001",
		GuildID:   "guild-1",
		Name:      "Mod",
		Roles:     []string{"moderator"},
	}
}

// MemberClaims returns TestClaims for a member with no console roles.
func MemberClaims() TestClaims {
	return TestClaims{
		SubjectID: "1002",
		GuildID:   "guild-1",
		Name:      "Member",
	}
}

// FundingAdminClaims returns TestClaims for a funding admin.
func FundingAdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "1003",
		GuildID:   "guild-1",
		Name:      "Treasurer",
		Roles:     []string{"funding_admin"},
	}
}

// --- View helpers ---

// Control finds the control labelled label, or a select whose placeholder
// is label.
func Control(t *testing.T, v model.View, label string) model.Control {
	t.Helper()
	var have []string
	for _, row := range v.Rows {
		for _, c := range row.Controls {
			if c.Label == label || (c.Type == model.ControlSelect && c.Placeholder == label) {
				return c
			}
			have = append(have, c.Label+c.Placeholder)
		}
	}
	t.Fatalf("no control %q in view %q (have %v)", label, v.Title, have)
	return model.Control{}
}

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}
