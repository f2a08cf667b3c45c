package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHarness_HealthEndpoints(t *testing.T) {
	h := NewTestHarness(t)

	t.Run("health", func(t *testing.T) {
		resp := h.GET("/healthz", "")
		var body map[string]string
		h.AssertJSON(t, resp, http.StatusOK, &body)
		if body["status"] != "ok" {
			t.Errorf("health status = %q, want ok", body["status"])
		}
	})

	t.Run("ready", func(t *testing.T) {
		resp := h.GET("/readyz", "")
		h.AssertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	})

	t.Run("not ready when redis is down", func(t *testing.T) {
		h.Redis.SetError("ERR redis unavailable")
		defer h.Redis.SetError("")
		resp := h.GET("/readyz", "")
		h.AssertStatus(t, resp, http.StatusServiceUnavailable)
		resp.Body.Close()
	})
}

func TestHarness_MetricsEndpoint(t *testing.T) {
	h := NewTestHarness(t)
	token := h.GenerateToken(ModeratorClaims())

	h.Interact(token, interaction("i-metrics", "command", ""))

	body := string(h.ReadBody(h.GET("/metrics", "")))
	for _, want := range []string{
		"govconsole_http_requests_total",
		"govconsole_route_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestHarness_AuthenticationRequired(t *testing.T) {
	h := NewTestHarness(t)
	body := interaction("i-auth", "command", "")

	t.Run("no token returns 401", func(t *testing.T) {
		resp := h.POST("/interactions", body, "")
		h.AssertStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	})

	t.Run("expired token returns 401", func(t *testing.T) {
		resp := h.POST("/interactions", body, h.GenerateExpiredToken(ModeratorClaims()))
		h.AssertStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	})

	t.Run("invalid token returns 401", func(t *testing.T) {
		resp := h.POST("/interactions", body, "invalid-token")
		h.AssertStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	})
}
