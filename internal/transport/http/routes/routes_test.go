package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/siteproof/throttle-service/internal/core/domain"
	"github.com/siteproof/throttle-service/internal/infra/config"
	"github.com/siteproof/throttle-service/internal/infra/security"
	"github.com/siteproof/throttle-service/internal/repository/memory"
	"github.com/siteproof/throttle-service/internal/usecase"
)

func newTestEngine(t *testing.T, verifier *security.ServiceTokenVerifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		App:       config.AppSettings{Name: "throttle-service", Env: "test"},
		Telemetry: config.TelemetrySettings{Namespace: "throttle"},
	}

	store := memory.NewAttemptStore()
	log := zaptest.NewLogger(t)

	limiters := make(map[string]*usecase.Limiter)
	for scope, scopeCfg := range map[string]domain.ScopeConfig{
		usecase.DefaultScope: {MaxAttempts: 100, Window: time.Minute, BlockDuration: time.Minute},
		"auth":               {MaxAttempts: 5, Window: time.Minute, BlockDuration: 15 * time.Minute},
	} {
		limiter, err := usecase.NewLimiter(scope, scopeCfg, store, log)
		if err != nil {
			t.Fatalf("NewLimiter(%s) returned error: %v", scope, err)
		}
		limiters[scope] = limiter
	}

	return Register(Dependencies{
		Config:   cfg,
		Logger:   log,
		Registry: usecase.NewRegistry(limiters),
		Verifier: verifier,
	})
}

func TestHealthEndpoint(t *testing.T) {
	engine := newTestEngine(t, nil)

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse health payload: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestReadinessWithoutDependencies(t *testing.T) {
	engine := newTestEngine(t, nil)

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	engine := newTestEngine(t, nil)

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatal("expected default process metrics in output")
	}
}

func TestCheckRouteRegistered(t *testing.T) {
	engine := newTestEngine(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ratelimit/check",
		strings.NewReader(`{"key":"auth:203.0.113.7","scope":"auth"}`))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if got := rr.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Fatalf("expected the api surface to carry its own limit headers, got %q", got)
	}
}

func TestResetRequiresServiceToken(t *testing.T) {
	verifier, err := security.NewServiceTokenVerifier("test-secret", "siteproof-platform")
	if err != nil {
		t.Fatalf("NewServiceTokenVerifier returned error: %v", err)
	}

	engine := newTestEngine(t, verifier)
	body := `{"key":"auth:user-1","scope":"auth"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ratelimit/reset", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rr.Code)
	}

	token, err := verifier.Sign("siteproof-api", time.Minute)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/ratelimit/reset", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	engine.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with a valid token, got %d: %s", rr.Code, rr.Body.String())
	}
}
