package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// testRateLimiterConfig はテスト中にトークンが補充されない程度に遅いレートを返す。
func testRateLimiterConfig(generalBurst, orgWriteBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(0.25),
		GeneralBurst:    generalBurst,
		OrgWriteRate:    rate.Limit(0.25),
		OrgWriteBurst:   orgWriteBurst,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(authID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/organizations", nil)
	if authID == "" {
		return req
	}
	return req.WithContext(ContextWithAuthID(req.Context(), authID))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGeneralMiddleware_AllowsBurstThenReturns429(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(3, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 3; i++ {
		if w := serve(handler, requestAs("user_1")); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := serve(handler, requestAs("user_1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "4" {
		t.Errorf("Retry-After = %q, want %q", got, "4")
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want RATE_LIMIT_EXCEEDED", body.Code)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want system", body.Category)
	}
}

func TestGeneralMiddleware_IsolatesSubjects(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	if w := serve(handler, requestAs("user_a")); w.Code != http.StatusOK {
		t.Fatalf("user_a first: status = %d", w.Code)
	}
	if w := serve(handler, requestAs("user_a")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("user_a second: status = %d, want 429", w.Code)
	}
	if w := serve(handler, requestAs("user_b")); w.Code != http.StatusOK {
		t.Errorf("user_b: status = %d, want 200", w.Code)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_NoAuthID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 5))
	defer rl.Stop()

	for name, mw := range map[string]func(http.Handler) http.Handler{
		"general":   rl.GeneralMiddleware(),
		"org_write": rl.OrganizationWriteMiddleware(),
	} {
		t.Run(name, func(t *testing.T) {
			w := serve(mw(okHandler()), requestAs(""))
			assertUnauthorizedJSON(t, w)
		})
	}
}

func TestOrganizationWriteMiddleware_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(10, 1))
	defer rl.Stop()

	// general -> org write の順で適用する
	handler := rl.GeneralMiddleware()(rl.OrganizationWriteMiddleware()(okHandler()))
	general := rl.GeneralMiddleware()(okHandler())

	if w := serve(handler, requestAs("user_w")); w.Code != http.StatusOK {
		t.Fatalf("first write: status = %d", w.Code)
	}
	if w := serve(handler, requestAs("user_w")); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second write: status = %d, want 429", w.Code)
	}
	if w := serve(general, requestAs("user_w")); w.Code != http.StatusOK {
		t.Errorf("general request after write limit: status = %d, want 200", w.Code)
	}
	if got := rl.OrgWriteLimiterCount(); got != 1 {
		t.Errorf("OrgWriteLimiterCount = %d, want 1", got)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(5, 5))
	defer rl.Stop()

	serve(rl.GeneralMiddleware()(okHandler()), requestAs("user_idle"))
	serve(rl.OrganizationWriteMiddleware()(okHandler()), requestAs("user_idle"))

	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 || rl.OrgWriteLimiterCount() != 1 {
		t.Fatal("recently used entries should survive cleanup")
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if got := rl.GeneralLimiterCount(); got != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", got)
	}
	if got := rl.OrgWriteLimiterCount(); got != 0 {
		t.Errorf("OrgWriteLimiterCount = %d, want 0", got)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

func TestRateLimitMiddleware_InChainWithSession(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(2, 10))
	defer rl.Stop()

	handler := NewSessionMiddleware(sessionFinderFor("rl-session", "user_chain"))(rl.GeneralMiddleware()(okHandler()))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "rl-session"})
		return req
	}

	for i := 0; i < 2; i++ {
		if w := serve(handler, newReq()); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	if w := serve(handler, newReq()); w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig(120, 20)

	if cfg.GeneralRate != 2.0 {
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if want := rate.Limit(20.0 / 60.0); cfg.OrgWriteRate != want {
		t.Errorf("OrgWriteRate = %f, want %f", cfg.OrgWriteRate, want)
	}
	if cfg.OrgWriteBurst != 20 {
		t.Errorf("OrgWriteBurst = %d, want 20", cfg.OrgWriteBurst)
	}
	if cfg.CleanupInterval <= 0 {
		t.Error("CleanupInterval should be positive")
	}
}
