package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/yieldvision/internal/auth"
	"github.com/hitoshi/yieldvision/internal/chart"
	"github.com/hitoshi/yieldvision/internal/metrics"
	"github.com/hitoshi/yieldvision/internal/middleware"
	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/prediction"
	"github.com/hitoshi/yieldvision/internal/repository"
	"github.com/hitoshi/yieldvision/internal/security"
	"github.com/hitoshi/yieldvision/internal/settings"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// --- 統合テスト用ルーター構築ヘルパー ---

func createTestRouter(t *testing.T, limits middleware.RateLimiterConfig) http.Handler {
	t.Helper()

	repo := repository.NewMemoryStorageRepo()
	inbox := notify.NewInbox(0)
	sanitizer := security.NewTextSanitizer()

	manager := auth.NewManager(repo, newTestDirectory(t), inbox, auth.ManagerConfig{})
	t.Cleanup(manager.Stop)

	limiter := middleware.NewRateLimiter(limits)
	t.Cleanup(limiter.Stop)

	catalog, err := chart.NewCatalog()
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	metrics.RegisterProviderGauge(reg, manager.Count)

	return NewRouter(&RouterDeps{
		Logger:            discardLogger(),
		CORSAllowedOrigin: "http://localhost:5173",
		ProviderLoader:    manager,
		RateLimiter:       limiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		Sanitizer:         sanitizer,
		PredictionService: prediction.NewService(repo, inbox, prediction.Config{}),
		SettingsService:   settings.NewService(repo, inbox, sanitizer),
		Charts:            catalog,
		Notifications:     inbox,
	})
}

func generousLimits() middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		AuthRate:        rate.Limit(100),
		AuthBurst:       100,
		CleanupInterval: time.Minute,
	}
}

// testBrowser はCookieを保持してリクエストを送るテスト用クライアント。
type testBrowser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
	csrf    string
}

func newTestBrowser(t *testing.T, router http.Handler) *testBrowser {
	return &testBrowser{t: t, router: router, cookies: make(map[string]*http.Cookie)}
}

// fetchCSRF はCSRFトークンを取得し、以降の状態変更リクエストに付与する。
func (b *testBrowser) fetchCSRF() {
	b.t.Helper()
	w := b.do(http.MethodGet, "/api/csrf-token", "")
	if w.Code != http.StatusOK {
		b.t.Fatalf("GET /api/csrf-token status = %d", w.Code)
	}
	var body map[string]string
	decodeBody(b.t, w, &body)
	b.csrf = body["token"]
	if b.csrf == "" {
		b.t.Fatal("empty CSRF token")
	}
}

func (b *testBrowser) do(method, target, body string) *httptest.ResponseRecorder {
	b.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.csrf != "" {
		req.Header.Set("X-CSRF-Token", b.csrf)
	}
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	w := httptest.NewRecorder()
	b.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return w
}

// --- テスト ---

func TestRouter_FullSessionFlow(t *testing.T) {
	b := newTestBrowser(t, createTestRouter(t, generousLimits()))
	b.fetchCSRF()

	if b.cookies["client_id"] == nil {
		t.Fatal("expected client_id cookie")
	}

	// 1. 未ログインでは予測できない
	w := b.do(http.MethodPost, "/api/predictions", `{"cropType":"corn"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("step1: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := parseErrorBody(t, w); body.Code != model.ErrCodeLoginRequired || body.Message != PredictionLoginNotice {
		t.Fatalf("step1: body = %+v", body)
	}

	// 2. ログイン
	w = b.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"admin123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("step2: status = %d, body=%s", w.Code, w.Body.String())
	}

	// 3. /auth/me
	w = b.do(http.MethodGet, "/auth/me", "")
	var me meResponse
	decodeBody(t, w, &me)
	if !me.Authenticated || me.User.Role != model.RoleAdmin {
		t.Fatalf("step3: me = %+v", me)
	}

	// 4. 予測
	w = b.do(http.MethodPost, "/api/predictions", `{"cropType":"corn"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("step4: status = %d, body=%s", w.Code, w.Body.String())
	}
	var created model.Prediction
	decodeBody(t, w, &created)

	w = b.do(http.MethodGet, "/api/predictions/latest", "")
	if w.Code != http.StatusOK {
		t.Fatalf("step4: latest status = %d", w.Code)
	}
	var latest model.Prediction
	decodeBody(t, w, &latest)
	if latest.Input.CropType != model.CropCorn || latest.Result.Yield != created.Result.Yield {
		t.Errorf("step4: latest = %+v, created = %+v", latest, created)
	}

	// 5. 設定
	w = b.do(http.MethodGet, "/api/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("step5: status = %d", w.Code)
	}
	var s model.Settings
	decodeBody(t, w, &s)
	if s.Profile.Email != "admin@example.com" {
		t.Errorf("step5: settings = %+v", s)
	}

	// 6. 通知
	w = b.do(http.MethodGet, "/api/notifications", "")
	var notes notificationsResponse
	decodeBody(t, w, &notes)
	var msgs []string
	for _, n := range notes.Notifications {
		msgs = append(msgs, n.Message)
	}
	if strings.Join(msgs, "|") != "Login successful!|Prediction successful!" {
		t.Errorf("step6: notifications = %v", msgs)
	}

	// 7. ログアウト後は保護ルートに入れない
	w = b.do(http.MethodPost, "/auth/logout", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("step7: logout status = %d", w.Code)
	}
	w = b.do(http.MethodGet, "/api/settings", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("step7: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if body := parseErrorBody(t, w); body.Message != SettingsLoginNotice {
		t.Errorf("step7: message = %q", body.Message)
	}
}

func TestRouter_SessionIsPerClient(t *testing.T) {
	router := createTestRouter(t, generousLimits())

	alice := newTestBrowser(t, router)
	alice.fetchCSRF()
	if w := alice.do(http.MethodPost, "/auth/login", `{"email":"farmer@example.com","password":"farm123"}`); w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}

	bob := newTestBrowser(t, router)
	w := bob.do(http.MethodGet, "/auth/me", "")
	var me meResponse
	decodeBody(t, w, &me)
	if me.Authenticated {
		t.Error("session leaked to another client")
	}
}

func TestRouter_StateChangingRequestRequiresCSRF(t *testing.T) {
	b := newTestBrowser(t, createTestRouter(t, generousLimits()))
	b.do(http.MethodGet, "/auth/me", "")

	w := b.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"admin123"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := parseErrorBody(t, w); body.Code != model.ErrCodeCSRFInvalid {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRouter_AuthRateLimit(t *testing.T) {
	limits := generousLimits()
	limits.AuthRate = rate.Limit(0.001)
	limits.AuthBurst = 2

	b := newTestBrowser(t, createTestRouter(t, limits))
	b.fetchCSRF()

	for i := 0; i < 2; i++ {
		if w := b.do(http.MethodPost, "/auth/login", `{"email":"x@example.com","password":"x"}`); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i, w.Code, http.StatusUnauthorized)
		}
	}

	w := b.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"admin123"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// ログアウトと参照は制限の対象外
	if w := b.do(http.MethodGet, "/auth/me", ""); w.Code != http.StatusOK {
		t.Errorf("GET /auth/me status = %d", w.Code)
	}
}

// client_id Cookieを毎回捨てても認証試行の制限はリセットされない。
func TestRouter_AuthRateLimit_CookielessAttempts(t *testing.T) {
	limits := generousLimits()
	limits.AuthRate = rate.Limit(0.001)
	limits.AuthBurst = 2

	router := createTestRouter(t, limits)

	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login",
			strings.NewReader(`{"email":"admin@example.com","password":"guess"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "forged"})
		req.Header.Set("X-CSRF-Token", "forged")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	if limited != 8 {
		t.Errorf("rate limited %d of 10 cookieless attempts, want 8", limited)
	}
}

func TestRouter_ChartsArePublic(t *testing.T) {
	b := newTestBrowser(t, createTestRouter(t, generousLimits()))

	w := b.do(http.MethodGet, "/api/charts/crop-distribution", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]json.RawMessage
	decodeBody(t, w, &body)
	if string(body["notice"]) != `"`+AnonymousChartNotice+`"` {
		t.Errorf("notice = %s", body["notice"])
	}
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	router := createTestRouter(t, generousLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "client_id" {
			t.Error("/health must not issue a client_id cookie")
		}
	}

	// メトリクスにはログイン結果が反映される
	b := newTestBrowser(t, router)
	b.fetchCSRF()
	b.do(http.MethodPost, "/auth/login", `{"email":"admin@example.com","password":"admin123"}`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", w.Code)
	}
	out := w.Body.String()
	for _, want := range []string{
		`yieldvision_login_attempts_total{outcome="success"} 1`,
		"yieldvision_session_providers 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("/metrics missing %q", want)
		}
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := createTestRouter(t, generousLimits())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := createTestRouter(t, generousLimits())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
