package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/yieldvision/internal/auth"
	"github.com/hitoshi/yieldvision/internal/middleware"
	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// --- ヘルパー ---

// fastHasherConfig はテスト用に軽量化したargon2パラメータ。
var fastHasherConfig = auth.HasherConfig{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

func newTestDirectory(t *testing.T) *auth.Directory {
	t.Helper()
	h, err := auth.NewSecretHasher(fastHasherConfig)
	if err != nil {
		t.Fatal(err)
	}
	d, err := auth.NewDirectory(h, model.DefaultSeedCredentials())
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// newTestProvider は初期化済みのProviderを返す。loggedIn がtrueの場合は管理者でログインしておく。
func newTestProvider(t *testing.T, clientID string, loggedIn bool) *auth.Provider {
	t.Helper()
	p := auth.NewProvider(repository.Bind(repository.NewMemoryStorageRepo(), clientID), newTestDirectory(t), nil, auth.ProviderConfig{})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if loggedIn {
		if _, err := p.Authenticate(context.Background(), "admin@example.com", "admin123"); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// withProvider はクライアントIDとProviderをリクエストコンテキストに設定する。
func withProvider(req *http.Request, p *auth.Provider) *http.Request {
	ctx := middleware.ContextWithClientID(req.Context(), p.ClientID())
	ctx = middleware.ContextWithProvider(ctx, p)
	return req.WithContext(ctx)
}

// withClientID はクライアントIDのみをリクエストコンテキストに設定する。
func withClientID(req *http.Request, clientID string) *http.Request {
	return req.WithContext(middleware.ContextWithClientID(req.Context(), clientID))
}

func parseErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode body: %v (raw=%q)", err, w.Body.String())
	}
}

// --- モック定義 ---

type mockAuthRecorder struct {
	logins        []string
	registrations []string
	logouts       int
}

func (m *mockAuthRecorder) RecordLogin(outcome string)        { m.logins = append(m.logins, outcome) }
func (m *mockAuthRecorder) RecordRegistration(outcome string) { m.registrations = append(m.registrations, outcome) }
func (m *mockAuthRecorder) RecordLogout()                     { m.logouts++ }

type mockPredictionService struct {
	predictFn func(ctx context.Context, clientID string, in model.PredictionInput) (*model.Prediction, error)
	latestFn  func(ctx context.Context, clientID string) (*model.Prediction, error)
}

func (m *mockPredictionService) Predict(ctx context.Context, clientID string, in model.PredictionInput) (*model.Prediction, error) {
	if m.predictFn != nil {
		return m.predictFn(ctx, clientID, in)
	}
	return &model.Prediction{Input: in}, nil
}

func (m *mockPredictionService) Latest(ctx context.Context, clientID string) (*model.Prediction, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, clientID)
	}
	return nil, model.NewNoPredictionError()
}

type mockPredictionRecorder struct {
	crops []string
}

func (m *mockPredictionRecorder) RecordPrediction(cropType string) {
	m.crops = append(m.crops, cropType)
}

type mockSettingsService struct {
	getFn                 func(ctx context.Context, clientID string, identity *model.User) (*model.Settings, error)
	updateProfileFn       func(ctx context.Context, clientID string, p model.Profile) (*model.Profile, error)
	updateNotificationsFn func(ctx context.Context, clientID string, prefs model.NotificationPreferences) (*model.NotificationPreferences, error)
}

func (m *mockSettingsService) Get(ctx context.Context, clientID string, identity *model.User) (*model.Settings, error) {
	if m.getFn != nil {
		return m.getFn(ctx, clientID, identity)
	}
	return &model.Settings{}, nil
}

func (m *mockSettingsService) UpdateProfile(ctx context.Context, clientID string, p model.Profile) (*model.Profile, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, clientID, p)
	}
	return &p, nil
}

func (m *mockSettingsService) UpdateNotifications(ctx context.Context, clientID string, prefs model.NotificationPreferences) (*model.NotificationPreferences, error) {
	if m.updateNotificationsFn != nil {
		return m.updateNotificationsFn(ctx, clientID, prefs)
	}
	return &prefs, nil
}
