package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/yieldvision/internal/auth"
	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/repository"
)

// --- ヘルパー ---

func newTestDirectory(t *testing.T) *auth.Directory {
	t.Helper()
	h, err := auth.NewSecretHasher(auth.HasherConfig{Memory: 64, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
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

// okHandler は200を返し、呼び出されたことを記録するハンドラー。
func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

// parseErrorBody はレスポンスボディを統一エラーフォーマットとしてパースする。
func parseErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v (body=%q)", err, w.Body.String())
	}
	return body
}

// --- モック定義 ---

type mockProviderLoader struct {
	providerFn func(ctx context.Context, clientID string) (*auth.Provider, error)
}

func (m *mockProviderLoader) Provider(ctx context.Context, clientID string) (*auth.Provider, error) {
	return m.providerFn(ctx, clientID)
}

type mockRecorder struct {
	rejections []string
	statuses   []int
	latencies  int
}

func (m *mockRecorder) RecordGuardRejection(path string)   { m.rejections = append(m.rejections, path) }
func (m *mockRecorder) RecordHTTPStatus(code int)          { m.statuses = append(m.statuses, code) }
func (m *mockRecorder) RecordRequestLatency(time.Duration) { m.latencies++ }
