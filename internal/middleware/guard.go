package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/yieldvision/internal/model"
)

// GuardRecorder はガードによる拒否を記録するインターフェース。
type GuardRecorder interface {
	RecordGuardRejection(path string)
}

// GuardConfig はルートガードの設定。
type GuardConfig struct {
	// Predicate がfalseを返したリクエストは代替レスポンスに置き換える。nilの場合はSessionPresent。
	Predicate func(r *http.Request) bool

	// Notice は代替レスポンスのメッセージ。ビューごとに固定。
	Notice string

	// Recorder はnil可。
	Recorder GuardRecorder
}

// SessionPresent はリクエストのクライアントがログイン中かどうかを返す。
func SessionPresent(r *http.Request) bool {
	p, ok := ProviderFromContext(r.Context())
	return ok && p.IsAuthenticated()
}

// NewGuard は保護対象のハンドラーをラップするミドルウェアを返す。
// 条件を満たさないリクエストには 401 LOGIN_REQUIRED と固定のメッセージを返し、
// ラップ先のハンドラーは呼び出さない。
func NewGuard(config GuardConfig) func(next http.Handler) http.Handler {
	predicate := config.Predicate
	if predicate == nil {
		predicate = SessionPresent
	}
	apiErr := model.NewLoginRequiredError(config.Notice)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed(predicate, r) {
				next.ServeHTTP(w, r)
				return
			}

			if config.Recorder != nil {
				config.Recorder.RecordGuardRejection(r.URL.Path)
			}
			WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
		})
	}
}

// RequireSession はログイン必須のガードを返す。
func RequireSession(notice string) func(next http.Handler) http.Handler {
	return NewGuard(GuardConfig{Notice: notice})
}

// allowed は条件を評価する。条件がpanicした場合は拒否として扱う。
func allowed(predicate func(*http.Request) bool, r *http.Request) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("guard predicate panicked",
				slog.Any("panic", rec),
				slog.String("path", r.URL.Path),
			)
			ok = false
		}
	}()
	return predicate(r)
}
