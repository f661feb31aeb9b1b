package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yieldvision/internal/auth"
)

var providerContextKey = contextKey("session_provider")

// ProviderLoader はクライアントのセッションプロバイダーを取得するインターフェース。
// auth.Manager が実装する。
type ProviderLoader interface {
	Provider(ctx context.Context, clientID string) (*auth.Provider, error)
}

// NewSessionMiddleware はクライアントのセッションプロバイダーを初期化済みの状態で
// リクエストコンテキストに注入するミドルウェアを返す。
// このミドルウェア自体はリクエストを拒否しない。保護はガードが行う。
func NewSessionMiddleware(loader ProviderLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := ClientIDFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			provider, err := loader.Provider(r.Context(), clientID)
			if err != nil {
				slog.Warn("session provider initialization failed",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
			}
			if provider == nil {
				next.ServeHTTP(w, r)
				return
			}

			if f := logFieldsFromContext(r.Context()); f != nil {
				f.provider = provider
			}

			next.ServeHTTP(w, r.WithContext(ContextWithProvider(r.Context(), provider)))
		})
	}
}

// ProviderFromContext はリクエストコンテキストからセッションプロバイダーを取得する。
func ProviderFromContext(ctx context.Context) (*auth.Provider, bool) {
	p, ok := ctx.Value(providerContextKey).(*auth.Provider)
	return p, ok && p != nil
}

// ContextWithProvider はコンテキストにセッションプロバイダーを注入する。
func ContextWithProvider(ctx context.Context, p *auth.Provider) context.Context {
	return context.WithValue(ctx, providerContextKey, p)
}

// UserIDFromContext はログイン中のユーザーIDを返す。未ログインの場合は空文字列とfalse。
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := ProviderFromContext(ctx)
	if !ok {
		return "", false
	}
	u, ok := p.Current()
	if !ok {
		return "", false
	}
	return u.ID, true
}
