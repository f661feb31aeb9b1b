package middleware

import (
	"net/http"
	"strings"
)

// corsAllowedMethods はフロントエンドが使うメソッドのみ。
var corsAllowedMethods = strings.Join([]string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions,
}, ", ")

// corsPreflightMaxAge はプリフライト結果をブラウザにキャッシュさせる秒数。
const corsPreflightMaxAge = "600"

// NewCORSMiddleware は指定されたオリジンに対するCORSミドルウェアを返す。
// Originヘッダーが許可オリジンと一致する場合のみCORSヘッダーを付与する。
// client_id CookieとCSRF Cookieを送らせるためcredentialsを許可する。
// プリフライトリクエストには204で応答し、ハンドラーには渡さない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowHeaders := "Content-Type, " + csrfHeaderName

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || origin != allowedOrigin {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", corsPreflightMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
