package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/yieldvision/internal/auth"
	"github.com/hitoshi/yieldvision/internal/metrics"
	"github.com/hitoshi/yieldvision/internal/middleware"
	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/security"
)

// AuthRecorder は認証操作の結果を記録するインターフェース。
type AuthRecorder interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordLogout()
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
// セッションはセッションミドルウェアがコンテキストに格納したProviderが保持する。
type AuthHandler struct {
	sanitizer security.TextSanitizer
	recorder  AuthRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderがnilの場合は記録しない。
func NewAuthHandler(sanitizer security.TextSanitizer, recorder AuthRecorder) *AuthHandler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &AuthHandler{
		sanitizer: sanitizer,
		recorder:  recorder,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest はアカウント登録リクエストのボディ。
type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// meResponse は現在のセッション状態のAPIレスポンス。
type meResponse struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user"`
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerOrError(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	user, err := provider.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.recorder.RecordLogin(metrics.OutcomeInvalid)
			writeAPIErrorResponse(w, model.NewInvalidCredentialsError())
			return
		}
		h.recorder.RecordLogin(metrics.OutcomeError)
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordLogin(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusOK, user)
}

// Register は新しいアカウントを作成してログインする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerOrError(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	name, role, apiErr := h.validateRegistration(req)
	if apiErr != nil {
		h.recorder.RecordRegistration(metrics.OutcomeInvalid)
		writeAPIErrorResponse(w, apiErr)
		return
	}

	user, err := provider.Register(r.Context(), name, req.Email, req.Password, role)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDuplicateAccount):
		h.recorder.RecordRegistration(metrics.OutcomeDuplicate)
		writeAPIErrorResponse(w, model.NewDuplicateAccountError())
		return
	case errors.Is(err, auth.ErrInvalidRole):
		h.recorder.RecordRegistration(metrics.OutcomeInvalidRole)
		writeAPIErrorResponse(w, model.NewValidationError("role", "must be one of admin, researcher, farmer"))
		return
	default:
		h.recorder.RecordRegistration(metrics.OutcomeError)
		handleServiceError(w, r, err)
		return
	}

	h.recorder.RecordRegistration(metrics.OutcomeSuccess)
	writeJSON(w, http.StatusCreated, user)
}

// validateRegistration は登録フォームの入力を検証する。
// 名前はサニタイズ後の値を返す。
func (h *AuthHandler) validateRegistration(req registerRequest) (string, model.Role, *model.APIError) {
	name := h.sanitizer.PlainText(req.Name)
	if !model.ValidName(name) {
		return "", "", model.NewValidationError("name", fmt.Sprintf("must be at least %d characters", model.MinNameLength))
	}
	if !model.ValidEmail(req.Email) {
		return "", "", model.NewValidationError("email", "must be a valid email address")
	}
	if req.Password == "" {
		return "", "", model.NewValidationError("password", "must not be empty")
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		return "", "", model.NewValidationError("role", "must be one of admin, researcher, farmer")
	}
	return name, role, nil
}

// Logout はセッションを破棄する。ストレージの削除に失敗しても204を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerOrError(w, r)
	if !ok {
		return
	}

	if err := provider.Terminate(r.Context()); err != nil {
		// メモリ上のセッションは破棄済み
		slog.Error("failed to remove persisted session",
			slog.String("client_id", provider.ClientID()),
			slog.String("error", err.Error()),
		)
	}
	h.recorder.RecordLogout()

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション状態を返す。未ログインでも200を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerOrError(w, r)
	if !ok {
		return
	}

	user, authenticated := provider.Current()
	writeJSON(w, http.StatusOK, meResponse{
		Authenticated: authenticated,
		User:          user,
	})
}

// providerOrError はコンテキストのProviderを返す。
// セッションミドルウェアを通っていない場合はレスポンスを書き込んでfalseを返す。
func providerOrError(w http.ResponseWriter, r *http.Request) (*auth.Provider, bool) {
	provider, ok := middleware.ProviderFromContext(r.Context())
	if !ok {
		slog.Error("session provider missing from context", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return provider, true
}
