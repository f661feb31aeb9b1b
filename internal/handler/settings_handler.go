package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/yieldvision/internal/model"
)

// SettingsServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type SettingsServiceInterface interface {
	Get(ctx context.Context, clientID string, identity *model.User) (*model.Settings, error)
	UpdateProfile(ctx context.Context, clientID string, p model.Profile) (*model.Profile, error)
	UpdateNotifications(ctx context.Context, clientID string, prefs model.NotificationPreferences) (*model.NotificationPreferences, error)
}

// SettingsHandler はプロフィールと通知設定のHTTPハンドラー。
type SettingsHandler struct {
	service SettingsServiceInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// GetSettings は保存済みの設定を返す。
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerOrError(w, r)
	if !ok {
		return
	}

	identity, _ := provider.Current()
	s, err := h.service.Get(r.Context(), provider.ClientID(), identity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// UpdateProfile はプロフィールを更新する。
// PUT /api/settings/profile
func (h *SettingsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrError(w, r)
	if !ok {
		return
	}

	var req model.Profile
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	p, err := h.service.UpdateProfile(r.Context(), clientID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// UpdateNotifications は通知設定を更新する。
// 省略されたフィールドは初期値になる。
// PUT /api/settings/notifications
func (h *SettingsHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrError(w, r)
	if !ok {
		return
	}

	req := model.DefaultNotificationPreferences()
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, apiErr)
		return
	}

	prefs, err := h.service.UpdateNotifications(r.Context(), clientID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, prefs)
}
