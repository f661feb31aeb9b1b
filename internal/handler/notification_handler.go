package handler

import (
	"net/http"

	"github.com/hitoshi/yieldvision/internal/notify"
)

// NotificationSource はクライアントの通知を取り出すインターフェース。
type NotificationSource interface {
	Drain(clientID string) []notify.Notification
}

// NotificationHandler は通知キューを返すHTTPハンドラー。
type NotificationHandler struct {
	source NotificationSource
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(source NotificationSource) *NotificationHandler {
	return &NotificationHandler{source: source}
}

type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// Drain は未読の通知を古い順に返し、キューを空にする。
// GET /api/notifications
func (h *NotificationHandler) Drain(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrError(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: h.source.Drain(clientID),
	})
}
