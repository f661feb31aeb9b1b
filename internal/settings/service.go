// Package settings は設定画面（プロフィール・通知設定）のドメインロジックを提供する。
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/yieldvision/internal/model"
	"github.com/hitoshi/yieldvision/internal/notify"
	"github.com/hitoshi/yieldvision/internal/repository"
	"github.com/hitoshi/yieldvision/internal/security"
)

// クライアントストレージ上のキー
const (
	ProfileStorageKey       = "profile"
	NotificationsStorageKey = "notificationPreferences"
)

// 通知メッセージ
const (
	msgProfileUpdated       = "Profile updated successfully"
	msgProfileFailed        = "Failed to update profile"
	msgNotificationsUpdated = "Notification preferences updated"
	msgNotificationsFailed  = "Failed to update notification preferences"
)

// Service は設定画面のサービス層。
// プロフィールはセッションのアイデンティティとは別に保存し、アイデンティティは変更しない。
type Service struct {
	repo      repository.StorageRepository
	emitter   notify.Emitter
	sanitizer security.TextSanitizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.StorageRepository, emitter notify.Emitter, sanitizer security.TextSanitizer) *Service {
	if emitter == nil {
		emitter = notify.Discard{}
	}
	return &Service{
		repo:      repo,
		emitter:   emitter,
		sanitizer: sanitizer,
	}
}

// Get は保存済みの設定を返す。
// プロフィールが未保存の場合はログイン中のアイデンティティから初期値を作る。
func (s *Service) Get(ctx context.Context, clientID string, identity *model.User) (*model.Settings, error) {
	out := &model.Settings{Notifications: model.DefaultNotificationPreferences()}
	if identity != nil {
		out.Profile = model.Profile{Name: identity.Name, Email: identity.Email}
	}

	if _, err := s.load(ctx, clientID, ProfileStorageKey, &out.Profile); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, clientID, NotificationsStorageKey, &out.Notifications); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile はプロフィールを検証・サニタイズして保存する。
func (s *Service) UpdateProfile(ctx context.Context, clientID string, p model.Profile) (*model.Profile, error) {
	clean := model.Profile{
		Name:  s.sanitizer.PlainText(p.Name),
		Email: p.Email,
		Bio:   s.sanitizer.Bio(p.Bio),
	}
	if !model.ValidName(clean.Name) {
		return nil, model.NewValidationError("name", fmt.Sprintf("must be at least %d characters", model.MinNameLength))
	}
	if !model.ValidEmail(clean.Email) {
		return nil, model.NewValidationError("email", "must be a valid email address")
	}

	if err := s.store(ctx, clientID, ProfileStorageKey, clean); err != nil {
		s.emitter.Emit(clientID, notify.SeverityError, msgProfileFailed)
		return nil, err
	}
	s.emitter.Emit(clientID, notify.SeveritySuccess, msgProfileUpdated)
	return &clean, nil
}

// UpdateNotifications は通知設定を保存する。
func (s *Service) UpdateNotifications(ctx context.Context, clientID string, prefs model.NotificationPreferences) (*model.NotificationPreferences, error) {
	if err := s.store(ctx, clientID, NotificationsStorageKey, prefs); err != nil {
		s.emitter.Emit(clientID, notify.SeverityError, msgNotificationsFailed)
		return nil, err
	}
	s.emitter.Emit(clientID, notify.SeveritySuccess, msgNotificationsUpdated)
	return &prefs, nil
}

func (s *Service) store(ctx context.Context, clientID, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%sのエンコードに失敗しました: %w", key, err)
	}
	if err := s.repo.Set(ctx, clientID, key, raw); err != nil {
		return fmt.Errorf("%sの保存に失敗しました: %w", key, err)
	}
	return nil
}

// load は保存済みの値でvを上書きする。未保存・破損時はvをそのまま残す。
func (s *Service) load(ctx context.Context, clientID, key string, v any) (bool, error) {
	raw, err := s.repo.Get(ctx, clientID, key)
	if err != nil {
		return false, fmt.Errorf("%sの取得に失敗しました: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		slog.Warn("ignoring malformed stored settings",
			slog.String("client_id", clientID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false, nil
	}
	return true, nil
}
