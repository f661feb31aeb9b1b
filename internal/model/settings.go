package model

// Profile はユーザーが設定画面で編集するプロフィール。
// セッションのアイデンティティとは独立に保存される。
type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Bio   string `json:"bio"`
}

// NotificationPreferences は通知設定。
type NotificationPreferences struct {
	EmailNotifications bool `json:"emailNotifications"`
	PredictionAlerts   bool `json:"predictionAlerts"`
	MarketingEmails    bool `json:"marketingEmails"`
}

// DefaultNotificationPreferences は未保存時の通知設定を返す。
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailNotifications: true,
		PredictionAlerts:   true,
		MarketingEmails:    false,
	}
}

// Settings は設定画面の表示内容。
type Settings struct {
	Profile       Profile                 `json:"profile"`
	Notifications NotificationPreferences `json:"notifications"`
}
