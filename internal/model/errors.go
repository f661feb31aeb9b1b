// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, prediction, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	ErrCodeLoginRequired      = "LOGIN_REQUIRED"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNoPrediction       = "NO_PREDICTION"
	ErrCodeChartNotFound      = "CHART_NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレスの未登録とパスワード不一致は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewDuplicateAccountError はメールアドレス重複エラーを生成する。
func NewDuplicateAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  "Email already in use.",
		Category: "auth",
		Action:   "Log in with the existing account or use another email address.",
	}
}

// NewLoginRequiredError は未ログイン時の代替表示を生成する。
// notice はビューごとに固定された文言。
func NewLoginRequiredError(notice string) *APIError {
	return &APIError{
		Code:     ErrCodeLoginRequired,
		Message:  notice,
		Category: "auth",
		Action:   "Log in and try again.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "Correct the highlighted field and submit again.",
	}
}

// NewNoPredictionError は予測結果が未作成の場合のエラーを生成する。
func NewNoPredictionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPrediction,
		Message:  "No prediction has been made yet.",
		Category: "prediction",
		Action:   "Submit the prediction form first.",
	}
}

// NewChartNotFoundError は未知のチャート名に対するエラーを生成する。
func NewChartNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeChartNotFound,
		Message:  fmt.Sprintf("chart not found: %s", name),
		Category: "validation",
		Action:   "Use one of the names listed by /api/charts.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please try again in a moment.",
	}
}
