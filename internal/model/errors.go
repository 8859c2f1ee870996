// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// APIError は統一エラーフォーマットを表す。
// HTTPステータスと安定したエラーコード、UIに表示するメッセージを含む。
// 内部エラーの詳細（ストアのエラーコード等）は決して載せない。
type APIError struct {
	Status   int    // HTTPステータスコード
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, track, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailConflict      = "EMAIL_CONFLICT"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeTrackNotFound      = "TRACK_NOT_FOUND"
	ErrCodeInvalidInterval    = "INVALID_INTERVAL"
	ErrCodeInvalidQueryURL    = "INVALID_QUERY_URL"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeMailUnavailable    = "MAIL_UNAVAILABLE"
	ErrCodeFeedUnavailable    = "FEED_UNAVAILABLE"
)

// NewUnauthorizedError はトークンの欠落・失効・種別不一致に対するエラーを生成する。
// 再試行では回復しない。新しいトークンの取得が必要。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "トークンが無効か、有効期限が切れています。",
		Category: "auth",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザーの存在有無を推測させないため、メッセージは意図的に曖昧にする。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Status:   http.StatusForbidden,
		Code:     ErrCodeInvalidCredentials,
		Message:  "入力された情報が正しくありません。",
		Category: "auth",
	}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Status:   http.StatusConflict,
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
// パスワード再設定等、存在の開示が許容される文脈でのみ使用する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Status:   http.StatusNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "このメールアドレスのユーザーが見つかりません。",
		Category: "auth",
	}
}

// NewTrackNotFoundError は巡回設定未検出エラーを生成する。
// 他ユーザーの巡回設定へのアクセスも同じエラーになる。
func NewTrackNotFoundError() *APIError {
	return &APIError{
		Status:   http.StatusNotFound,
		Code:     ErrCodeTrackNotFound,
		Message:  "指定された巡回設定が見つかりません。",
		Category: "track",
	}
}

// NewInvalidIntervalError は巡回間隔が許可された値でない場合のエラーを生成する。
func NewInvalidIntervalError(minutes int) *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeInvalidInterval,
		Message:  fmt.Sprintf("巡回間隔が不正です: %d分", minutes),
		Category: "validation",
	}
}

// NewInvalidQueryURLError は検索URLが不正な場合のエラーを生成する。
func NewInvalidQueryURLError() *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeInvalidQueryURL,
		Message:  "検索URLの形式が正しくありません。",
		Category: "validation",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
	}
}

// NewMailUnavailableError はメール送信基盤の障害エラーを生成する。
// この層では再送しない。呼び出し側（ユーザー）が再試行を判断する。
func NewMailUnavailableError() *APIError {
	return &APIError{
		Status:   http.StatusServiceUnavailable,
		Code:     ErrCodeMailUnavailable,
		Message:  "メールの送信に失敗しました。しばらく待ってから再度お試しください。",
		Category: "system",
	}
}

// NewFeedUnavailableError は検索APIの障害エラーを生成する。
func NewFeedUnavailableError() *APIError {
	return &APIError{
		Status:   http.StatusServiceUnavailable,
		Code:     ErrCodeFeedUnavailable,
		Message:  "検索結果の取得に失敗しました。しばらく待ってから再度お試しください。",
		Category: "system",
	}
}
