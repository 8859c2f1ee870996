// Package model はドメインモデルを定義する。
package model

import "time"

// TokenType はトークンの用途種別を表す。
// 発行時と検証時の両方で必ず一致を確認する閉じた列挙。
type TokenType string

const (
	// TokenTypeAccess はAPIアクセス用の短命トークン。永続化しない。
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh はトークンペア再発行用の長命トークン。
	TokenTypeRefresh TokenType = "refresh"
	// TokenTypeResetPassword はパスワード再設定用のワンタイムトークン。
	TokenTypeResetPassword TokenType = "resetPassword"
	// TokenTypeVerifyEmail はメールアドレス確認用のワンタイムトークン。
	// 登録前に発行されるため所有者を持たない場合がある。
	TokenTypeVerifyEmail TokenType = "verifyEmail"
)

// IsValid は既知のトークン種別かどうかを返す。
func (t TokenType) IsValid() bool {
	switch t {
	case TokenTypeAccess, TokenTypeRefresh, TokenTypeResetPassword, TokenTypeVerifyEmail:
		return true
	}
	return false
}

// Token は永続化された署名付きトークンを表す。
// accessトークンは署名と有効期限のみで検証するため保存されない。
// UserIDは登録前のverifyEmailトークンでは空になる。
type Token struct {
	ID            string
	Value         string
	UserID        string
	Type          TokenType
	ExpiresAt     time.Time
	IsBlacklisted bool
	CreatedAt     time.Time
}

// TokenWithExpiry は署名済みトークン文字列と有効期限の組。
type TokenWithExpiry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}

// TokenPair はaccess/refreshトークンの組。
type TokenPair struct {
	Access  TokenWithExpiry `json:"access"`
	Refresh TokenWithExpiry `json:"refresh"`
}
