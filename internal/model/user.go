// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashにはargon2idのエンコード済みハッシュを保持する。
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	IsEmailVerified bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PublicUser はAPIレスポンスに含めるユーザーの公開表現。
// パスワードハッシュを除外する。
type PublicUser struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

// Public はAPIレスポンス用の公開表現を返す。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		IsEmailVerified: u.IsEmailVerified,
	}
}
