// Package model はドメインモデルを定義する。
package model

import "time"

// ContactType は新着通知の送信チャネルを表す。
type ContactType string

const (
	// ContactTypeEmail はメールによる通知。
	ContactTypeEmail ContactType = "email"
	// ContactTypeTelegram はTelegramによる通知。未実装のため受け付けるが送信しない。
	ContactTypeTelegram ContactType = "telegram"
)

// AllowedIntervals は巡回間隔（分）として指定可能な値の集合。
// これ以外の任意の値は受け付けない。
var AllowedIntervals = []int{5, 10, 30, 60, 120, 300, 720, 1440}

// IsAllowedInterval は巡回間隔が許可された値かどうかを返す。
func IsAllowedInterval(minutes int) bool {
	for _, v := range AllowedIntervals {
		if v == minutes {
			return true
		}
	}
	return false
}

// Track はユーザーが保存した検索条件の巡回設定を表す。
// LastPostTokenは前回確認済みの最新掲載のトークンで、
// 新着判定のカーソルとして使用する。
type Track struct {
	ID              string
	UserID          string
	Title           string
	Query           string // 保存された検索URL（divar.ir/s/ 形式）
	IntervalMinutes int
	IsActive        bool
	LastCheckTime   time.Time
	LastPostToken   string
	ContactType     ContactType
	ContactAddress  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
