// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/wallert/internal/model"
)

// ErrDuplicateEmail はメールアドレスの一意性制約違反を表す。
// ストア固有のエラーコードを上位層に漏らさないための変換先。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが重複している場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// MarkEmailVerified はメールアドレス確認済みフラグを立てる。
	MarkEmailVerified(ctx context.Context, id string) error
}

// TokenRepository は永続化トークンの永続化インターフェース。
// accessトークンは保存されないため、ここを通るのは
// refresh/resetPassword/verifyEmailのみ。
type TokenRepository interface {
	// Create はトークンを保存する。
	Create(ctx context.Context, token *model.Token) error

	// FindByValueAndType は署名済み文字列と種別でブラックリスト外の
	// トークンを検索する。見つからない場合はnilを返す。
	// 有効期限の判定は行わない。呼び出し側が必ず現在時刻と比較すること。
	FindByValueAndType(ctx context.Context, value string, typ model.TokenType) (*model.Token, error)

	// DeleteByID は指定IDのトークンを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserAndType は指定ユーザーの指定種別トークンを全て削除する。
	// 削除した件数を返す。
	DeleteByUserAndType(ctx context.Context, userID string, typ model.TokenType) (int64, error)

	// RotateRefresh は同一トランザクション内で、所有者の既存refreshトークンを
	// 全て削除してから新しいトークンを保存する。
	// 所有者あたり最大1つのrefreshトークンという不変条件を保証する。
	RotateRefresh(ctx context.Context, token *model.Token) error

	// DeleteExpired は有効期限がbeforeより前のトークンを削除し、件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TrackRepository は巡回設定の永続化インターフェース。
type TrackRepository interface {
	// Create は巡回設定を作成する。
	Create(ctx context.Context, track *model.Track) error

	// FindByIDAndUser は指定IDかつ指定所有者の巡回設定を取得する。
	// 見つからない（または所有者が異なる）場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Track, error)

	// ListByUser は指定ユーザーの巡回設定一覧を作成日時順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Track, error)

	// ListAll は全巡回設定を返す。ポーリングエンジンのティック処理で使用する。
	ListAll(ctx context.Context) ([]*model.Track, error)

	// UpdateStatus は有効/無効フラグを更新する。
	UpdateStatus(ctx context.Context, id string, isActive bool) error

	// Delete は指定IDの巡回設定を削除する。
	Delete(ctx context.Context, id string) error

	// UpdateCheckpoint は巡回結果（最終確認時刻とカーソル）を条件付きで更新する。
	// last_check_timeがprevLastCheckと一致する行のみ更新し、更新できたかを返す。
	// ティックが重なった場合の二重通知をこの条件で防ぐ。
	UpdateCheckpoint(ctx context.Context, id string, lastCheck time.Time, lastPostToken string, prevLastCheck time.Time) (bool, error)
}
