package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/wallert/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用した永続化トークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Create はトークンを保存する。
// user_idは登録前のverifyEmailトークンでは空文字のため、NULLに変換して保存する。
func (r *PostgresTokenRepo) Create(ctx context.Context, token *model.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (id, token, user_id, type, expires_at, is_blacklisted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.Value, nullableID(token.UserID), string(token.Type),
		token.ExpiresAt, token.IsBlacklisted, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// FindByValueAndType は署名済み文字列と種別でブラックリスト外のトークンを検索する。
// 見つからない場合はnilを返す。有効期限の判定は呼び出し側の責務。
func (r *PostgresTokenRepo) FindByValueAndType(ctx context.Context, value string, typ model.TokenType) (*model.Token, error) {
	token := &model.Token{}
	var userID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token, user_id, type, expires_at, is_blacklisted, created_at
		 FROM tokens
		 WHERE token = $1 AND type = $2 AND is_blacklisted = FALSE`,
		value, string(typ),
	).Scan(&token.ID, &token.Value, &userID, &token.Type,
		&token.ExpiresAt, &token.IsBlacklisted, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	token.UserID = userID.String
	return token, nil
}

// DeleteByID は指定IDのトークンを削除する。
func (r *PostgresTokenRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteByUserAndType は指定ユーザーの指定種別トークンを全て削除する。
func (r *PostgresTokenRepo) DeleteByUserAndType(ctx context.Context, userID string, typ model.TokenType) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE user_id = $1 AND type = $2`,
		userID, string(typ),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// RotateRefresh は所有者の既存refreshトークンの削除と新トークンの保存を
// 同一トランザクションで行う。
// 削除と挿入を分けると並行リフレッシュ時にトークンが0個または2個になる
// 競合があるため、必ずこのメソッドを経由すること。
func (r *PostgresTokenRepo) RotateRefresh(ctx context.Context, token *model.Token) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM tokens WHERE user_id = $1 AND type = $2`,
		token.UserID, string(model.TokenTypeRefresh),
	)
	if err != nil {
		return fmt.Errorf("failed to delete prior refresh tokens: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tokens (id, token, user_id, type, expires_at, is_blacklisted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.Value, nullableID(token.UserID), string(token.Type),
		token.ExpiresAt, token.IsBlacklisted, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteExpired は有効期限を過ぎたトークンを削除する。
// 期限切れトークンはどの検証経路でも拒否されるため、残す意味はない。
func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at < $1`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// nullableID は空文字のIDをNULLに変換する。
func nullableID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
