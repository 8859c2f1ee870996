package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/wallert/internal/model"
)

// PostgresTrackRepo はPostgreSQLを使用した巡回設定リポジトリ。
type PostgresTrackRepo struct {
	db *sql.DB
}

// NewPostgresTrackRepo はPostgresTrackRepoを生成する。
func NewPostgresTrackRepo(db *sql.DB) *PostgresTrackRepo {
	return &PostgresTrackRepo{db: db}
}

const trackColumns = `id, user_id, title, query, interval_minutes, is_active,
	last_check_time, last_post_token, contact_type, contact_address, created_at, updated_at`

// Create は巡回設定を作成する。
func (r *PostgresTrackRepo) Create(ctx context.Context, track *model.Track) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tracks (`+trackColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		track.ID, track.UserID, track.Title, track.Query, track.IntervalMinutes,
		track.IsActive, track.LastCheckTime, track.LastPostToken,
		string(track.ContactType), track.ContactAddress, track.CreatedAt, track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// FindByIDAndUser は指定IDかつ指定所有者の巡回設定を取得する。
// 所有者が異なる場合も「見つからない」として扱い、nilを返す。
func (r *PostgresTrackRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Track, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find track: %w", err)
	}
	return track, nil
}

// ListByUser は指定ユーザーの巡回設定一覧を作成日時順で返す。
func (r *PostgresTrackRepo) ListByUser(ctx context.Context, userID string) ([]*model.Track, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// ListAll は全巡回設定を返す。ティック処理で使用する。
func (r *PostgresTrackRepo) ListAll(ctx context.Context) ([]*model.Track, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// UpdateStatus は有効/無効フラグを更新する。
func (r *PostgresTrackRepo) UpdateStatus(ctx context.Context, id string, isActive bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, isActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update track status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("track not found: %s", id)
	}
	return nil
}

// Delete は指定IDの巡回設定を削除する。
func (r *PostgresTrackRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return nil
}

// UpdateCheckpoint は巡回結果を条件付きで更新する。
// last_check_timeが前回読み取り時の値と一致する行のみ更新する。
// 更新できなかった場合（並行ティックに先を越された場合）はfalseを返す。
func (r *PostgresTrackRepo) UpdateCheckpoint(ctx context.Context, id string, lastCheck time.Time, lastPostToken string, prevLastCheck time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracks
		 SET last_check_time = $2, last_post_token = $3, updated_at = now()
		 WHERE id = $1 AND last_check_time = $4`,
		id, lastCheck, lastPostToken, prevLastCheck,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update checkpoint: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// scanner はsql.Rowとsql.Rowsを同じ関数で読むためのインターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanTrack(s scanner) (*model.Track, error) {
	track := &model.Track{}
	var contactType string
	err := s.Scan(
		&track.ID, &track.UserID, &track.Title, &track.Query, &track.IntervalMinutes,
		&track.IsActive, &track.LastCheckTime, &track.LastPostToken,
		&contactType, &track.ContactAddress, &track.CreatedAt, &track.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	track.ContactType = model.ContactType(contactType)
	return track, nil
}

func collectTracks(rows *sql.Rows) ([]*model.Track, error) {
	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracks: %w", err)
	}
	return tracks, nil
}

// compile-time interface check
var _ TrackRepository = (*PostgresTrackRepo)(nil)
