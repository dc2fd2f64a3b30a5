package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/eyev0/wakeupbot/internal/domain"
)

const recordColumns = `id, user_id, created_at, updated_at, wakeup_time, mood, emoji, note`

func scanRecord(s scanner) (*domain.SleepRecord, error) {
	var (
		rec       domain.SleepRecord
		createdAt int64
		updatedAt int64
		wakeup    sql.NullInt64
		mood      sql.NullString
		emoji     sql.NullString
		note      sql.NullString
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &createdAt, &updatedAt, &wakeup, &mood, &emoji, &note); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromUnix(createdAt)
	rec.UpdatedAt = fromUnix(updatedAt)
	rec.WakeupAt = fromNullInt64(wakeup)
	rec.Mood = mood.String
	rec.Emoji = emoji.String
	rec.Note = note.String
	return &rec, nil
}

// CreateRecord opens a new sleep interval starting at start.
// It fails with ErrOpenRecord if the user already has one.
func (r *SQLiteRepo) CreateRecord(ctx context.Context, userID int64, start time.Time) (*domain.SleepRecord, error) {
	var rec *domain.SleepRecord
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `
			SELECT 1 FROM sleep_records
			WHERE user_id = ? AND wakeup_time IS NULL`,
			userID,
		).Scan(&one)
		switch {
		case err == nil:
			return ErrOpenRecord
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO sleep_records (user_id, created_at, updated_at)
			VALUES (?, ?, ?)`,
			userID, start.UTC().Unix(), start.UTC().Unix(),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rec = &domain.SleepRecord{
			ID:        id,
			UserID:    userID,
			CreatedAt: fromUnix(start.UTC().Unix()),
			UpdatedAt: fromUnix(start.UTC().Unix()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CloseRecord sets the wake-up time of the user's open interval.
// It returns ErrNotFound when there is no open interval.
func (r *SQLiteRepo) CloseRecord(ctx context.Context, userID int64, end time.Time) (*domain.SleepRecord, error) {
	var rec *domain.SleepRecord
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		open, err := scanRecord(tx.QueryRowContext(ctx, `
			SELECT `+recordColumns+`
			FROM sleep_records
			WHERE user_id = ? AND wakeup_time IS NULL`,
			userID,
		))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		endUnix := end.UTC().Unix()
		res, err := tx.ExecContext(ctx, `
			UPDATE sleep_records
			SET wakeup_time = ?, updated_at = ?
			WHERE id = ? AND wakeup_time IS NULL`,
			endUnix, endUnix, open.ID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}

		wake := fromUnix(endUnix)
		open.WakeupAt = &wake
		open.UpdatedAt = wake
		rec = open
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// OpenRecord returns the user's open interval or ErrNotFound.
func (r *SQLiteRepo) OpenRecord(ctx context.Context, userID int64) (*domain.SleepRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM sleep_records
		WHERE user_id = ? AND wakeup_time IS NULL`,
		userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListClosedRecords returns closed intervals that started in [start, end),
// ordered by start.
func (r *SQLiteRepo) ListClosedRecords(ctx context.Context, userID int64, start, end time.Time) ([]domain.SleepRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM sleep_records
		WHERE user_id = ?
		  AND created_at >= ?
		  AND created_at < ?
		  AND wakeup_time IS NOT NULL
		ORDER BY created_at ASC`,
		userID, start.UTC().Unix(), end.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.SleepRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// SetMood tags a user's record with a mood and its emoji.
func (r *SQLiteRepo) SetMood(ctx context.Context, userID, recordID int64, mood, emoji string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sleep_records
		SET mood = ?, emoji = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		toNullString(mood), toNullString(emoji), r.now().UTC().Unix(), recordID, userID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
