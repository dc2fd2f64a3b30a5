package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eyev0/wakeupbot/internal/domain"
)

const jobColumns = `id, kind, user_id, trigger_type, hour, minute, location,
	run_at, expires_at, next_run_at, created_at, updated_at`

func scanJob(s scanner) (*domain.Job, error) {
	var (
		j         domain.Job
		kind      string
		trigType  string
		loc       string
		runAt     sql.NullInt64
		expiresAt sql.NullInt64
		nextRunAt int64
		createdAt int64
		updatedAt int64
	)
	if err := s.Scan(
		&j.ID, &kind, &j.UserID, &trigType, &j.Trigger.Hour, &j.Trigger.Minute, &loc,
		&runAt, &expiresAt, &nextRunAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	j.Kind = domain.JobKind(kind)
	j.Trigger.Type = domain.TriggerType(trigType)
	j.Trigger.Location = loadLocation(loc)
	if t := fromNullInt64(runAt); t != nil {
		j.Trigger.RunAt = *t
	}
	j.Trigger.ExpiresAt = fromNullInt64(expiresAt)
	j.NextRunAt = fromUnix(nextRunAt)
	j.CreatedAt = fromUnix(createdAt)
	j.UpdatedAt = fromUnix(updatedAt)
	return &j, nil
}

func triggerRunAt(t domain.Trigger) sql.NullInt64 {
	if t.Type != domain.TriggerOnce {
		return sql.NullInt64{}
	}
	return toNullInt64(&t.RunAt)
}

// InsertJob stores a new job and the reminder row for its (user, kind) in one
// transaction. An empty job.ID is filled with a fresh UUID.
func (r *SQLiteRepo) InsertJob(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("nil job")
	}
	if !job.Kind.Valid() {
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := r.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_jobs (
				id, kind, user_id, trigger_type, hour, minute, location,
				run_at, expires_at, next_run_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, string(job.Kind), job.UserID, string(job.Trigger.Type),
			job.Trigger.Hour, job.Trigger.Minute, locationName(job.Trigger.Location),
			triggerRunAt(job.Trigger), toNullInt64(job.Trigger.ExpiresAt),
			job.NextRunAt.UTC().Unix(), now.Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reminder_jobs (user_id, kind, job_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			job.UserID, string(job.Kind), job.ID, now.Unix(), now.Unix(),
		); err != nil {
			return fmt.Errorf("insert reminder: %w", err)
		}
		return nil
	})
}

// RescheduleJob replaces a job's trigger in place and touches its reminder row.
func (r *SQLiteRepo) RescheduleJob(ctx context.Context, jobID string, trigger domain.Trigger, next time.Time) error {
	now := r.now().UTC().Unix()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scheduled_jobs
			SET trigger_type = ?, hour = ?, minute = ?, location = ?,
			    run_at = ?, expires_at = ?, next_run_at = ?, updated_at = ?
			WHERE id = ?`,
			string(trigger.Type), trigger.Hour, trigger.Minute, locationName(trigger.Location),
			triggerRunAt(trigger), toNullInt64(trigger.ExpiresAt), next.UTC().Unix(), now,
			jobID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrJobNotFound
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE reminder_jobs SET updated_at = ? WHERE job_id = ?`,
			now, jobID,
		)
		return err
	})
}

// AdvanceJob moves a recurring job from prev to its next fire time. It fails
// with ErrJobChanged when next_run_at is no longer prev.
func (r *SQLiteRepo) AdvanceJob(ctx context.Context, jobID string, prev, next time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET next_run_at = ?, updated_at = ?
		WHERE id = ? AND next_run_at = ?`,
		next.UTC().Unix(), r.now().UTC().Unix(), jobID, prev.UTC().Unix(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrChanged(ctx, jobID)
	}
	return nil
}

// RemoveJob deletes a job; its reminder row goes with it via ON DELETE CASCADE.
func (r *SQLiteRepo) RemoveJob(ctx context.Context, jobID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RemoveDueJob deletes a finished job unless it was rescheduled after it
// came due at prev.
func (r *SQLiteRepo) RemoveDueJob(ctx context.Context, jobID string, prev time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scheduled_jobs
		WHERE id = ? AND next_run_at = ?`,
		jobID, prev.UTC().Unix(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.missingOrChanged(ctx, jobID)
	}
	return nil
}

func (r *SQLiteRepo) missingOrChanged(ctx context.Context, jobID string) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM scheduled_jobs WHERE id = ?`, jobID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrJobNotFound
	case err != nil:
		return err
	}
	return ErrJobChanged
}

// DueJobs returns up to limit jobs whose next_run_at is <= now,
// ordered by next_run_at ascending.
func (r *SQLiteRepo) DueJobs(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE next_run_at <= ?
		ORDER BY next_run_at ASC
		LIMIT ?`,
		now.UTC().Unix(), limit,
	)
}

// ListJobs returns every stored job.
func (r *SQLiteRepo) ListJobs(ctx context.Context) ([]domain.Job, error) {
	return r.queryJobs(ctx, `
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		ORDER BY next_run_at ASC`)
}

func (r *SQLiteRepo) queryJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// GetReminder returns the reminder row for (user, kind) or ErrNotFound.
func (r *SQLiteRepo) GetReminder(ctx context.Context, userID int64, kind domain.JobKind) (*domain.ReminderJob, error) {
	var (
		rj        domain.ReminderJob
		k         string
		createdAt int64
		updatedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, kind, job_id, created_at, updated_at
		FROM reminder_jobs
		WHERE user_id = ? AND kind = ?`,
		userID, string(kind),
	).Scan(&rj.UserID, &k, &rj.JobID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rj.Kind = domain.JobKind(k)
	rj.CreatedAt = fromUnix(createdAt)
	rj.UpdatedAt = fromUnix(updatedAt)
	return &rj, nil
}

// ListReminders returns all reminder rows.
func (r *SQLiteRepo) ListReminders(ctx context.Context) ([]domain.ReminderJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, kind, job_id, created_at, updated_at
		FROM reminder_jobs
		ORDER BY user_id, kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ReminderJob
	for rows.Next() {
		var (
			rj        domain.ReminderJob
			k         string
			createdAt int64
			updatedAt int64
		)
		if err := rows.Scan(&rj.UserID, &k, &rj.JobID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rj.Kind = domain.JobKind(k)
		rj.CreatedAt = fromUnix(createdAt)
		rj.UpdatedAt = fromUnix(updatedAt)
		res = append(res, rj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
