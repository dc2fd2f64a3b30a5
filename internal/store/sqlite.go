package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/eyev0/wakeupbot/internal/domain"
)

// SQLiteRepo keeps users, sleep records and reminder jobs in one SQLite file.
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite creates the database file if needed, enables WAL and foreign
// keys, and migrates the schema to the latest version.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer; also keeps per-connection PRAGMAs in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db, now: time.Now}, nil
}

// foreign_keys must be on for reminder rows to follow their jobs.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// inTx runs fn in a transaction, rolling back on error.
func (r *SQLiteRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpsertUser inserts or updates a user's settings.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}

	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Language == "" {
		u.Language = "en"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, created_at, updated_at, timezone, bedtime,
			do_not_disturb, language, conversation_started
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at           = excluded.updated_at,
			timezone             = excluded.timezone,
			bedtime              = excluded.bedtime,
			do_not_disturb       = excluded.do_not_disturb,
			language             = excluded.language,
			conversation_started = excluded.conversation_started`,
		u.ID, u.CreatedAt.Unix(), u.UpdatedAt.Unix(), u.Timezone.String(), bedtimeToNull(u.Bedtime),
		boolToInt(u.DoNotDisturb), u.Language, boolToInt(u.ConversationStarted),
	)
	return err
}

// GetUser returns a user by id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, timezone, bedtime,
		       do_not_disturb, language, conversation_started
		FROM users
		WHERE id = ?`,
		id,
	)

	var (
		u         domain.User
		createdAt int64
		updatedAt int64
		tz        string
		bedtime   sql.NullString
		dnd       int
		started   int
	)
	if err := row.Scan(&u.ID, &createdAt, &updatedAt, &tz, &bedtime, &dnd, &u.Language, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	offset, err := domain.ParseOffset(tz)
	if err != nil {
		offset = 0
	}
	u.Timezone = offset
	u.Bedtime = bedtimeFromNull(bedtime)
	u.DoNotDisturb = dnd != 0
	u.ConversationStarted = started != 0
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return &u, nil
}
