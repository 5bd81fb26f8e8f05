package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tinoosan/dubsync/internal/data"
)

// Postgres persists replication history so a restart does not re-copy files
// that were already backed up. It expects a table `replications` keyed by
// identity; ensureSchema creates it when missing.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pgx-backed ledger using dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	l := NewPostgresFromDB(db)
	if err := l.ensureSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// NewPostgresFromDB wraps an existing handle. The schema is not touched.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (l *Postgres) Close() error { return l.db.Close() }

func (l *Postgres) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

func (l *Postgres) ensureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS replications (
    identity TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    backup_path TEXT NOT NULL,
    digest TEXT NOT NULL DEFAULT '',
    size BIGINT NOT NULL DEFAULT 0,
    replicated_at TIMESTAMPTZ NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

func (l *Postgres) AlreadyReplicated(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM replications WHERE identity=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: lookup: %w", err)
	}
	return exists, nil
}

func (l *Postgres) Get(ctx context.Context, id string) (data.ReplicationRecord, error) {
	var rec data.ReplicationRecord
	err := l.db.QueryRowContext(ctx, `SELECT identity, source_path, backup_path, digest, size, replicated_at FROM replications WHERE identity=$1`, id).
		Scan(&rec.Identity, &rec.SourcePath, &rec.BackupPath, &rec.Digest, &rec.Size, &rec.ReplicatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return data.ReplicationRecord{}, data.ErrNotFound
	}
	if err != nil {
		return data.ReplicationRecord{}, fmt.Errorf("ledger: get: %w", err)
	}
	return rec, nil
}

// MarkReplicated inserts rec unless its identity is already present.
func (l *Postgres) MarkReplicated(ctx context.Context, rec data.ReplicationRecord) error {
	if rec.Identity == "" {
		return ErrEmptyIdentity
	}
	if rec.ReplicatedAt.IsZero() {
		rec.ReplicatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO replications (identity, source_path, backup_path, digest, size, replicated_at)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (identity) DO NOTHING`,
		rec.Identity, rec.SourcePath, rec.BackupPath, rec.Digest, rec.Size, rec.ReplicatedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert: %w", err)
	}
	return nil
}

func (l *Postgres) List(ctx context.Context) (data.ReplicationRecords, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT identity, source_path, backup_path, digest, size, replicated_at FROM replications ORDER BY replicated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()
	out := data.ReplicationRecords{}
	for rows.Next() {
		var rec data.ReplicationRecord
		if err := rows.Scan(&rec.Identity, &rec.SourcePath, &rec.BackupPath, &rec.Digest, &rec.Size, &rec.ReplicatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *Postgres) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: count: %w", err)
	}
	return n, nil
}
