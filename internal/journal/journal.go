// Package journal persists call outcomes and transcripts in SQLite so
// results survive the daemon. Retention is configurable down to fully
// ephemeral, in which case every write is a no-op.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/voxline-ai/voxline-core/internal/config"
)

// Call is one recorded call with its final disposition.
type Call struct {
	CallID    string
	StreamID  string
	Status    string
	Finished  bool
	StartedAt time.Time
	EndedAt   time.Time
}

// Line is one transcript entry within a call.
type Line struct {
	ID        string
	CallID    string
	Role      string
	Text      string
	CreatedAt time.Time
}

// Journal wraps the SQLite-backed call record store.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := j.vacuum(ctx); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS calls (
    call_id TEXT PRIMARY KEY,
    stream_id TEXT,
    status TEXT,
    finished INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    ended_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS transcript (
    id TEXT PRIMARY KEY,
    call_id TEXT NOT NULL,
    role TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(call_id) REFERENCES calls(call_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_transcript_call_created ON transcript(call_id, created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) vacuum(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	_, err := j.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// CallStarted ensures a call row exists.
func (j *Journal) CallStarted(ctx context.Context, callID, streamID string, at time.Time) error {
	if j.cfg.RetentionMode == "ephemeral" || j.db == nil {
		return nil
	}
	if at.IsZero() {
		at = j.clock()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO calls(call_id, stream_id, status, started_at)
		 VALUES(?, ?, 'unsure', ?)
		 ON CONFLICT(call_id) DO UPDATE SET stream_id=excluded.stream_id`,
		callID, streamID, at.UTC())
	return err
}

// AppendLine writes one transcript entry for a call.
func (j *Journal) AppendLine(ctx context.Context, callID, role, text string, at time.Time) error {
	if j.cfg.RetentionMode == "ephemeral" || j.db == nil {
		return nil
	}
	if at.IsZero() {
		at = j.clock()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO transcript(id, call_id, role, text, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		uuid.NewString(), callID, role, text, at.UTC())
	return err
}

// CallEnded records the final disposition of a call.
func (j *Journal) CallEnded(ctx context.Context, callID, status string, finished bool, at time.Time) error {
	if j.cfg.RetentionMode == "ephemeral" || j.db == nil {
		return nil
	}
	if at.IsZero() {
		at = j.clock()
	}
	fin := 0
	if finished {
		fin = 1
	}
	_, err := j.db.ExecContext(ctx,
		`UPDATE calls SET status = ?, finished = ?, ended_at = ? WHERE call_id = ?`,
		status, fin, at.UTC(), callID)
	return err
}

// GetCall returns the recorded call, or sql.ErrNoRows if unknown.
func (j *Journal) GetCall(ctx context.Context, callID string) (Call, error) {
	var c Call
	if j.cfg.RetentionMode == "ephemeral" || j.db == nil {
		return c, sql.ErrNoRows
	}
	var started, ended sql.NullString
	var fin int
	err := j.db.QueryRowContext(ctx,
		`SELECT call_id, stream_id, status, finished, started_at, ended_at
		 FROM calls WHERE call_id = ?`, callID).
		Scan(&c.CallID, &c.StreamID, &c.Status, &fin, &started, &ended)
	if err != nil {
		return c, err
	}
	c.Finished = fin != 0
	c.StartedAt = parseTimestamp(started)
	c.EndedAt = parseTimestamp(ended)
	return c, nil
}

// ListTranscript retrieves up to limit lines for a call ordered ascending by time.
func (j *Journal) ListTranscript(ctx context.Context, callID string, limit int) ([]Line, error) {
	if j.cfg.RetentionMode == "ephemeral" || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, call_id, role, text, created_at
		 FROM transcript WHERE call_id = ? ORDER BY created_at ASC LIMIT ?`, callID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		var created sql.NullString
		if err := rows.Scan(&l.ID, &l.CallID, &l.Role, &l.Text, &created); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTimestamp(created)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (j *Journal) Prune(ctx context.Context) error {
	if j.cfg.RetentionMode == "ephemeral" || j.db == nil {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM transcript WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM calls WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if j.cfg.MaxCalls > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM calls WHERE call_id IN (
			SELECT call_id FROM calls ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxCalls)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Ensure verifies the ephemeral mode invariant.
func (j *Journal) Ensure() error {
	if j.cfg.RetentionMode == "ephemeral" && j.db != nil {
		return errors.New("ephemeral journal should not have database connection")
	}
	return nil
}

func parseTimestamp(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, v.String); err == nil {
		return ts
	}
	if ts, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", v.String); err == nil {
		return ts
	}
	return time.Time{}
}
