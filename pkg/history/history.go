// Package history keeps a durable log of upstream dispatch attempts
// for operator inspection: which credential served which request, the
// outcome, and how long it took. Entries age out on a retention
// schedule.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/robfig/cron/v3"

	"keywheel-hq/keywheel/pkg/dispatch"
)

const logSchema = `
CREATE TABLE IF NOT EXISTS dispatch_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	at INTEGER NOT NULL,
	profile TEXT NOT NULL,
	credential_id TEXT NOT NULL,
	lease_id TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dispatch_log_at ON dispatch_log(at);
CREATE INDEX IF NOT EXISTS idx_dispatch_log_profile ON dispatch_log(profile, at);
`

// LogConfig configures the dispatch log.
type LogConfig struct {
	// DBPath is the path to the log database file.
	DBPath string

	// Retention is how long entries are kept. Default: 7 days.
	Retention time.Duration

	// PruneSchedule is a cron expression for the retention sweep.
	// Default: hourly.
	PruneSchedule string

	// Logger receives log maintenance events. Default:
	// slog.Default().
	Logger *slog.Logger
}

// Log records dispatch outcomes in SQLite. It implements
// dispatch.Recorder.
type Log struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	retention  time.Duration
	logger     *slog.Logger
	cron       *cron.Cron
}

// Record is one logged dispatch attempt.
type Record struct {
	At           time.Time `json:"at"`
	Profile      string    `json:"profile"`
	CredentialID string    `json:"credentialId"`
	LeaseID      string    `json:"leaseId"`
	Attempt      int       `json:"attempt"`
	Outcome      string    `json:"outcome"`
	StatusCode   int       `json:"statusCode"`
	DurationMS   int64     `json:"durationMs"`
}

// NewLog opens (or creates) the dispatch log and starts the retention
// sweep.
func NewLog(cfg LogConfig) (*Log, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("log db path cannot be empty")
	}
	if cfg.Retention == 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = "0 * * * *"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", cfg.DBPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open dispatch log: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(logSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize dispatch log schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT INTO dispatch_log (
			at, profile, credential_id, lease_id, attempt, outcome,
			status_code, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare dispatch log insert: %w", err)
	}

	l := &Log{
		db:         db,
		insertStmt: insertStmt,
		retention:  cfg.Retention,
		logger:     cfg.Logger.With("component", "history"),
	}

	l.cron = cron.New()
	if _, err := l.cron.AddFunc(cfg.PruneSchedule, l.prune); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to schedule log pruning: %w", err)
	}
	l.cron.Start()

	return l, nil
}

// Record persists one dispatch attempt. Logging must never fail the
// request it describes, so errors are logged and swallowed.
func (l *Log) Record(ctx context.Context, entry dispatch.Entry) {
	_, err := l.insertStmt.ExecContext(ctx,
		entry.At.UnixMilli(),
		entry.Profile,
		entry.CredentialID,
		entry.LeaseID,
		entry.Attempt,
		entry.Outcome,
		entry.StatusCode,
		entry.Duration.Milliseconds(),
	)
	if err != nil {
		l.logger.Warn("failed to record dispatch entry", "error", err)
	}
}

// Recent returns the newest entries for a profile, newest first.
func (l *Log) Recent(ctx context.Context, profile string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT at, profile, credential_id, lease_id, attempt, outcome,
		       status_code, duration_ms
		FROM dispatch_log
		WHERE profile = ?
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var at int64
		if err := rows.Scan(&at, &rec.Profile, &rec.CredentialID, &rec.LeaseID,
			&rec.Attempt, &rec.Outcome, &rec.StatusCode, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch log row: %w", err)
		}
		rec.At = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *Log) prune() {
	cutoff := time.Now().Add(-l.retention).UnixMilli()
	result, err := l.db.Exec(`DELETE FROM dispatch_log WHERE at < ?`, cutoff)
	if err != nil {
		l.logger.Warn("dispatch log pruning failed", "error", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		l.logger.Info("pruned dispatch log entries", "removed", n)
	}
}

// Close stops the retention sweep and closes the database.
func (l *Log) Close() error {
	if l.cron != nil {
		<-l.cron.Stop().Done()
	}
	if l.insertStmt != nil {
		l.insertStmt.Close()
	}
	return l.db.Close()
}
