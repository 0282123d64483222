package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"keywheel-hq/keywheel/pkg/credential"
)

// SQLiteBackend implements Store and TokenStore on a single SQLite
// database. It uses WAL mode for concurrent readers and prepared
// statements on the hot read path.
type SQLiteBackend struct {
	db *sql.DB

	getStmt    *sql.Stmt
	listStmt   *sql.Stmt
	updateStmt *sql.Stmt

	getTokenStmt    *sql.Stmt
	listTokensStmt  *sql.Stmt
	updateTokenStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteBackend opens (or creates) the credential database at dbPath
// with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig opens the database with custom settings.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer only.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{db: db}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

func (s *SQLiteBackend) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT id, secret, profile, is_active, is_disabled_by_rate_limit,
		       rate_limit_reset_at, failure_count, request_count,
		       daily_rate_limit, daily_requests_used, last_reset_date, last_used
		FROM credentials WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare credential get: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`
		SELECT id, secret, profile, is_active, is_disabled_by_rate_limit,
		       rate_limit_reset_at, failure_count, request_count,
		       daily_rate_limit, daily_requests_used, last_reset_date, last_used
		FROM credentials WHERE profile = ? ORDER BY rowid
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare credential list: %w", err)
	}

	s.updateStmt, err = s.db.Prepare(`
		UPDATE credentials SET
			is_active = ?, is_disabled_by_rate_limit = ?, rate_limit_reset_at = ?,
			failure_count = ?, request_count = ?, daily_rate_limit = ?,
			daily_requests_used = ?, last_reset_date = ?, last_used = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare credential update: %w", err)
	}

	s.getTokenStmt, err = s.db.Prepare(`
		SELECT id, email, api_token, cloud_id, profile, is_active,
		       is_disabled_by_rate_limit, rate_limit_reset_at, failure_count,
		       daily_token_limit, daily_tokens_used, last_reset_date, last_used
		FROM token_credentials WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare token get: %w", err)
	}

	s.listTokensStmt, err = s.db.Prepare(`
		SELECT id, email, api_token, cloud_id, profile, is_active,
		       is_disabled_by_rate_limit, rate_limit_reset_at, failure_count,
		       daily_token_limit, daily_tokens_used, last_reset_date, last_used
		FROM token_credentials WHERE profile = ? ORDER BY rowid
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare token list: %w", err)
	}

	s.updateTokenStmt, err = s.db.Prepare(`
		UPDATE token_credentials SET
			email = ?, api_token = ?, cloud_id = ?, is_active = ?,
			is_disabled_by_rate_limit = ?, rate_limit_reset_at = ?,
			failure_count = ?, daily_token_limit = ?, daily_tokens_used = ?,
			last_reset_date = ?, last_used = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare token update: %w", err)
	}

	return nil
}

// GetByID returns one credential by id.
func (s *SQLiteBackend) GetByID(ctx context.Context, id string) (*credential.Credential, error) {
	row := s.getStmt.QueryRowContext(ctx, id)
	cred, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("credential %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return cred, nil
}

// ListByProfile returns all credentials in a profile in creation order.
func (s *SQLiteBackend) ListByProfile(ctx context.Context, profile string) ([]*credential.Credential, error) {
	rows, err := s.listStmt.QueryContext(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []*credential.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credentials: %w", err)
	}
	return out, nil
}

// Update persists all mutable fields of the credential in one statement.
func (s *SQLiteBackend) Update(ctx context.Context, cred *credential.Credential) error {
	result, err := s.updateStmt.ExecContext(ctx,
		boolToInt(cred.IsActive),
		boolToInt(cred.IsDisabledByRateLimit),
		timeToUnix(cred.RateLimitResetAt),
		cred.FailureCount,
		cred.RequestCount,
		cred.DailyRateLimit,
		cred.DailyRequestsUsed,
		cred.LastResetDate,
		timeToUnix(cred.LastUsed),
		cred.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("credential %q: %w", cred.ID, ErrNotFound)
	}
	return nil
}

// Insert adds a new credential row. Used by the administrative wiring
// and by tests; the request path never inserts.
func (s *SQLiteBackend) Insert(ctx context.Context, cred *credential.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (
			id, secret, profile, is_active, is_disabled_by_rate_limit,
			rate_limit_reset_at, failure_count, request_count,
			daily_rate_limit, daily_requests_used, last_reset_date, last_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cred.ID, cred.Secret, cred.EffectiveProfile(),
		boolToInt(cred.IsActive), boolToInt(cred.IsDisabledByRateLimit),
		timeToUnix(cred.RateLimitResetAt), cred.FailureCount, cred.RequestCount,
		cred.DailyRateLimit, cred.DailyRequestsUsed, cred.LastResetDate,
		timeToUnix(cred.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("failed to insert credential: %w", err)
	}
	return nil
}

// TokenView exposes the token credential table as a TokenStore.
func (s *SQLiteBackend) TokenView() TokenStore {
	return &sqliteTokenView{backend: s}
}

// Close closes prepared statements and the database.
func (s *SQLiteBackend) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.getStmt, s.listStmt, s.updateStmt,
		s.getTokenStmt, s.listTokensStmt, s.updateTokenStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

type sqliteTokenView struct {
	backend *SQLiteBackend
}

func (v *sqliteTokenView) GetByID(ctx context.Context, id string) (*credential.TokenCredential, error) {
	row := v.backend.getTokenStmt.QueryRowContext(ctx, id)
	cred, err := scanTokenCredential(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("token credential %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token credential: %w", err)
	}
	return cred, nil
}

func (v *sqliteTokenView) ListByProfile(ctx context.Context, profile string) ([]*credential.TokenCredential, error) {
	rows, err := v.backend.listTokensStmt.QueryContext(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to list token credentials: %w", err)
	}
	defer rows.Close()

	var out []*credential.TokenCredential
	for rows.Next() {
		cred, err := scanTokenCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token credential: %w", err)
		}
		out = append(out, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token credentials: %w", err)
	}
	return out, nil
}

func (v *sqliteTokenView) Create(ctx context.Context, cred *credential.TokenCredential) error {
	_, err := v.backend.db.ExecContext(ctx, `
		INSERT INTO token_credentials (
			id, email, api_token, cloud_id, profile, is_active,
			is_disabled_by_rate_limit, rate_limit_reset_at, failure_count,
			daily_token_limit, daily_tokens_used, last_reset_date, last_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cred.ID, cred.Email, cred.APIToken, cred.CloudID, cred.EffectiveProfile(),
		boolToInt(cred.IsActive), boolToInt(cred.IsDisabledByRateLimit),
		timeToUnix(cred.RateLimitResetAt), cred.FailureCount,
		cred.DailyTokenLimit, cred.DailyTokensUsed, cred.LastResetDate,
		timeToUnix(cred.LastUsed),
	)
	if err != nil {
		return fmt.Errorf("failed to create token credential: %w", err)
	}
	return nil
}

func (v *sqliteTokenView) Update(ctx context.Context, cred *credential.TokenCredential) error {
	result, err := v.backend.updateTokenStmt.ExecContext(ctx,
		cred.Email, cred.APIToken, cred.CloudID,
		boolToInt(cred.IsActive), boolToInt(cred.IsDisabledByRateLimit),
		timeToUnix(cred.RateLimitResetAt), cred.FailureCount,
		cred.DailyTokenLimit, cred.DailyTokensUsed, cred.LastResetDate,
		timeToUnix(cred.LastUsed),
		cred.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update token credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("token credential %q: %w", cred.ID, ErrNotFound)
	}
	return nil
}

func (v *sqliteTokenView) Delete(ctx context.Context, id string) error {
	_, err := v.backend.db.ExecContext(ctx, `DELETE FROM token_credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token credential: %w", err)
	}
	return nil
}

func (v *sqliteTokenView) Close() error {
	// The view shares the backend's connection; the backend owns Close.
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCredential(row scanner) (*credential.Credential, error) {
	var (
		cred          credential.Credential
		isActive      int
		isRateLimited int
		resetAt       int64
		lastUsed      int64
	)
	err := row.Scan(
		&cred.ID, &cred.Secret, &cred.Profile, &isActive, &isRateLimited,
		&resetAt, &cred.FailureCount, &cred.RequestCount,
		&cred.DailyRateLimit, &cred.DailyRequestsUsed, &cred.LastResetDate, &lastUsed,
	)
	if err != nil {
		return nil, err
	}
	cred.IsActive = isActive != 0
	cred.IsDisabledByRateLimit = isRateLimited != 0
	cred.RateLimitResetAt = unixToTime(resetAt)
	cred.LastUsed = unixToTime(lastUsed)
	return &cred, nil
}

func scanTokenCredential(row scanner) (*credential.TokenCredential, error) {
	var (
		cred          credential.TokenCredential
		isActive      int
		isRateLimited int
		resetAt       int64
		lastUsed      int64
	)
	err := row.Scan(
		&cred.ID, &cred.Email, &cred.APIToken, &cred.CloudID, &cred.Profile,
		&isActive, &isRateLimited, &resetAt, &cred.FailureCount,
		&cred.DailyTokenLimit, &cred.DailyTokensUsed, &cred.LastResetDate, &lastUsed,
	)
	if err != nil {
		return nil, err
	}
	cred.IsActive = isActive != 0
	cred.IsDisabledByRateLimit = isRateLimited != 0
	cred.RateLimitResetAt = unixToTime(resetAt)
	cred.LastUsed = unixToTime(lastUsed)
	return &cred, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func unixToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}
