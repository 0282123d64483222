package store

// schema creates the credential tables. Booleans are stored as 0/1 and
// timestamps as unix seconds (0 meaning "never").
const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	id TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	profile TEXT NOT NULL DEFAULT 'default',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_disabled_by_rate_limit INTEGER NOT NULL DEFAULT 0,
	rate_limit_reset_at INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	request_count INTEGER NOT NULL DEFAULT 0,
	daily_rate_limit INTEGER NOT NULL DEFAULT 0,
	daily_requests_used INTEGER NOT NULL DEFAULT 0,
	last_reset_date TEXT NOT NULL DEFAULT '',
	last_used INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_credentials_profile ON credentials(profile);

CREATE TABLE IF NOT EXISTS token_credentials (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	api_token TEXT NOT NULL,
	cloud_id TEXT NOT NULL,
	profile TEXT NOT NULL DEFAULT 'default',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_disabled_by_rate_limit INTEGER NOT NULL DEFAULT 0,
	rate_limit_reset_at INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	daily_token_limit INTEGER NOT NULL DEFAULT 0,
	daily_tokens_used INTEGER NOT NULL DEFAULT 0,
	last_reset_date TEXT NOT NULL DEFAULT '',
	last_used INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_token_credentials_profile ON token_credentials(profile);
`
