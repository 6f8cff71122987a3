// ABOUTME: Database schema definitions
// ABOUTME: Tables for per-platform user credentials and call/message log bookkeeping
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT NOT NULL,
	platform TEXT NOT NULL,
	name TEXT,
	hostname TEXT NOT NULL,
	auth_type TEXT NOT NULL,
	access_token TEXT NOT NULL,
	refresh_token TEXT,
	token_expiry DATETIME,
	timezone_offset INTEGER NOT NULL DEFAULT 0,
	rc_user_number TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (id, platform)
);

CREATE TABLE IF NOT EXISTS call_logs (
	internal_log_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	third_party_log_id TEXT NOT NULL,
	contact_id TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (internal_log_id, platform)
);

CREATE INDEX IF NOT EXISTS idx_call_logs_user ON call_logs(user_id, platform);

CREATE TABLE IF NOT EXISTS message_logs (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	conversation_key TEXT NOT NULL,
	bucket_date TEXT NOT NULL,
	third_party_log_id TEXT NOT NULL,
	entry_count INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(user_id, platform, conversation_key, bucket_date)
);

CREATE INDEX IF NOT EXISTS idx_message_logs_bucket ON message_logs(user_id, platform, conversation_key, bucket_date);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
