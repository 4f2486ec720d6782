// Package store provides SQLite-backed persistence for runs, campaigns and
// metric cycles.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/adpilot/engine/internal/domain"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS businesses (
	id                     TEXT PRIMARY KEY,
	name                   TEXT NOT NULL DEFAULT '',
	owner_user_id          TEXT NOT NULL,
	max_daily_budget_cents INTEGER NOT NULL DEFAULT 0,
	platform_access_token  TEXT NOT NULL DEFAULT '',
	platform_ad_account_id TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS campaigns (
	id                   TEXT PRIMARY KEY,
	business_id          TEXT NOT NULL,
	name                 TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'active',
	platform_campaign_id TEXT NOT NULL DEFAULT '',
	platform_adset_id    TEXT NOT NULL DEFAULT '',
	daily_budget_cents   INTEGER NOT NULL DEFAULT 0,
	updated_at_unix      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_campaigns_business ON campaigns(business_id);

CREATE TABLE IF NOT EXISTS metric_snapshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	business_id   TEXT NOT NULL,
	cycle_seq     INTEGER NOT NULL,
	campaign_id   TEXT NOT NULL,
	campaign_name TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	daily_budget  REAL NOT NULL DEFAULT 0.0,
	spend         REAL NOT NULL DEFAULT 0.0,
	impressions   INTEGER NOT NULL DEFAULT 0,
	clicks        INTEGER NOT NULL DEFAULT 0,
	conversions   INTEGER NOT NULL DEFAULT 0,
	captured_at   INTEGER NOT NULL,
	UNIQUE(business_id, cycle_seq, campaign_id)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_business_cycle ON metric_snapshots(business_id, cycle_seq);

CREATE TABLE IF NOT EXISTS automation_runs (
	id                   TEXT PRIMARY KEY,
	business_id          TEXT NOT NULL,
	triggered_by         TEXT NOT NULL DEFAULT '',
	agent_type           TEXT NOT NULL,
	trigger_type         TEXT NOT NULL,
	status               TEXT NOT NULL DEFAULT 'running',
	state_version        INTEGER NOT NULL DEFAULT 1,
	last_event_seq       INTEGER NOT NULL DEFAULT 0,
	input_json           TEXT NOT NULL DEFAULT '{}',
	output_json          TEXT NOT NULL DEFAULT '{}',
	summary              TEXT NOT NULL DEFAULT '',
	first_person_summary TEXT NOT NULL DEFAULT '',
	requires_approval    INTEGER NOT NULL DEFAULT 0,
	approved_at          INTEGER,
	approved_action      TEXT NOT NULL DEFAULT '',
	approved_by          TEXT NOT NULL DEFAULT '',
	started_at           INTEGER NOT NULL,
	completed_at         INTEGER,
	error_message        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_business_started ON automation_runs(business_id, started_at);

CREATE TABLE IF NOT EXISTS run_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	seq_no       INTEGER NOT NULL,
	from_status  TEXT NOT NULL DEFAULT '',
	to_status    TEXT NOT NULL,
	event        TEXT NOT NULL,
	actor        TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	UNIQUE(run_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_run_events_run_seq ON run_events(run_id, seq_no);

CREATE TABLE IF NOT EXISTS api_tokens (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	token_hash  TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	revoked_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);

CREATE TABLE IF NOT EXISTS audit_records (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	business_id TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	decision    TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_run ON audit_records(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_business ON audit_records(business_id, outcome);
`

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, domain.WrapEngineError(domain.ErrStoreInit.Code, "migrate schema", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

func nullableUnix(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
