package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store errors
var (
	// ErrNotFound is returned by stores when a keyed lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a row changed after the caller read it.
	ErrConflict = errors.New("row was modified concurrently")
)

// Open opens a SQLite database at path and applies the schema.
// PRE: path is a file path or ":memory:"
// POST: Returns a ready connection with WAL and foreign keys enabled
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each new connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// migrations are applied in order; index i moves the schema to version i+1.
// Append only: never edit a migration that has shipped.
var migrations = []func(tx *sql.Tx) error{
	func(tx *sql.Tx) error {
		_, err := tx.Exec(baselineSchema)
		return err
	},
	func(tx *sql.Tx) error {
		_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at)`)
		return err
	},
}

// LatestSchemaVersion returns the version MigrateDB brings a database to.
func LatestSchemaVersion() int {
	return len(migrations)
}

// SchemaVersion returns the applied schema version, 0 for a fresh database.
// PRE: db is a valid database connection
func SchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var v sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return int(v.Int64), nil
}

// MigrateDB enables connection pragmas and applies pending migrations.
// PRE: db is a valid database connection
// POST: Schema is at LatestSchemaVersion; each migration ran in its own transaction
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	for v := current; v < len(migrations); v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v+1, err)
		}
		if err := migrations[v](tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v+1, err)
		}
	}
	return nil
}

const baselineSchema = `
CREATE TABLE IF NOT EXISTS account (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT 'password',
	role TEXT NOT NULL,
	created_at TEXT NOT NULL,
	failed_logins INTEGER NOT NULL DEFAULT 0,
	locked_until TEXT
);

CREATE TABLE IF NOT EXISTS reset_token (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	token TEXT NOT NULL UNIQUE,
	expires_at TEXT NOT NULL,
	used INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	FOREIGN KEY (account_id) REFERENCES account(id)
);

CREATE TABLE IF NOT EXISTS account_settings (
	account_id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (account_id) REFERENCES account(id)
);

CREATE TABLE IF NOT EXISTS program_session (
	id TEXT PRIMARY KEY,
	program_type TEXT NOT NULL,
	title TEXT NOT NULL,
	starts_at TEXT NOT NULL,
	capacity INTEGER NOT NULL DEFAULT 0,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS registration (
	id TEXT PRIMARY KEY,
	program_type TEXT NOT NULL,
	account_id TEXT,
	parent_name TEXT NOT NULL,
	parent_email TEXT NOT NULL,
	parent_phone TEXT NOT NULL DEFAULT '',
	parent_relationship TEXT NOT NULL DEFAULT '',
	emergency_name TEXT NOT NULL DEFAULT '',
	emergency_phone TEXT NOT NULL DEFAULT '',
	emergency_relationship TEXT NOT NULL DEFAULT '',
	base_price_cents INTEGER NOT NULL,
	session_count INTEGER NOT NULL,
	total_amount_cents INTEGER NOT NULL,
	amount_paid_cents INTEGER NOT NULL DEFAULT 0,
	payment_method TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	status TEXT NOT NULL,
	cancelled_at TEXT,
	cancellation_reason TEXT NOT NULL DEFAULT '',
	media_consent_internal INTEGER NOT NULL DEFAULT 0,
	media_consent_marketing INTEGER NOT NULL DEFAULT 0,
	how_heard TEXT NOT NULL DEFAULT '',
	comments TEXT NOT NULL DEFAULT '',
	admin_notes TEXT NOT NULL DEFAULT '',
	needs_repair INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registration_created ON registration(created_at);
CREATE INDEX IF NOT EXISTS idx_registration_email ON registration(parent_email);

CREATE TABLE IF NOT EXISTS registration_session (
	registration_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	PRIMARY KEY (registration_id, session_id),
	FOREIGN KEY (registration_id) REFERENCES registration(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_registration_session_session ON registration_session(session_id);

CREATE TABLE IF NOT EXISTS registration_child (
	id TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	age INTEGER NOT NULL,
	school TEXT NOT NULL DEFAULT '',
	medical_notes TEXT NOT NULL DEFAULT '',
	allergies TEXT NOT NULL DEFAULT '',
	dietary TEXT NOT NULL DEFAULT '',
	tshirt_size TEXT NOT NULL DEFAULT '',
	discount_cents INTEGER NOT NULL,
	UNIQUE (registration_id, position),
	FOREIGN KEY (registration_id) REFERENCES registration(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS registration_pickup (
	id TEXT PRIMARY KEY,
	registration_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	phone TEXT NOT NULL,
	relationship TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (registration_id) REFERENCES registration(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS activity_log (
	id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	changes TEXT NOT NULL DEFAULT '{}',
	actor_id TEXT NOT NULL DEFAULT '',
	actor_email TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS outbox (
	id TEXT PRIMARY KEY,
	action_type TEXT NOT NULL,
	registration_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	last_attempted_at TEXT,
	created_at TEXT NOT NULL
);
`

