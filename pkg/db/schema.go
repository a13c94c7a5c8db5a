package db

import (
	"database/sql"
	"fmt"
)

// Times are stored as unix milliseconds. Position ids restart every run, so rows that
// carry one are keyed by run_id as well.
const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy TEXT NOT NULL,
    symbol TEXT NOT NULL,
    direction TEXT NOT NULL,
    timeframe TEXT,
    entry REAL NOT NULL,
    stop_loss REAL NOT NULL,
    take_profit REAL NOT NULL,
    confidence REAL NOT NULL,
    approved INTEGER NOT NULL,
    reason TEXT,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    client_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL DEFAULT '',
    exchange_order_id TEXT,
    position_id INTEGER,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    reduce_only INTEGER NOT NULL DEFAULT 0,
    qty REAL NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    error TEXT,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    row_id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    id INTEGER NOT NULL,
    strategy TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    status TEXT NOT NULL,
    entry_price REAL NOT NULL,
    signal_entry REAL DEFAULT 0,
    quantity REAL NOT NULL,
    remaining REAL NOT NULL,
    stop_loss REAL NOT NULL,
    take_profit REAL NOT NULL,
    realized_pnl REAL NOT NULL DEFAULT 0,
    exchange_order_id TEXT,
    updated_at INTEGER NOT NULL,
    UNIQUE(run_id, id)
);

CREATE TABLE IF NOT EXISTS partial_exits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    position_id INTEGER NOT NULL,
    qty REAL NOT NULL,
    price REAL NOT NULL,
    pnl REAL NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT,
    strategy TEXT,
    gate TEXT NOT NULL,
    reason TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
CREATE INDEX IF NOT EXISTS idx_exits_created ON partial_exits(created_at);
CREATE INDEX IF NOT EXISTS idx_exits_position ON partial_exits(run_id, position_id);
`

// LegacyRunID tags rows written before positions were scoped to a run.
const LegacyRunID = "legacy"


// ApplyMigrations creates tables and adds columns introduced after the first release.
func ApplyMigrations(d *Database) error {
	if _, err := d.DB.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	legacy, err := needsRunScope(d.DB)
	if err != nil {
		return err
	}
	if legacy {
		if err := scopeLegacyPositions(d.DB); err != nil {
			return err
		}
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := ensureColumn(d.DB, "orders", "run_id", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	return nil
}

// needsRunScope reports a positions table from before run_id existed.
func needsRunScope(db *sql.DB) (bool, error) {
	exists, err := tableExists(db, "positions")
	if err != nil || !exists {
		return false, err
	}
	scoped, err := columnExists(db, "positions", "run_id")
	return !scoped, err
}

// scopeLegacyPositions rebuilds positions and partial_exits with run-scoped keys and
// copies the old rows under LegacyRunID.
func scopeLegacyPositions(db *sql.DB) error {
	// columns added by earlier releases, needed for the copy
	if err := ensureColumn(db, "positions", "exchange_order_id", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(db, "positions", "signal_entry", "REAL DEFAULT 0"); err != nil {
		return err
	}
	exits, err := tableExists(db, "partial_exits")
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin legacy migration: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{`ALTER TABLE positions RENAME TO positions_legacy`}
	if exits {
		stmts = append(stmts, `DROP INDEX IF EXISTS idx_exits_created`,
			`ALTER TABLE partial_exits RENAME TO partial_exits_legacy`)
	}
	stmts = append(stmts, schema, `
		INSERT INTO positions (run_id, id, strategy, symbol, side, status, entry_price, signal_entry, quantity,
			remaining, stop_loss, take_profit, realized_pnl, exchange_order_id, updated_at)
		SELECT '`+LegacyRunID+`', id, strategy, symbol, side, status, entry_price, signal_entry, quantity,
			remaining, stop_loss, take_profit, realized_pnl, exchange_order_id, updated_at
		FROM positions_legacy`)
	if exits {
		stmts = append(stmts, `
		INSERT INTO partial_exits (run_id, position_id, qty, price, pnl, created_at)
		SELECT '`+LegacyRunID+`', position_id, qty, price, pnl, created_at FROM partial_exits_legacy`,
			`DROP TABLE partial_exits_legacy`)
	}
	stmts = append(stmts, `DROP TABLE positions_legacy`)

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("legacy migration: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit legacy migration: %w", err)
	}
	return nil
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
