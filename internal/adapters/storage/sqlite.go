// Package storage persists decision history, component state, and mode
// transitions in SQLite (pure Go driver, no CGo).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyedge/internal/domain"
	"github.com/alejandrodnm/polyedge/internal/ports"
)

const schema = `
-- One row per gate/trade decision
CREATE TABLE IF NOT EXISTS decisions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    ts              DATETIME NOT NULL,
    market_id       TEXT     NOT NULL,
    yes_ask         REAL     NOT NULL DEFAULT 0,
    no_ask          REAL     NOT NULL DEFAULT 0,
    ask_sum         REAL     NOT NULL DEFAULT 0,
    edge_bps        REAL     NOT NULL DEFAULT 0,
    liquidity       REAL     NOT NULL DEFAULT 0,
    spread_bps      REAL     NOT NULL DEFAULT 0,
    est_profit_usd  REAL     NOT NULL DEFAULT 0,
    action          TEXT     NOT NULL,
    reason          TEXT     NOT NULL DEFAULT '',
    planned_size    REAL     NOT NULL DEFAULT 0,
    tx_hash         TEXT     NOT NULL DEFAULT '',
    status          TEXT     NOT NULL DEFAULT ''
);

-- Opaque exported state per component (EV tracker, learner)
CREATE TABLE IF NOT EXISTS component_state (
    component  TEXT PRIMARY KEY,
    state      BLOB NOT NULL,
    updated_at DATETIME NOT NULL
);

-- NORMAL⇄SCAVENGER transitions
CREATE TABLE IF NOT EXISTS mode_transitions (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    ts      DATETIME NOT NULL,
    from_mode TEXT NOT NULL,
    to_mode   TEXT NOT NULL,
    reason    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_decisions_ts     ON decisions(ts DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_market ON decisions(market_id);
CREATE INDEX IF NOT EXISTS idx_mode_ts          ON mode_transitions(ts DESC);
`

// SQLiteStore implements ports.DecisionStore.
type SQLiteStore struct {
	db        *sql.DB
	retention time.Duration
}

// NewSQLiteStore opens (or creates) the database at the given path,
// applies the schema, and prunes rows older than the retention window.
func NewSQLiteStore(path string, retention time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}

	s := &SQLiteStore{db: db, retention: retention}
	s.pruneOld(context.Background())
	return s, nil
}

// SaveDecision inserts one decision record.
func (s *SQLiteStore) SaveDecision(ctx context.Context, rec ports.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
			(ts, market_id, yes_ask, no_ask, ask_sum, edge_bps, liquidity,
			 spread_bps, est_profit_usd, action, reason, planned_size, tx_hash, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TS.UTC(), rec.MarketID, rec.YesAsk, rec.NoAsk, rec.Sum, rec.EdgeBps,
		rec.Liquidity, rec.SpreadBps, rec.EstProfitUSD, rec.Action, rec.Reason,
		rec.PlannedSize, rec.TxHash, rec.Status,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveDecision: insert: %w", err)
	}
	return nil
}

// GetDecisions returns decisions in [from, to], newest first.
func (s *SQLiteStore) GetDecisions(ctx context.Context, from, to time.Time) ([]ports.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, market_id, yes_ask, no_ask, ask_sum, edge_bps, liquidity,
		       spread_bps, est_profit_usd, action, reason, planned_size, tx_hash, status
		FROM decisions
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts DESC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.GetDecisions: query: %w", err)
	}
	defer rows.Close()

	var recs []ports.DecisionRecord
	for rows.Next() {
		var rec ports.DecisionRecord
		if err := rows.Scan(
			&rec.TS, &rec.MarketID, &rec.YesAsk, &rec.NoAsk, &rec.Sum, &rec.EdgeBps,
			&rec.Liquidity, &rec.SpreadBps, &rec.EstProfitUSD, &rec.Action, &rec.Reason,
			&rec.PlannedSize, &rec.TxHash, &rec.Status,
		); err != nil {
			return nil, fmt.Errorf("storage.GetDecisions: scan row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveState upserts the exported state blob for a component.
func (s *SQLiteStore) SaveState(ctx context.Context, component string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO component_state (component, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(component) DO UPDATE SET
			state      = excluded.state,
			updated_at = excluded.updated_at
	`, component, state, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveState: upsert %q: %w", component, err)
	}
	return nil
}

// LoadState returns the last saved state for a component, or nil when
// none exists.
func (s *SQLiteStore) LoadState(ctx context.Context, component string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM component_state WHERE component = ?`, component,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.LoadState: query %q: %w", component, err)
	}
	return state, nil
}

// SaveModeTransition records one mode change.
func (s *SQLiteStore) SaveModeTransition(ctx context.Context, tr domain.ModeTransition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mode_transitions (ts, from_mode, to_mode, reason) VALUES (?, ?, ?, ?)`,
		tr.At.UTC(), string(tr.From), string(tr.To), tr.Reason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveModeTransition: insert: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// pruneOld drops decision and transition rows older than the retention
// window. Component state is always kept.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	s.db.ExecContext(ctx, `DELETE FROM decisions WHERE ts < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM mode_transitions WHERE ts < ?`, cutoff)
}
