package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mindmapper/conductor/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS cost_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL,
	total_cost    REAL NOT NULL,
	total_tokens  INTEGER NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	model         TEXT NOT NULL,
	timestamp     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cost_records_session ON cost_records(session_id);
`

// Compile-time check that SQLite implements core.CostStore.
var _ core.CostStore = (*SQLite)(nil)

// SQLite is a durable cost store backed by a single SQLite database file.
// SQLite supports one writer, which matches the ledger's single-writer
// invariant: only the active session's controller appends.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the ledger database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLite{db: db}, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Append inserts one record.
func (s *SQLite) Append(record core.CostRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO cost_records (session_id, total_cost, total_tokens, input_tokens, output_tokens, model, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.SessionID,
		record.TotalCost,
		record.TotalTokens,
		record.InputTokens,
		record.OutputTokens,
		record.Model,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append cost record: %w", err)
	}
	return nil
}

// ReadAll returns every record in insertion order.
func (s *SQLite) ReadAll() ([]core.CostRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, total_cost, total_tokens, input_tokens, output_tokens, model, timestamp
		 FROM cost_records ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("read cost records: %w", err)
	}
	defer rows.Close()

	var records []core.CostRecord
	for rows.Next() {
		var rec core.CostRecord
		var ts string
		if err := rows.Scan(&rec.SessionID, &rec.TotalCost, &rec.TotalTokens, &rec.InputTokens, &rec.OutputTokens, &rec.Model, &ts); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse cost record timestamp: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost records: %w", err)
	}
	return records, nil
}

// Totals aggregates the full ledger into a cumulative summary.
func (s *SQLite) Totals() (core.CostSummary, error) {
	records, err := s.ReadAll()
	if err != nil {
		return core.CostSummary{}, err
	}
	return core.Summarize(records), nil
}
