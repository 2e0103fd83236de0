package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal stores events in a local SQLite table for later review of
// trades and chain advances.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	slog.Info("sqlite event journal opened", "path", path)
	return &SQLiteJournal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL,
			type       TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			symbol     TEXT,
			chain      TEXT,
			direction  TEXT,
			price      REAL    NOT NULL,
			from_node  TEXT,
			to_node    TEXT,
			reference  REAL,
			threshold  REAL,
			floor      REAL,
			reason     TEXT,
			order_id   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_run ON events (run_id, ts);
	`)
	return err
}

func (s *SQLiteJournal) Emit(ctx context.Context, event Event) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, type, ts, symbol, chain, direction, price, from_node, to_node, reference, threshold, floor, reason, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, string(event.Type), event.Timestamp.UnixMilli(), event.Symbol, string(event.Chain),
		string(event.Direction), event.Price, event.FromNode, event.ToNode, event.Reference,
		event.Threshold, event.Floor, event.Reason, event.OrderID,
	)
	if err != nil {
		slog.Error("sqlite journal insert failed", "type", event.Type, "error", err)
	}
}

func (s *SQLiteJournal) Close() error {
	return s.db.Close()
}
