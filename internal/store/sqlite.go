package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"barsim/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ SeriesStore = (*SQLiteStore)(nil)
var _ SignalStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS series_meta (
	timeframe TEXT PRIMARY KEY,
	symbols   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy_id TEXT    NOT NULL,
	symbol      TEXT    NOT NULL,
	type        TEXT    NOT NULL,
	strength    REAL    NOT NULL,
	metadata    TEXT,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_strategy ON signals (strategy_id, created_at);
`

// SQLiteStore implements SeriesStore and SignalStore backed by a SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Single connection: every write is visible to the next read.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// SeriesStore implementation
// ---------------------------------------------------------------------------

// ResetSeries drops and recreates the field tables for tf.
func (s *SQLiteStore) ResetSeries(ctx context.Context, tf domain.Timeframe, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("reset %s: no symbols", tf)
	}
	cols := make([]string, len(symbols))
	for i, sym := range symbols {
		cols[i] = quoteIdent(sym) + " REAL"
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, f := range domain.Fields {
			table := seriesTable(tf, f)
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return err
			}
			ddl := fmt.Sprintf("CREATE TABLE %s (seq INTEGER PRIMARY KEY AUTOINCREMENT, ts INTEGER NOT NULL, %s)",
				table, strings.Join(cols, ", "))
			if _, err := tx.ExecContext(ctx, ddl); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO series_meta (timeframe, symbols) VALUES (?, ?)",
			tf.Key, strings.Join(symbols, ","))
		return err
	})
}

// AppendRow inserts row into every field table of tf.
func (s *SQLiteStore) AppendRow(ctx context.Context, tf domain.Timeframe, row domain.Row) error {
	symbols, err := s.seriesSymbols(ctx, tf)
	if err != nil {
		return err
	}
	if len(row.Cells) != len(symbols) {
		return fmt.Errorf("append %s: row has %d cells, series has %d symbols", tf, len(row.Cells), len(symbols))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertRow(ctx, tx, tf, symbols, row)
	})
}

// ReplaceLastRow deletes the newest row of every field table and appends row.
func (s *SQLiteStore) ReplaceLastRow(ctx context.Context, tf domain.Timeframe, row domain.Row) error {
	symbols, err := s.seriesSymbols(ctx, tf)
	if err != nil {
		return err
	}
	if len(row.Cells) != len(symbols) {
		return fmt.Errorf("replace %s: row has %d cells, series has %d symbols", tf, len(row.Cells), len(symbols))
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, f := range domain.Fields {
			table := seriesTable(tf, f)
			del := fmt.Sprintf("DELETE FROM %s WHERE seq = (SELECT MAX(seq) FROM %s)", table, table)
			if _, err := tx.ExecContext(ctx, del); err != nil {
				return err
			}
		}
		return insertRow(ctx, tx, tf, symbols, row)
	})
}

// ReadLastRows returns the n newest rows of tf, oldest first.
func (s *SQLiteStore) ReadLastRows(ctx context.Context, tf domain.Timeframe, n int) ([]domain.Row, error) {
	symbols, err := s.seriesSymbols(ctx, tf)
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(symbols))
	for i, sym := range symbols {
		cols[i] = quoteIdent(sym)
	}

	var rows []domain.Row
	for fi, f := range domain.Fields {
		q := fmt.Sprintf("SELECT ts, %s FROM %s ORDER BY seq DESC LIMIT ?", strings.Join(cols, ", "), seriesTable(tf, f))
		res, err := s.db.QueryContext(ctx, q, n)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", seriesTable(tf, f), err)
		}

		var i int
		for res.Next() {
			var ts int64
			vals := make([]float64, len(symbols))
			dest := make([]any, 0, len(symbols)+1)
			dest = append(dest, &ts)
			for j := range vals {
				dest = append(dest, &vals[j])
			}
			if err := res.Scan(dest...); err != nil {
				res.Close()
				return nil, err
			}
			if fi == 0 {
				rows = append(rows, domain.Row{Time: time.UnixMilli(ts).UTC(), Cells: make([]domain.OHLCV, len(symbols))})
			}
			if i < len(rows) {
				for j, v := range vals {
					rows[i].Cells[j].Set(f, v)
				}
			}
			i++
		}
		if err := res.Err(); err != nil {
			res.Close()
			return nil, err
		}
		res.Close()
	}

	// Rows were read newest first.
	for l, r := 0, len(rows)-1; l < r; l, r = l+1, r-1 {
		rows[l], rows[r] = rows[r], rows[l]
	}
	return rows, nil
}

func (s *SQLiteStore) seriesSymbols(ctx context.Context, tf domain.Timeframe) ([]string, error) {
	var joined string
	err := s.db.QueryRowContext(ctx, "SELECT symbols FROM series_meta WHERE timeframe = ?", tf.Key).Scan(&joined)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("series %s has not been reset", tf)
	}
	if err != nil {
		return nil, err
	}
	return strings.Split(joined, ","), nil
}

func insertRow(ctx context.Context, tx *sql.Tx, tf domain.Timeframe, symbols []string, row domain.Row) error {
	cols := make([]string, len(symbols))
	marks := make([]string, len(symbols))
	for i, sym := range symbols {
		cols[i] = quoteIdent(sym)
		marks[i] = "?"
	}
	for _, f := range domain.Fields {
		q := fmt.Sprintf("INSERT INTO %s (ts, %s) VALUES (?, %s)",
			seriesTable(tf, f), strings.Join(cols, ", "), strings.Join(marks, ", "))
		args := make([]any, 0, len(symbols)+1)
		args = append(args, row.Time.UnixMilli())
		for _, c := range row.Cells {
			args = append(args, c.Get(f))
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", seriesTable(tf, f), err)
		}
	}
	return nil
}

// seriesTable names the table of one (timeframe, field) pair, e.g.
// series_5min_close.
func seriesTable(tf domain.Timeframe, f domain.Field) string {
	return "series_" + strings.ToLower(tf.Key) + "_" + string(f)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// SignalStore implementation
// ---------------------------------------------------------------------------

// SaveSignal inserts a new signal into the database.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig *domain.Signal) error {
	var meta []byte
	if len(sig.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(sig.Metadata); err != nil {
			return fmt.Errorf("encoding signal metadata: %w", err)
		}
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals (strategy_id, symbol, type, strength, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sig.StrategyID, sig.Symbol, string(sig.Type), sig.Strength, string(meta), sig.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting signal: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sig.ID = id
	return nil
}

// ListSignals returns the most recent signals for a strategy, up to limit.
func (s *SQLiteStore) ListSignals(ctx context.Context, strategyID string, limit int) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, strategy_id, symbol, type, strength, metadata, created_at
		 FROM signals WHERE strategy_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var (
			sig     domain.Signal
			typ     string
			meta    sql.NullString
			created int64
		)
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &typ, &sig.Strength, &meta, &created); err != nil {
			return nil, err
		}
		sig.Type = domain.SignalType(typ)
		sig.CreatedAt = time.UnixMilli(created)
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &sig.Metadata); err != nil {
				return nil, fmt.Errorf("decoding signal %d metadata: %w", sig.ID, err)
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
