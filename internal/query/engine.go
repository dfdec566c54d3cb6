// Package query exposes the clean table to analyst-supplied SQL. The table
// is snapshotted into an in-memory SQLite database at load time; the
// snapshot is a throwaway session copy, so even write statements never touch
// the source CSV or any other component's view.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-gota/gota/series"
	_ "modernc.org/sqlite"

	"ride-insights/internal/dataset"
	"ride-insights/internal/models"
)

// Relation is the fixed name the clean table is exposed under.
const Relation = "ola_rides"

// DefaultQuery pre-fills the dashboard's SQL editor.
const DefaultQuery = "SELECT Booking_ID, Date, Time, Booking_Status, Customer_ID, " +
	"Vehicle_Type, Booking_Value, Payment_Method FROM ola_rides " +
	"WHERE Booking_Status = 'Success' LIMIT 100;"

// Engine runs ad-hoc SQL against one dataset snapshot. No query timeout or
// resource cap is imposed; a runaway query blocking its request is an
// accepted limitation of a single-analyst tool.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEngine snapshots the table into a fresh in-memory database. The
// snapshot is not refreshed if the source table changes later.
func NewEngine(ctx context.Context, t *dataset.Table, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	// Every new connection would get its own empty :memory: database.
	db.SetMaxOpenConns(1)

	e := &Engine{db: db, logger: logger}
	start := time.Now()
	if err := e.snapshot(ctx, t); err != nil {
		db.Close()
		return nil, fmt.Errorf("snapshot table: %w", err)
	}
	logger.Info("query snapshot ready",
		"relation", Relation,
		"rows", t.Nrow(),
		"duration", time.Since(start),
	)
	return e, nil
}

func (e *Engine) snapshot(ctx context.Context, t *dataset.Table) error {
	names := t.Names()
	types := t.Types()

	ddl := make([]string, len(names))
	for i, name := range names {
		ddl[i] = quoteIdent(name) + " " + sqlType(types[i])
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(Relation), strings.Join(ddl, ", "))
	if _, err := e.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create relation: %w", err)
	}

	if t.Nrow() == 0 {
		return nil
	}

	// Column-major extraction, then row-wise inserts inside one transaction.
	cols := make([][]any, len(names))
	for i, name := range names {
		cols[i] = columnValues(t, name, types[i])
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := "?" + strings.Repeat(", ?", len(names)-1)
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(Relation), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	row := make([]any, len(names))
	for r := 0; r < t.Nrow(); r++ {
		for c := range names {
			row[c] = cols[c][r]
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row %d: %w", r, err)
		}
	}
	return tx.Commit()
}

// Run executes analyst SQL and returns the result table. Errors carry the
// engine's message for inline display; they never affect other components.
func (e *Engine) Run(ctx context.Context, text string) (*models.QueryResult, error) {
	rows, err := e.db.QueryContext(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	result := &models.QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		for i, v := range cells {
			if b, ok := v.([]byte); ok {
				cells[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, cells)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return result, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// columnValues maps a table column to driver values: NaN floats and empty
// strings become NULL so SQL aggregates skip them the way the aggregator
// does.
func columnValues(t *dataset.Table, name string, st series.Type) []any {
	n := t.Nrow()
	out := make([]any, n)
	switch st {
	case series.Float, series.Int:
		vals := t.Floats(name)
		for i, v := range vals {
			if math.IsNaN(v) {
				out[i] = nil
			} else {
				out[i] = v
			}
		}
	default:
		recs := t.Strings(name)
		for i, v := range recs {
			if v == "" {
				out[i] = nil
			} else {
				out[i] = v
			}
		}
	}
	return out
}

func sqlType(st series.Type) string {
	switch st {
	case series.Float:
		return "REAL"
	case series.Int:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
