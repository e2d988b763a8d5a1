// Package warehouse wraps the analytics warehouse: executes a parameterized
// query and returns a typed row stream (spec.md §4.1). Credentials are
// resolved once per process; retries at this layer are the caller's
// concern (query idempotence is unknown to the client).
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/semaphore"

	"github.com/ncrc/justdata/pkg/core/engerr"
)

// ColumnType names the typed columns a Table may carry.
type ColumnType int

const (
	ColString ColumnType = iota
	ColInt64
	ColFloat64
	ColBool
)

// Column describes one projected column's name and type.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Row is one record of the result, indexed positionally to match Table.Columns.
type Row []any

// Table is a finite, non-restartable, column-typed result (spec.md §4.1).
type Table struct {
	Columns []Column
	Rows    []Row
}

// ColumnIndex returns the position of a named column, or -1 if absent.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Client executes parameterized queries against the warehouse.
type Client interface {
	Execute(ctx context.Context, query string, params []any) (*Table, error)
}

// PoolClient is the production Client, backed by a pgxpool.Pool. The pool
// concurrency gate (spec.md §5: "Warehouse concurrency: <= W in-flight
// queries") is a *semaphore.Weighted acquired before dispatch and released
// on return, including on context cancellation.
type PoolClient struct {
	pool *pgxpool.Pool
	gate *semaphore.Weighted
}

// NewPoolClient constructs a PoolClient gated to maxConcurrency in-flight
// queries (spec.md §5 default 8).
func NewPoolClient(pool *pgxpool.Pool, maxConcurrency int64) *PoolClient {
	return &PoolClient{pool: pool, gate: semaphore.NewWeighted(maxConcurrency)}
}

// Dial opens the pgxpool connection pool described by dsn.
func Dial(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing warehouse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dialing warehouse: %w", err)
	}
	return pool, nil
}

// Execute runs query with params, translating pgx errors into the engine's
// typed failure kinds: connection-level errors become WarehouseTransient
// (retryable by the orchestrator up to 3 attempts); SQLSTATE syntax/
// undefined-object and auth/quota classes become WarehouseFatal.
func (c *PoolClient) Execute(ctx context.Context, query string, params []any) (*Table, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, &engerr.Cancelled{Stage: "warehouse-execute"}
	}
	defer c.gate.Release(1)

	rows, err := c.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, classifyError("warehouse-execute", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	table := &Table{Columns: make([]Column, len(fieldDescs))}
	for i, fd := range fieldDescs {
		table.Columns[i] = Column{Name: string(fd.Name), Type: ColFloat64, Nullable: true}
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classifyError("warehouse-execute", err)
		}
		table.Rows = append(table.Rows, Row(values))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError("warehouse-execute", err)
	}
	return table, nil
}

func classifyError(stage string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "28000" || pgErr.Code == "28P01" || pgErr.Code == "53300" || pgErr.Code == "42501":
			return &engerr.WarehouseFatal{Stage: stage, Reason: "permission-or-quota", Err: err}
		case strings.HasPrefix(pgErr.Code, "42"):
			return &engerr.WarehouseFatal{Stage: stage, Reason: "query-error", Err: err}
		}
		return &engerr.WarehouseFatal{Stage: stage, Reason: "query-error", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &engerr.WarehouseTransient{Stage: stage, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &engerr.WarehouseFatal{Stage: stage, Reason: "timeout", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &engerr.Cancelled{Stage: stage}
	}
	if errors.Is(err, pgx.ErrTooManyRows) || errors.Is(err, pgx.ErrNoRows) {
		return &engerr.WarehouseFatal{Stage: stage, Reason: "query-error", Err: err}
	}
	return &engerr.WarehouseTransient{Stage: stage, Err: err}
}

// WithTimeout bounds a warehouse stage to the given wall clock, converting
// a subsequent context-deadline error to engerr.WarehouseFatal{Reason:
// "timeout"} at the call site via classifyError.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}
