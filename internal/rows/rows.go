package rows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/logging"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// Result is a table read back as text, NULL shown as "".
type Result struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Executor applies row edits in one transaction and reads rows back.
type Executor struct {
	exec      *ddl.Executor
	db        catalog.Querier
	inspector catalog.Inspector
	logger    *slog.Logger
}

// NewExecutor shares exec's transaction and audit handling for DML.
func NewExecutor(exec *ddl.Executor, db catalog.Querier, inspector catalog.Inspector, logger *slog.Logger) *Executor {
	return &Executor{exec: exec, db: db, inspector: inspector, logger: logging.Or(logger)}
}

// Apply runs events against table atomically. Failures roll back and are
// reported as *ddl.DdlError.
func (x *Executor) Apply(ctx context.Context, table string, events []schema.RowEvent) error {
	if len(events) == 0 {
		return nil
	}
	pk, err := x.inspector.PrimaryKeyColumns(ctx, table)
	if err != nil {
		return err
	}
	stmts, err := Compile(table, pk, events)
	if err != nil {
		return err
	}
	x.logger.Info("applying row edits", "table", table, "statements", len(stmts))
	return x.exec.Exec(ctx, stmts)
}

// Select reads columns of table as text. With no columns every column is
// read; with no orderBy rows are ordered by the primary key, or by the
// first column when there is none.
func (x *Executor) Select(ctx context.Context, table string, columns, orderBy []string) (*Result, error) {
	if err := ident.Validate("table", table); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		infos, err := x.inspector.ColumnsInfo(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, ci := range infos {
			columns = append(columns, ci.Name)
		}
		if len(columns) == 0 {
			return nil, &catalog.CatalogError{Op: "select", Table: table, Err: fmt.Errorf("table has no columns or does not exist")}
		}
	}
	if len(orderBy) == 0 {
		pk, err := x.inspector.PrimaryKeyColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		orderBy = pk
		if len(orderBy) == 0 {
			orderBy = columns[:1]
		}
	}

	query, err := SelectStatement(table, columns, orderBy)
	if err != nil {
		return nil, err
	}
	rows, err := x.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting rows from %s: %w", table, err)
	}
	values, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]string, error) {
		vals := make([]string, len(columns))
		dest := make([]any, len(columns))
		for i := range vals {
			dest[i] = &vals[i]
		}
		return vals, row.Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("reading rows from %s: %w", table, err)
	}
	return &Result{Columns: columns, Rows: values}, nil
}

// SelectStatement renders the text read-back query.
func SelectStatement(table string, columns, orderBy []string) (string, error) {
	if err := ident.ValidateAll("column", columns...); err != nil {
		return "", err
	}
	if err := ident.ValidateAll("order column", orderBy...); err != nil {
		return "", err
	}
	exprs := make([]string, len(columns))
	for i, c := range columns {
		q := ident.Quote(c)
		exprs[i] = fmt.Sprintf("COALESCE(%s::TEXT, '') AS %s", q, q)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), ident.Quote(table))
	if len(orderBy) > 0 {
		query += " ORDER BY " + ident.QuoteList(orderBy)
	}
	return query, nil
}
