package ddl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/tablesmith/tablesmith/internal/audit"
	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/logging"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DdlError reports the statement that made a transaction roll back.
type DdlError struct {
	Statement string
	Index     int
	Err       error
}

func (e *DdlError) Error() string {
	return fmt.Sprintf("statement %d failed, transaction rolled back: %s: %v", e.Index+1, e.Statement, e.Err)
}

func (e *DdlError) Unwrap() error { return e.Err }

// Executor runs compiled DDL in one transaction per call.
type Executor struct {
	db        Beginner
	inspector catalog.Inspector
	audit     audit.Sink
	logger    *slog.Logger
}

// NewExecutor wires an executor. A nil sink discards audit output.
func NewExecutor(db Beginner, inspector catalog.Inspector, sink audit.Sink, logger *slog.Logger) *Executor {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &Executor{db: db, inspector: inspector, audit: sink, logger: logging.Or(logger)}
}

// Plan resolves the constraint names events will drop and returns a Plan
// ready for Compile.
func (x *Executor) Plan(ctx context.Context, table string, events []schema.Event, initialPK []string) (Plan, error) {
	p := Plan{
		Table:                 table,
		Events:                events,
		PrimaryKey:            initialPK,
		ForeignKeyConstraints: make(map[string]string),
	}

	if touchesPrimaryKey(events) {
		name, ok, err := x.inspector.PrimaryKeyConstraintName(ctx, table)
		if err != nil {
			return Plan{}, err
		}
		if ok {
			p.PrimaryKeyConstraint = name
		}
	}

	for _, e := range events {
		ev, ok := e.(schema.RemoveForeignKey)
		if !ok {
			continue
		}
		name, ok, err := x.inspector.ForeignKeyConstraintName(ctx, table, catalogColumn(events, ev.Column))
		if err != nil {
			return Plan{}, err
		}
		if ok {
			p.ForeignKeyConstraints[ev.Column] = name
		}
	}
	return p, nil
}

// Statements plans and compiles without executing.
func (x *Executor) Statements(ctx context.Context, table string, events []schema.Event, initialPK []string) ([]string, error) {
	p, err := x.Plan(ctx, table, events, initialPK)
	if err != nil {
		return nil, err
	}
	return Compile(p)
}

// Alter applies events to table atomically. On failure nothing is applied
// and the error is a *DdlError, a *catalog.CatalogError or an
// *ident.ValidationError.
func (x *Executor) Alter(ctx context.Context, table string, events []schema.Event, initialPK []string) error {
	if len(events) == 0 {
		return nil
	}
	stmts, err := x.Statements(ctx, table, events, initialPK)
	if err != nil {
		return err
	}
	x.logger.Info("altering table", "table", table, "events", len(events), "statements", len(stmts))
	return x.Exec(ctx, stmts)
}

// CreateTable creates spec. A table without a primary-key column gets an
// "id INTEGER" key column first.
func (x *Executor) CreateTable(ctx context.Context, spec schema.TableSpec) error {
	stmt, err := CreateTableStatement(spec)
	if err != nil {
		return err
	}
	x.logger.Info("creating table", "table", spec.TableName, "columns", len(spec.Columns))
	return x.Exec(ctx, []string{stmt})
}

// DropTable drops the named table.
func (x *Executor) DropTable(ctx context.Context, table string) error {
	if err := ident.Validate("table", table); err != nil {
		return err
	}
	x.logger.Info("dropping table", "table", table)
	return x.Exec(ctx, []string{"DROP TABLE " + ident.Quote(table)})
}

// Exec runs stmts in one transaction and mirrors them to the audit sink
// once committed.
func (x *Executor) Exec(ctx context.Context, stmts []string) error {
	tx, err := x.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, stmt := range stmts {
		x.logger.Debug("executing", "index", i, "statement", stmt)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			x.logger.Error("statement failed, rolling back", "index", i, "statement", stmt, "error", err)
			return &DdlError{Statement: stmt, Index: i, Err: err}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	for _, stmt := range stmts {
		x.audit.Write(stmt)
	}
	return nil
}

// CreateTableStatement renders a CREATE TABLE statement for spec.
func CreateTableStatement(spec schema.TableSpec) (string, error) {
	if err := ident.Validate("table", spec.TableName); err != nil {
		return "", err
	}
	cols := spec.Columns
	if !spec.HasPrimaryKey() {
		cols = append([]schema.Column{{
			Name:        "id",
			DataType:    schema.Integer,
			Constraints: []schema.Constraint{schema.PrimaryKey()},
		}}, cols...)
	}
	if len(cols) == 0 {
		return "", &ident.ValidationError{Field: "table", Value: spec.TableName, Reason: "has no columns"}
	}

	var (
		defs []string
		pk   []string
		seen = make(map[string]bool)
	)
	for _, c := range cols {
		if err := ident.Validate("column", c.Name); err != nil {
			return "", err
		}
		if seen[c.Name] {
			return "", &ident.ValidationError{Field: "column", Value: c.Name, Reason: "declared twice"}
		}
		seen[c.Name] = true
		if err := c.DataType.Validate(); err != nil {
			return "", err
		}
		def := ident.Quote(c.Name) + " " + string(c.DataType)
		if fk, ok := c.ForeignKey(); ok {
			if err := ident.ValidateAll("foreign key reference", fk.ReferencedTable, fk.ReferencedColumn); err != nil {
				return "", err
			}
			def += fmt.Sprintf(" REFERENCES %s (%s)", ident.Quote(fk.ReferencedTable), ident.Quote(fk.ReferencedColumn))
		}
		if c.IsPrimaryKey() {
			pk = append(pk, c.Name)
		}
		defs = append(defs, def)
	}
	defs = append(defs, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
		ident.Quote(primaryKeyName(spec.TableName)), ident.QuoteList(pk)))

	return fmt.Sprintf("CREATE TABLE %s (%s)", ident.Quote(spec.TableName), strings.Join(defs, ", ")), nil
}

func touchesPrimaryKey(events []schema.Event) bool {
	for _, e := range events {
		switch e.(type) {
		case schema.AddPrimaryKey, schema.RemovePrimaryKey, schema.RemoveColumn, schema.RenameColumn:
			return true
		}
	}
	return false
}

// catalogColumn maps a current column name back through a pending rename.
func catalogColumn(events []schema.Event, col string) string {
	for _, e := range events {
		if ev, ok := e.(schema.RenameColumn); ok && ev.To == col {
			return ev.From
		}
	}
	return col
}
