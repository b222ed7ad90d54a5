// Package catalog reads table metadata from the live PostgreSQL catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/tablesmith/tablesmith/internal/schema"
)

// Inspector answers read-only questions about the catalog. Implementations
// return *CatalogError on failure and never retry.
type Inspector interface {
	// PrimaryKeyColumns lists the primary-key columns of table in declared order.
	PrimaryKeyColumns(ctx context.Context, table string) ([]string, error)

	// ColumnsInfo returns one row per column with its constraints aggregated.
	ColumnsInfo(ctx context.Context, table string) ([]ColumnInfo, error)

	// PrimaryKeyConstraintName returns the name of table's primary-key constraint.
	PrimaryKeyConstraintName(ctx context.Context, table string) (string, bool, error)

	// ForeignKeyConstraintName returns the foreign-key constraint on table.column.
	ForeignKeyConstraintName(ctx context.Context, table, column string) (string, bool, error)

	// TablesOverview lists every base table with its columns and types.
	TablesOverview(ctx context.Context) ([]schema.TableOverview, error)
}

// ColumnInfo is one column as reported by the catalog.
type ColumnInfo struct {
	Name             string
	DataType         string
	PrimaryKey       bool
	ReferencedTable  *string
	ReferencedColumn *string
}

// Column converts the catalog row into the editor's column model.
func (ci ColumnInfo) Column() schema.Column {
	col := schema.Column{Name: ci.Name, DataType: schema.FromCatalog(ci.DataType)}
	if ci.PrimaryKey {
		col.Constraints = append(col.Constraints, schema.PrimaryKey())
	}
	if ci.ReferencedTable != nil && ci.ReferencedColumn != nil {
		col.Constraints = append(col.Constraints, schema.ForeignKey(*ci.ReferencedTable, *ci.ReferencedColumn))
	}
	return col
}

// Snapshot fetches the columns of table and builds a TableSnapshot.
func Snapshot(ctx context.Context, in Inspector, table string) (schema.TableSnapshot, error) {
	infos, err := in.ColumnsInfo(ctx, table)
	if err != nil {
		return schema.TableSnapshot{}, err
	}
	snap := schema.TableSnapshot{TableName: table, Columns: make([]schema.Column, 0, len(infos))}
	for _, ci := range infos {
		snap.Columns = append(snap.Columns, ci.Column())
	}
	return snap, nil
}

// ErrTableNotFound is wrapped in a CatalogError when a table has no columns
// in the catalog.
var ErrTableNotFound = errors.New("table not found")

// CatalogError wraps a failed catalog query.
type CatalogError struct {
	Op    string
	Table string
	Err   error
}

func (e *CatalogError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("catalog %s for table %s: %v", e.Op, e.Table, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }
