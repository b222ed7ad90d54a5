package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/tablesmith/tablesmith/internal/schema"
)

// Mock is an in-memory Inspector for tests. Keys are table names; foreign
// key constraint names are keyed by "table.column".
type Mock struct {
	mu sync.Mutex

	Columns       map[string][]ColumnInfo
	PKConstraints map[string]string
	FKConstraints map[string]string
	Err           error
	Calls         []string
}

// NewMock builds a Mock from snapshots, naming primary keys "<table>_pkey"
// the way PostgreSQL does by default.
func NewMock(snapshots ...schema.TableSnapshot) *Mock {
	m := &Mock{
		Columns:       make(map[string][]ColumnInfo),
		PKConstraints: make(map[string]string),
		FKConstraints: make(map[string]string),
	}
	for _, s := range snapshots {
		m.SetSnapshot(s)
	}
	return m
}

// SetSnapshot replaces the catalog entry for s.TableName.
func (m *Mock) SetSnapshot(s schema.TableSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]ColumnInfo, 0, len(s.Columns))
	hasPK := false
	for _, c := range s.Columns {
		ci := ColumnInfo{Name: c.Name, DataType: string(c.DataType), PrimaryKey: c.IsPrimaryKey()}
		if fk, ok := c.ForeignKey(); ok {
			rt, rc := fk.ReferencedTable, fk.ReferencedColumn
			ci.ReferencedTable, ci.ReferencedColumn = &rt, &rc
			m.FKConstraints[s.TableName+"."+c.Name] = s.TableName + "_" + c.Name + "_fkey"
		}
		hasPK = hasPK || ci.PrimaryKey
		infos = append(infos, ci)
	}
	m.Columns[s.TableName] = infos
	if hasPK {
		m.PKConstraints[s.TableName] = s.TableName + "_pkey"
	} else {
		delete(m.PKConstraints, s.TableName)
	}
}

// Drop removes a table from the mock catalog.
func (m *Mock) Drop(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Columns, table)
	delete(m.PKConstraints, table)
}

func (m *Mock) PrimaryKeyColumns(_ context.Context, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "PrimaryKeyColumns:"+table)
	if m.Err != nil {
		return nil, &CatalogError{Op: "primary key columns", Table: table, Err: m.Err}
	}
	var names []string
	for _, ci := range m.Columns[table] {
		if ci.PrimaryKey {
			names = append(names, ci.Name)
		}
	}
	return names, nil
}

func (m *Mock) ColumnsInfo(_ context.Context, table string) ([]ColumnInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "ColumnsInfo:"+table)
	if m.Err != nil {
		return nil, &CatalogError{Op: "columns info", Table: table, Err: m.Err}
	}
	return append([]ColumnInfo(nil), m.Columns[table]...), nil
}

func (m *Mock) PrimaryKeyConstraintName(_ context.Context, table string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "PrimaryKeyConstraintName:"+table)
	if m.Err != nil {
		return "", false, &CatalogError{Op: "primary key constraint", Table: table, Err: m.Err}
	}
	name, ok := m.PKConstraints[table]
	return name, ok, nil
}

func (m *Mock) ForeignKeyConstraintName(_ context.Context, table, column string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "ForeignKeyConstraintName:"+table+"."+column)
	if m.Err != nil {
		return "", false, &CatalogError{Op: "foreign key constraint", Table: table, Err: m.Err}
	}
	name, ok := m.FKConstraints[table+"."+column]
	return name, ok, nil
}

func (m *Mock) TablesOverview(_ context.Context) ([]schema.TableOverview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "TablesOverview")
	if m.Err != nil {
		return nil, &CatalogError{Op: "tables overview", Err: m.Err}
	}
	names := make([]string, 0, len(m.Columns))
	for name := range m.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]schema.TableOverview, 0, len(names))
	for _, name := range names {
		tv := schema.TableOverview{TableName: name}
		for _, ci := range m.Columns[name] {
			tv.ColumnNames = append(tv.ColumnNames, ci.Name)
			tv.DataTypes = append(tv.DataTypes, schema.FromCatalog(ci.DataType))
			tv.Unique = append(tv.Unique, ci.PrimaryKey)
		}
		tables = append(tables, tv)
	}
	return tables, nil
}

var _ Inspector = (*Mock)(nil)
