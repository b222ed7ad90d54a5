package schema

import (
	"strings"

	"github.com/tablesmith/tablesmith/internal/ident"
)

// DataType is a column type the editor can emit into DDL.
type DataType string

const (
	Text      DataType = "TEXT"
	Integer   DataType = "INTEGER"
	BigInt    DataType = "BIGINT"
	Double    DataType = "DOUBLE PRECISION"
	Boolean   DataType = "BOOLEAN"
	Date      DataType = "DATE"
	Timestamp DataType = "TIMESTAMP"
)

// DataTypes lists every supported type in display order.
var DataTypes = []DataType{Text, Integer, BigInt, Double, Boolean, Date, Timestamp}

// catalogTypes maps information_schema.columns.data_type onto DataType.
var catalogTypes = map[string]DataType{
	"text":                        Text,
	"integer":                     Integer,
	"bigint":                      BigInt,
	"double precision":            Double,
	"boolean":                     Boolean,
	"date":                        Date,
	"timestamp without time zone": Timestamp,
}

// ParseDataType parses user input such as "integer" or "TIMESTAMP".
func ParseDataType(s string) (DataType, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	switch want {
	case "INT", "INT4":
		return Integer, nil
	case "INT8":
		return BigInt, nil
	case "DOUBLE", "FLOAT8":
		return Double, nil
	case "BOOL":
		return Boolean, nil
	}
	for _, dt := range DataTypes {
		if string(dt) == want {
			return dt, nil
		}
	}
	return "", &ident.ValidationError{Field: "data type", Value: s, Reason: "unsupported type"}
}

// FromCatalog converts a catalog type name. Types the editor does not know
// are kept verbatim (upper-cased) so snapshots stay faithful.
func FromCatalog(s string) DataType {
	if dt, ok := catalogTypes[strings.ToLower(s)]; ok {
		return dt
	}
	return DataType(strings.ToUpper(s))
}

// Known reports whether the type may be emitted into DDL.
func (d DataType) Known() bool {
	for _, dt := range DataTypes {
		if dt == d {
			return true
		}
	}
	return false
}

// Validate returns a ValidationError for types outside the supported set.
func (d DataType) Validate() error {
	if !d.Known() {
		return &ident.ValidationError{Field: "data type", Value: string(d), Reason: "unsupported type"}
	}
	return nil
}

// ConstraintKind discriminates Constraint.
type ConstraintKind string

const (
	PrimaryKeyConstraint ConstraintKind = "primary_key"
	ForeignKeyConstraint ConstraintKind = "foreign_key"
)

// Constraint is either a primary-key marker or a foreign-key reference.
type Constraint struct {
	Kind             ConstraintKind `yaml:"kind" json:"kind"`
	ReferencedTable  string         `yaml:"referenced_table,omitempty" json:"referenced_table,omitempty"`
	ReferencedColumn string         `yaml:"referenced_column,omitempty" json:"referenced_column,omitempty"`
}

// PrimaryKey returns the primary-key marker.
func PrimaryKey() Constraint {
	return Constraint{Kind: PrimaryKeyConstraint}
}

// ForeignKey returns a foreign-key reference to table(column).
func ForeignKey(table, column string) Constraint {
	return Constraint{Kind: ForeignKeyConstraint, ReferencedTable: table, ReferencedColumn: column}
}

// Column is a table column as last read from the catalog.
type Column struct {
	Name        string       `yaml:"name" json:"name"`
	DataType    DataType     `yaml:"data_type" json:"data_type"`
	Constraints []Constraint `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// IsPrimaryKey reports whether the column carries the primary-key marker.
func (c Column) IsPrimaryKey() bool {
	for _, con := range c.Constraints {
		if con.Kind == PrimaryKeyConstraint {
			return true
		}
	}
	return false
}

// ForeignKey returns the column's foreign-key reference, if any.
func (c Column) ForeignKey() (Constraint, bool) {
	for _, con := range c.Constraints {
		if con.Kind == ForeignKeyConstraint {
			return con, true
		}
	}
	return Constraint{}, false
}

// TableSnapshot is the catalog's view of one table at session start.
type TableSnapshot struct {
	TableName string   `yaml:"table_name" json:"table_name"`
	Columns   []Column `yaml:"columns" json:"columns"`
}

// Column looks up a column by name.
func (s TableSnapshot) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PrimaryKeyColumns returns the primary-key column names in column order.
func (s TableSnapshot) PrimaryKeyColumns() []string {
	var names []string
	for _, c := range s.Columns {
		if c.IsPrimaryKey() {
			names = append(names, c.Name)
		}
	}
	return names
}

// ForeignKey returns the foreign-key reference of the named column, if any.
func (s TableSnapshot) ForeignKey(column string) (Constraint, bool) {
	c, ok := s.Column(column)
	if !ok {
		return Constraint{}, false
	}
	return c.ForeignKey()
}

// ColumnNames returns every column name in order.
func (s TableSnapshot) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// TableOverview is the per-table summary used for foreign-key selection.
type TableOverview struct {
	TableName   string     `yaml:"table_name" json:"table_name"`
	ColumnNames []string   `yaml:"column_names" json:"column_names"`
	DataTypes   []DataType `yaml:"data_types" json:"data_types"`
	Unique      []bool     `yaml:"unique" json:"unique"`
}

// TableSpec describes a table to create.
type TableSpec struct {
	TableName string   `yaml:"table_name" json:"table_name"`
	Columns   []Column `yaml:"columns" json:"columns"`
}

// HasPrimaryKey reports whether any column is marked as primary key.
func (t TableSpec) HasPrimaryKey() bool {
	for _, c := range t.Columns {
		if c.IsPrimaryKey() {
			return true
		}
	}
	return false
}
