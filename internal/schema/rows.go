package schema

import "fmt"

// Condition is one equality term of a row filter.
type Condition struct {
	ColumnName string   `yaml:"column" json:"column"`
	DataType   DataType `yaml:"type" json:"type"`
	Value      string   `yaml:"value" json:"value"`
}

// ColumnValue is one assignment of an UPDATE.
type ColumnValue struct {
	ColumnName string   `yaml:"column" json:"column"`
	DataType   DataType `yaml:"type" json:"type"`
	Value      string   `yaml:"value" json:"value"`
}

// RowEvent is one row-level edit. Like Event, the set is closed.
type RowEvent interface {
	rowEvent()
	String() string
}

// ModifyRow updates the rows matching Conditions.
type ModifyRow struct {
	Conditions []Condition
	Values     []ColumnValue
}

// DeleteRow deletes the rows matching Conditions.
type DeleteRow struct {
	Conditions []Condition
}

// InsertRow inserts one row. The three slices are parallel.
type InsertRow struct {
	ColumnNames []string
	Values      []string
	DataTypes   []DataType
}

func (ModifyRow) rowEvent() {}
func (DeleteRow) rowEvent() {}
func (InsertRow) rowEvent() {}

func (e ModifyRow) String() string {
	return fmt.Sprintf("ModifyRow(%d conditions, %d values)", len(e.Conditions), len(e.Values))
}
func (e DeleteRow) String() string { return fmt.Sprintf("DeleteRow(%d conditions)", len(e.Conditions)) }
func (e InsertRow) String() string { return fmt.Sprintf("InsertRow(%v)", e.ColumnNames) }
