package schema

import "fmt"

// EventKind names a schema edit.
type EventKind string

const (
	KindRenameTable      EventKind = "rename_table"
	KindChangeColumnType EventKind = "change_column_type"
	KindRenameColumn     EventKind = "rename_column"
	KindRemoveColumn     EventKind = "remove_column"
	KindAddColumn        EventKind = "add_column"
	KindAddForeignKey    EventKind = "add_foreign_key"
	KindRemoveForeignKey EventKind = "remove_foreign_key"
	KindAddPrimaryKey    EventKind = "add_primary_key"
	KindRemovePrimaryKey EventKind = "remove_primary_key"
)

// Event is one schema edit issued against a table. The set of
// implementations is closed; switches over Event must handle every case.
type Event interface {
	Kind() EventKind
	String() string
	event()
}

type RenameTable struct {
	NewName string
}

type ChangeColumnType struct {
	Column string
	Type   DataType
}

type RenameColumn struct {
	From string
	To   string
}

type RemoveColumn struct {
	Column string
}

type AddColumn struct {
	Column string
	Type   DataType
}

type AddForeignKey struct {
	Column           string
	ReferencedTable  string
	ReferencedColumn string
}

type RemoveForeignKey struct {
	Column string
}

type AddPrimaryKey struct {
	Column string
}

type RemovePrimaryKey struct {
	Column string
}

func (RenameTable) Kind() EventKind      { return KindRenameTable }
func (ChangeColumnType) Kind() EventKind { return KindChangeColumnType }
func (RenameColumn) Kind() EventKind     { return KindRenameColumn }
func (RemoveColumn) Kind() EventKind     { return KindRemoveColumn }
func (AddColumn) Kind() EventKind        { return KindAddColumn }
func (AddForeignKey) Kind() EventKind    { return KindAddForeignKey }
func (RemoveForeignKey) Kind() EventKind { return KindRemoveForeignKey }
func (AddPrimaryKey) Kind() EventKind    { return KindAddPrimaryKey }
func (RemovePrimaryKey) Kind() EventKind { return KindRemovePrimaryKey }

func (RenameTable) event()      {}
func (ChangeColumnType) event() {}
func (RenameColumn) event()     {}
func (RemoveColumn) event()     {}
func (AddColumn) event()        {}
func (AddForeignKey) event()    {}
func (RemoveForeignKey) event() {}
func (AddPrimaryKey) event()    {}
func (RemovePrimaryKey) event() {}

func (e RenameTable) String() string { return fmt.Sprintf("RenameTable(%s)", e.NewName) }
func (e ChangeColumnType) String() string {
	return fmt.Sprintf("ChangeColumnType(%s, %s)", e.Column, e.Type)
}
func (e RenameColumn) String() string { return fmt.Sprintf("RenameColumn(%s, %s)", e.From, e.To) }
func (e RemoveColumn) String() string { return fmt.Sprintf("RemoveColumn(%s)", e.Column) }
func (e AddColumn) String() string    { return fmt.Sprintf("AddColumn(%s, %s)", e.Column, e.Type) }
func (e AddForeignKey) String() string {
	return fmt.Sprintf("AddForeignKey(%s, %s, %s)", e.Column, e.ReferencedTable, e.ReferencedColumn)
}
func (e RemoveForeignKey) String() string { return fmt.Sprintf("RemoveForeignKey(%s)", e.Column) }
func (e AddPrimaryKey) String() string    { return fmt.Sprintf("AddPrimaryKey(%s)", e.Column) }
func (e RemovePrimaryKey) String() string { return fmt.Sprintf("RemovePrimaryKey(%s)", e.Column) }

// Validate checks every identifier and type an event would put into SQL.
func Validate(e Event) error {
	switch ev := e.(type) {
	case RenameTable:
		return validateNames("table", ev.NewName)
	case ChangeColumnType:
		if err := validateNames("column", ev.Column); err != nil {
			return err
		}
		return ev.Type.Validate()
	case RenameColumn:
		return validateNames("column", ev.From, ev.To)
	case RemoveColumn:
		return validateNames("column", ev.Column)
	case AddColumn:
		if err := validateNames("column", ev.Column); err != nil {
			return err
		}
		return ev.Type.Validate()
	case AddForeignKey:
		if err := validateNames("column", ev.Column, ev.ReferencedColumn); err != nil {
			return err
		}
		return validateNames("referenced table", ev.ReferencedTable)
	case RemoveForeignKey:
		return validateNames("column", ev.Column)
	case AddPrimaryKey:
		return validateNames("column", ev.Column)
	case RemovePrimaryKey:
		return validateNames("column", ev.Column)
	default:
		return fmt.Errorf("unknown event %T", e)
	}
}

// Strings renders events for logs and consoles.
func Strings(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}
