package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tablesmith/tablesmith/internal/ident"
)

// EventRecord is the YAML form of an Event.
type EventRecord struct {
	Kind             EventKind `yaml:"kind" json:"kind"`
	Column           string    `yaml:"column,omitempty" json:"column,omitempty"`
	NewName          string    `yaml:"new_name,omitempty" json:"new_name,omitempty"`
	Type             string    `yaml:"type,omitempty" json:"type,omitempty"`
	ReferencedTable  string    `yaml:"referenced_table,omitempty" json:"referenced_table,omitempty"`
	ReferencedColumn string    `yaml:"referenced_column,omitempty" json:"referenced_column,omitempty"`
}

// Script is a file of edits against one table.
type Script struct {
	Table   string        `yaml:"table"`
	Changes []EventRecord `yaml:"changes,omitempty"`
	Rows    []RowRecord   `yaml:"rows,omitempty"`
}

// RowRecord is the YAML form of a RowEvent. Exactly one field is set.
type RowRecord struct {
	Insert *InsertRecord `yaml:"insert,omitempty" json:"insert,omitempty"`
	Update *UpdateRecord `yaml:"update,omitempty" json:"update,omitempty"`
	Delete *DeleteRecord `yaml:"delete,omitempty" json:"delete,omitempty"`
}

type InsertRecord struct {
	Columns []string   `yaml:"columns" json:"columns"`
	Values  []string   `yaml:"values" json:"values"`
	Types   []DataType `yaml:"types" json:"types"`
}

type UpdateRecord struct {
	Where []Condition   `yaml:"where" json:"where"`
	Set   []ColumnValue `yaml:"set" json:"set"`
}

type DeleteRecord struct {
	Where []Condition `yaml:"where" json:"where"`
}

// Event converts the record, validating names and types.
func (r EventRecord) Event() (Event, error) {
	var ev Event
	switch r.Kind {
	case KindRenameTable:
		ev = RenameTable{NewName: r.NewName}
	case KindChangeColumnType, KindAddColumn:
		dt, err := ParseDataType(r.Type)
		if err != nil {
			return nil, err
		}
		if r.Kind == KindAddColumn {
			ev = AddColumn{Column: r.Column, Type: dt}
		} else {
			ev = ChangeColumnType{Column: r.Column, Type: dt}
		}
	case KindRenameColumn:
		ev = RenameColumn{From: r.Column, To: r.NewName}
	case KindRemoveColumn:
		ev = RemoveColumn{Column: r.Column}
	case KindAddForeignKey:
		ev = AddForeignKey{Column: r.Column, ReferencedTable: r.ReferencedTable, ReferencedColumn: r.ReferencedColumn}
	case KindRemoveForeignKey:
		ev = RemoveForeignKey{Column: r.Column}
	case KindAddPrimaryKey:
		ev = AddPrimaryKey{Column: r.Column}
	case KindRemovePrimaryKey:
		ev = RemovePrimaryKey{Column: r.Column}
	default:
		return nil, &ident.ValidationError{Field: "change kind", Value: string(r.Kind), Reason: "unknown kind"}
	}
	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordOf converts an Event to its YAML form.
func RecordOf(e Event) EventRecord {
	r := EventRecord{Kind: e.Kind()}
	switch ev := e.(type) {
	case RenameTable:
		r.NewName = ev.NewName
	case ChangeColumnType:
		r.Column, r.Type = ev.Column, string(ev.Type)
	case RenameColumn:
		r.Column, r.NewName = ev.From, ev.To
	case RemoveColumn:
		r.Column = ev.Column
	case AddColumn:
		r.Column, r.Type = ev.Column, string(ev.Type)
	case AddForeignKey:
		r.Column, r.ReferencedTable, r.ReferencedColumn = ev.Column, ev.ReferencedTable, ev.ReferencedColumn
	case RemoveForeignKey:
		r.Column = ev.Column
	case AddPrimaryKey:
		r.Column = ev.Column
	case RemovePrimaryKey:
		r.Column = ev.Column
	}
	return r
}

// Records converts a slice of events.
func Records(events []Event) []EventRecord {
	out := make([]EventRecord, len(events))
	for i, e := range events {
		out[i] = RecordOf(e)
	}
	return out
}

// EventsOf converts records back into events, stopping at the first invalid one.
func EventsOf(records []EventRecord) ([]Event, error) {
	events := make([]Event, 0, len(records))
	for i, r := range records {
		ev, err := r.Event()
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// RowEvent converts the record.
func (r RowRecord) RowEvent() (RowEvent, error) {
	switch {
	case r.Insert != nil && r.Update == nil && r.Delete == nil:
		if len(r.Insert.Columns) != len(r.Insert.Values) || len(r.Insert.Columns) != len(r.Insert.Types) {
			return nil, fmt.Errorf("insert: columns, values and types must have the same length")
		}
		return InsertRow{ColumnNames: r.Insert.Columns, Values: r.Insert.Values, DataTypes: r.Insert.Types}, nil
	case r.Update != nil && r.Insert == nil && r.Delete == nil:
		return ModifyRow{Conditions: r.Update.Where, Values: r.Update.Set}, nil
	case r.Delete != nil && r.Insert == nil && r.Update == nil:
		return DeleteRow{Conditions: r.Delete.Where}, nil
	default:
		return nil, fmt.Errorf("row record must set exactly one of insert, update, delete")
	}
}

// RowEvents converts the script's row records.
func (s *Script) RowEvents() ([]RowEvent, error) {
	events := make([]RowEvent, 0, len(s.Rows))
	for i, r := range s.Rows {
		ev, err := r.RowEvent()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Events converts the script's change records.
func (s *Script) Events() ([]Event, error) {
	return EventsOf(s.Changes)
}

// LoadScript reads a change script from a YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses a YAML change script.
func ParseScript(data []byte) (*Script, error) {
	s := &Script{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if err := ident.Validate("table", s.Table); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteYAML writes the script to path.
func (s *Script) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling script: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func validateNames(field string, names ...string) error {
	return ident.ValidateAll(field, names...)
}
