// Package rows compiles and runs row-level edits (insert, update, delete)
// and reads table contents back as text.
package rows

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// newKey generates text primary-key values for inserts that leave the key empty.
var newKey = uuid.NewString

// Compile renders events as DML against table. primaryKey names the key
// columns; an insert that leaves one of them empty gets a generated value.
func Compile(table string, primaryKey []string, events []schema.RowEvent) ([]string, error) {
	if err := ident.Validate("table", table); err != nil {
		return nil, err
	}
	stmts := make([]string, 0, len(events))
	for _, e := range events {
		var (
			stmt string
			err  error
		)
		switch ev := e.(type) {
		case schema.InsertRow:
			stmt, err = insert(table, primaryKey, ev)
		case schema.ModifyRow:
			stmt, err = update(table, ev)
		case schema.DeleteRow:
			stmt, err = deleteRows(table, ev)
		default:
			err = fmt.Errorf("unknown row event %T", e)
		}
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func insert(table string, primaryKey []string, ev schema.InsertRow) (string, error) {
	if len(ev.ColumnNames) == 0 {
		return "", &ident.ValidationError{Field: "insert", Value: table, Reason: "no columns"}
	}
	if len(ev.Values) != len(ev.ColumnNames) || len(ev.DataTypes) != len(ev.ColumnNames) {
		return "", &ident.ValidationError{Field: "insert", Value: table, Reason: "columns, values and types differ in length"}
	}
	if err := ident.ValidateAll("column", ev.ColumnNames...); err != nil {
		return "", err
	}

	values := make([]string, len(ev.Values))
	for i, raw := range ev.Values {
		col, dt := ev.ColumnNames[i], ev.DataTypes[i]
		var err error
		if raw == "" && slices.Contains(primaryKey, col) {
			values[i], err = generatedKey(table, col, dt)
		} else {
			values[i], err = Literal(col, dt, raw)
		}
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident.Quote(table), ident.QuoteList(ev.ColumnNames), strings.Join(values, ", ")), nil
}

func generatedKey(table, col string, dt schema.DataType) (string, error) {
	switch dt {
	case schema.Integer, schema.BigInt:
		return fmt.Sprintf("(SELECT COALESCE(MAX(%s), 0) + 1 FROM %s)", ident.Quote(col), ident.Quote(table)), nil
	case schema.Text:
		return ident.QuoteLiteral(newKey()), nil
	default:
		return "", &ident.ValidationError{Field: "primary key " + col, Value: "", Reason: "a value is required for " + string(dt) + " keys"}
	}
}

func update(table string, ev schema.ModifyRow) (string, error) {
	if len(ev.Values) == 0 {
		return "", &ident.ValidationError{Field: "update", Value: table, Reason: "no values to set"}
	}
	sets := make([]string, len(ev.Values))
	for i, v := range ev.Values {
		if err := ident.Validate("column", v.ColumnName); err != nil {
			return "", err
		}
		lit, err := Literal(v.ColumnName, v.DataType, v.Value)
		if err != nil {
			return "", err
		}
		sets[i] = ident.Quote(v.ColumnName) + " = " + lit
	}
	where, err := whereClause(table, ev.Conditions)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s%s", ident.Quote(table), strings.Join(sets, ", "), where), nil
}

func deleteRows(table string, ev schema.DeleteRow) (string, error) {
	where, err := whereClause(table, ev.Conditions)
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + ident.Quote(table) + where, nil
}

// whereClause renders conditions joined by AND. An empty value matches NULL,
// and for text-like columns also the empty string, since rows are read back
// with NULL shown as empty.
func whereClause(table string, conds []schema.Condition) (string, error) {
	if len(conds) == 0 {
		return "", &ident.ValidationError{Field: "row filter", Value: table, Reason: "at least one condition is required"}
	}
	terms := make([]string, len(conds))
	for i, c := range conds {
		if err := ident.Validate("column", c.ColumnName); err != nil {
			return "", err
		}
		col := ident.Quote(c.ColumnName)
		if c.Value == "" {
			if err := c.DataType.Validate(); err != nil {
				return "", err
			}
			if c.DataType == schema.Text {
				terms[i] = fmt.Sprintf("(%s IS NULL OR %s = '')", col, col)
			} else {
				terms[i] = col + " IS NULL"
			}
			continue
		}
		lit, err := Literal(c.ColumnName, c.DataType, c.Value)
		if err != nil {
			return "", err
		}
		terms[i] = col + " = " + lit
	}
	return " WHERE " + strings.Join(terms, " AND "), nil
}

// Literal renders raw as an SQL literal of type dt. Empty values are NULL;
// text, date and timestamp values are quoted; numbers and booleans are
// parsed so nothing but a literal can reach the statement.
func Literal(column string, dt schema.DataType, raw string) (string, error) {
	if err := dt.Validate(); err != nil {
		return "", err
	}
	if raw == "" {
		return "NULL", nil
	}
	invalid := func(reason string) error {
		return &ident.ValidationError{Field: "value for " + column, Value: raw, Reason: reason}
	}
	switch dt {
	case schema.Integer, schema.BigInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return "", invalid("not an integer")
		}
		if dt == schema.Integer && (n < math.MinInt32 || n > math.MaxInt32) {
			return "", invalid("out of range for INTEGER")
		}
		return strconv.FormatInt(n, 10), nil
	case schema.Double:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", invalid("not a finite number")
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case schema.Boolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return "", invalid("not a boolean")
		}
		if b {
			return "TRUE", nil
		}
		return "FALSE", nil
	default:
		if err := ident.ValidateLiteral("value for "+column, raw); err != nil {
			return "", err
		}
		lit := ident.QuoteLiteral(raw)
		if dt != schema.Text {
			lit += "::" + string(dt)
		}
		return lit, nil
	}
}
