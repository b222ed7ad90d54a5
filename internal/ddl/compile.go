// Package ddl turns a pending change-set into ALTER TABLE statements and
// runs them in a single transaction.
package ddl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// Plan is everything Compile needs; it holds no connection.
type Plan struct {
	// Table is the catalog name, before any pending rename.
	Table  string
	Events []schema.Event
	// PrimaryKey lists the catalog's primary-key columns in order.
	PrimaryKey []string
	// PrimaryKeyConstraint is the catalog name of the primary-key
	// constraint, empty when the table has none.
	PrimaryKeyConstraint string
	// ForeignKeyConstraints maps a RemoveForeignKey column to the catalog
	// name of the constraint it drops.
	ForeignKeyConstraints map[string]string
}

// Compile renders p as ordered DDL. Statements are grouped by kind so that
// each one only references names that exist when it runs:
//
//	rename table, drop foreign keys, drop columns, rename columns,
//	change types, add columns, add foreign keys, primary key
func Compile(p Plan) ([]string, error) {
	if err := ident.Validate("table", p.Table); err != nil {
		return nil, err
	}
	for _, e := range p.Events {
		if err := schema.Validate(e); err != nil {
			return nil, err
		}
	}
	for _, col := range p.PrimaryKey {
		if err := ident.Validate("primary key column", col); err != nil {
			return nil, err
		}
	}

	var (
		stmts   []string
		table   = p.Table
		renames []schema.RenameColumn
	)
	for _, e := range p.Events {
		switch ev := e.(type) {
		case schema.RenameTable:
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ident.Quote(table), ident.Quote(ev.NewName)))
			table = ev.NewName
		case schema.RenameColumn:
			renames = append(renames, ev)
		}
	}
	alter := "ALTER TABLE " + ident.Quote(table) + " "

	for _, e := range p.Events {
		if ev, ok := e.(schema.RemoveForeignKey); ok {
			name := p.ForeignKeyConstraints[ev.Column]
			if name == "" {
				name = foreignKeyName(p.Table, ev.Column)
			}
			stmts = append(stmts, alter+"DROP CONSTRAINT IF EXISTS "+ident.Quote(name))
		}
	}
	for _, e := range p.Events {
		if ev, ok := e.(schema.RemoveColumn); ok {
			stmts = append(stmts, alter+"DROP COLUMN "+ident.Quote(ev.Column))
		}
	}
	for _, r := range orderRenames(renames) {
		stmts = append(stmts, fmt.Sprintf("%sRENAME COLUMN %s TO %s", alter, ident.Quote(r.From), ident.Quote(r.To)))
	}
	for _, e := range p.Events {
		if ev, ok := e.(schema.ChangeColumnType); ok {
			col := ident.Quote(ev.Column)
			stmts = append(stmts, fmt.Sprintf("%sALTER COLUMN %s TYPE %s USING %s::%s", alter, col, ev.Type, col, ev.Type))
		}
	}
	for _, e := range p.Events {
		if ev, ok := e.(schema.AddColumn); ok {
			stmts = append(stmts, fmt.Sprintf("%sADD COLUMN %s %s", alter, ident.Quote(ev.Column), ev.Type))
		}
	}
	for _, e := range p.Events {
		if ev, ok := e.(schema.AddForeignKey); ok {
			stmts = append(stmts, fmt.Sprintf("%sADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
				alter,
				ident.Quote(foreignKeyName(table, ev.Column)),
				ident.Quote(ev.Column),
				ident.Quote(ev.ReferencedTable),
				ident.Quote(ev.ReferencedColumn)))
		}
	}

	baseline := renamedPrimaryKey(p.PrimaryKey, p.Events)
	working := WorkingPrimaryKey(p.PrimaryKey, p.Events)
	if !slices.Equal(baseline, working) {
		if p.PrimaryKeyConstraint != "" {
			stmts = append(stmts, alter+"DROP CONSTRAINT IF EXISTS "+ident.Quote(p.PrimaryKeyConstraint))
		}
		if len(working) > 0 {
			stmts = append(stmts, fmt.Sprintf("%sADD CONSTRAINT %s PRIMARY KEY (%s)",
				alter, ident.Quote(primaryKeyName(table)), ident.QuoteList(working)))
		}
	}
	return stmts, nil
}

// WorkingPrimaryKey is the primary key the table will have once events are
// applied: the initial columns minus removed ones under their new names,
// with key additions and removals applied in order.
func WorkingPrimaryKey(initial []string, events []schema.Event) []string {
	removed := make(map[string]bool)
	for _, e := range events {
		if ev, ok := e.(schema.RemoveColumn); ok {
			removed[ev.Column] = true
		}
	}
	working := renamedPrimaryKey(slices.DeleteFunc(slices.Clone(initial), func(c string) bool {
		return removed[c]
	}), events)

	for _, e := range events {
		switch ev := e.(type) {
		case schema.AddPrimaryKey:
			if !slices.Contains(working, ev.Column) {
				working = append(working, ev.Column)
			}
		case schema.RemovePrimaryKey:
			working = slices.DeleteFunc(working, func(c string) bool { return c == ev.Column })
		}
	}
	return working
}

// renamedPrimaryKey maps key columns through pending renames. RemoveColumn
// always names the catalog column, so removals are matched before renaming.
func renamedPrimaryKey(columns []string, events []schema.Event) []string {
	to := make(map[string]string)
	for _, e := range events {
		if ev, ok := e.(schema.RenameColumn); ok {
			to[ev.From] = ev.To
		}
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		if n, ok := to[c]; ok {
			c = n
		}
		out[i] = c
	}
	return out
}

// orderRenames sequences column renames so that no rename targets a name
// another pending rename still has to vacate. Cycles are broken by moving
// one column to a temporary name first.
func orderRenames(renames []schema.RenameColumn) []schema.RenameColumn {
	pending := slices.Clone(renames)
	used := make(map[string]bool)
	for _, r := range renames {
		used[r.From] = true
		used[r.To] = true
	}

	var out []schema.RenameColumn
	for len(pending) > 0 {
		progressed := false
		for i := 0; i < len(pending); i++ {
			r := pending[i]
			blocked := slices.ContainsFunc(pending, func(o schema.RenameColumn) bool {
				return o != r && o.From == r.To
			})
			if blocked {
				continue
			}
			out = append(out, r)
			pending = slices.Delete(pending, i, i+1)
			i--
			progressed = true
		}
		if progressed {
			continue
		}
		// every remaining rename is part of a cycle
		tmp := tempName(pending[0].From, used)
		used[tmp] = true
		out = append(out, schema.RenameColumn{From: pending[0].From, To: tmp})
		pending[0].From = tmp
	}
	return out
}

func tempName(col string, used map[string]bool) string {
	for i := 0; ; i++ {
		name := ident.Truncate(fmt.Sprintf("_tablesmith_tmp%d_%s", i, col))
		if !used[name] {
			return name
		}
	}
}

func foreignKeyName(table, column string) string {
	return ident.Truncate("fk_" + table + "_" + column)
}

func primaryKeyName(table string) string {
	return ident.Truncate("pk_" + table)
}

// Statements joins compiled statements into a script for display.
func Statements(stmts []string) string {
	if len(stmts) == 0 {
		return ""
	}
	return strings.Join(stmts, ";\n") + ";"
}
