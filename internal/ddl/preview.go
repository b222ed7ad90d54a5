package ddl

import (
	"slices"

	"github.com/tablesmith/tablesmith/internal/schema"
)

// Preview returns the table as it will look after events are compiled and
// executed against snapshot, following the same statement order as Compile.
func Preview(snapshot schema.TableSnapshot, events []schema.Event) schema.TableSnapshot {
	out := snapshot
	stage := func(keep func(schema.Event) bool) {
		for _, e := range events {
			if keep(e) {
				out = out.Apply(e)
			}
		}
	}
	is := func(kind schema.EventKind) func(schema.Event) bool {
		return func(e schema.Event) bool { return e.Kind() == kind }
	}

	stage(is(schema.KindRenameTable))
	// foreign keys are dropped by constraint name, before columns are renamed
	for _, e := range events {
		if ev, ok := e.(schema.RemoveForeignKey); ok {
			out = out.Apply(schema.RemoveForeignKey{Column: catalogColumn(events, ev.Column)})
		}
	}
	stage(is(schema.KindRemoveColumn))

	// column renames take effect simultaneously
	to := make(map[string]string)
	for _, e := range events {
		if ev, ok := e.(schema.RenameColumn); ok {
			to[ev.From] = ev.To
		}
	}
	if len(to) > 0 {
		out = out.Clone()
		for i := range out.Columns {
			if n, ok := to[out.Columns[i].Name]; ok {
				out.Columns[i].Name = n
			}
		}
	}

	stage(is(schema.KindChangeColumnType))
	stage(is(schema.KindAddColumn))
	stage(is(schema.KindAddForeignKey))

	working := WorkingPrimaryKey(snapshot.PrimaryKeyColumns(), events)
	for _, c := range out.Columns {
		if c.IsPrimaryKey() && !slices.Contains(working, c.Name) {
			out = out.Apply(schema.RemovePrimaryKey{Column: c.Name})
		}
	}
	for _, c := range working {
		out = out.Apply(schema.AddPrimaryKey{Column: c})
	}
	return out
}
