package schema

// Apply returns the snapshot that results from applying e literally, in
// isolation, to s. Added columns carry no constraints; renamed columns keep
// theirs. The receiver is not modified.
func (s TableSnapshot) Apply(e Event) TableSnapshot {
	out := s.Clone()
	switch ev := e.(type) {
	case RenameTable:
		out.TableName = ev.NewName
	case ChangeColumnType:
		out.update(ev.Column, func(c *Column) { c.DataType = ev.Type })
	case RenameColumn:
		out.update(ev.From, func(c *Column) { c.Name = ev.To })
	case RemoveColumn:
		kept := out.Columns[:0]
		for _, c := range out.Columns {
			if c.Name != ev.Column {
				kept = append(kept, c)
			}
		}
		out.Columns = kept
	case AddColumn:
		out.Columns = append(out.Columns, Column{Name: ev.Column, DataType: ev.Type})
	case AddForeignKey:
		out.update(ev.Column, func(c *Column) {
			c.Constraints = append(without(c.Constraints, ForeignKeyConstraint),
				ForeignKey(ev.ReferencedTable, ev.ReferencedColumn))
		})
	case RemoveForeignKey:
		out.update(ev.Column, func(c *Column) { c.Constraints = without(c.Constraints, ForeignKeyConstraint) })
	case AddPrimaryKey:
		out.update(ev.Column, func(c *Column) {
			if !c.IsPrimaryKey() {
				c.Constraints = append(c.Constraints, PrimaryKey())
			}
		})
	case RemovePrimaryKey:
		out.update(ev.Column, func(c *Column) { c.Constraints = without(c.Constraints, PrimaryKeyConstraint) })
	}
	return out
}

// ApplyAll applies events in order.
func (s TableSnapshot) ApplyAll(events []Event) TableSnapshot {
	for _, e := range events {
		s = s.Apply(e)
	}
	return s
}

// Clone returns a deep copy of s.
func (s TableSnapshot) Clone() TableSnapshot {
	out := TableSnapshot{TableName: s.TableName, Columns: make([]Column, len(s.Columns))}
	for i, c := range s.Columns {
		c.Constraints = append([]Constraint(nil), c.Constraints...)
		out.Columns[i] = c
	}
	return out
}

func (s *TableSnapshot) update(name string, fn func(*Column)) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			fn(&s.Columns[i])
			return
		}
	}
}

func without(cons []Constraint, kind ConstraintKind) []Constraint {
	var out []Constraint
	for _, c := range cons {
		if c.Kind != kind {
			out = append(out, c)
		}
	}
	return out
}
