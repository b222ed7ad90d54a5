// Package changeset folds a stream of table-editing intents into the
// smallest pending set of schema edits with the same effect.
//
// A Changeset belongs to one table and one writer. It consults the
// snapshot taken at session start to decide when an edit restores the
// original state, and it never fails: validation happens when the set is
// compiled.
package changeset

import "github.com/tablesmith/tablesmith/internal/schema"

// Changeset is the pending set for one table.
type Changeset struct {
	snapshot schema.TableSnapshot
	events   []schema.Event
	observer Observer
}

// New starts an empty change-set against snapshot. A nil observer is
// replaced with NopObserver.
func New(snapshot schema.TableSnapshot, observer Observer) *Changeset {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Changeset{snapshot: snapshot, observer: observer}
}

// Apply folds e into the pending set and notifies the observer.
func (c *Changeset) Apply(e schema.Event) {
	switch ev := e.(type) {
	case schema.RenameTable:
		c.renameTable(ev.NewName)
	case schema.ChangeColumnType:
		c.changeColumnType(ev.Column, ev.Type)
	case schema.RenameColumn:
		c.renameColumn(ev.From, ev.To)
	case schema.RemoveColumn:
		c.removeColumn(ev.Column)
	case schema.AddColumn:
		c.addColumn(ev.Column, ev.Type)
	case schema.AddForeignKey:
		c.addForeignKey(ev)
	case schema.RemoveForeignKey:
		c.removeForeignKey(ev.Column)
	case schema.AddPrimaryKey:
		c.addPrimaryKey(ev.Column)
	case schema.RemovePrimaryKey:
		c.removePrimaryKey(ev.Column)
	}
	c.notify()
}

// SetObserver replaces the observer. A nil observer silences notifications.
func (c *Changeset) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	c.observer = o
}

// Events returns a copy of the pending set in insertion order.
func (c *Changeset) Events() []schema.Event {
	return append([]schema.Event(nil), c.events...)
}

// Snapshot returns the catalog state the pending set is relative to.
func (c *Changeset) Snapshot() schema.TableSnapshot { return c.snapshot }

// TableName is the table's name in the catalog, before any pending rename.
func (c *Changeset) TableName() string { return c.snapshot.TableName }

// Len returns the number of pending events.
func (c *Changeset) Len() int { return len(c.events) }

// Reset discards every pending event.
func (c *Changeset) Reset() {
	c.events = nil
	c.notify()
}

// Rebase drains the pending set and adopts a fresh snapshot, typically the
// one read back after a successful commit.
func (c *Changeset) Rebase(snapshot schema.TableSnapshot) {
	c.snapshot = snapshot
	c.events = nil
	c.notify()
}

func (c *Changeset) notify() {
	c.observer.PendingChanged(c.snapshot.TableName, c.Events())
}

func (c *Changeset) renameTable(name string) {
	_, i := find(c.events, func(schema.RenameTable) bool { return true })
	if i >= 0 {
		c.remove(i)
	}
	if name != c.snapshot.TableName {
		c.push(schema.RenameTable{NewName: name})
	}
}

func (c *Changeset) addColumn(col string, t schema.DataType) {
	_, i := find(c.events, func(e schema.RemoveColumn) bool { return e.Column == col })
	if i < 0 {
		c.push(schema.AddColumn{Column: col, Type: t})
		return
	}
	c.remove(i)

	orig, ok := c.snapshot.Column(col)
	if !ok {
		c.push(schema.AddColumn{Column: col, Type: t})
		return
	}
	if orig.DataType != t {
		c.push(schema.ChangeColumnType{Column: col, Type: t})
	}
	// a re-created column starts without constraints
	if orig.IsPrimaryKey() {
		c.removePrimaryKey(col)
	}
	if _, ok := orig.ForeignKey(); ok {
		c.removeForeignKey(col)
	}
}

func (c *Changeset) changeColumnType(col string, t schema.DataType) {
	if _, i := find(c.events, func(e schema.ChangeColumnType) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
		if orig, ok := c.originalColumn(col); ok && orig.DataType == t {
			return
		}
		c.push(schema.ChangeColumnType{Column: col, Type: t})
		return
	}
	if added, i := find(c.events, func(e schema.AddColumn) bool { return e.Column == col }); i >= 0 {
		if added.Type != t {
			c.remove(i)
			c.push(schema.AddColumn{Column: col, Type: t})
		}
		return
	}
	if orig, ok := c.originalColumn(col); ok && orig.DataType == t {
		return
	}
	c.push(schema.ChangeColumnType{Column: col, Type: t})
}

func (c *Changeset) renameColumn(from, to string) {
	if from == to {
		return
	}
	if cct, i := find(c.events, func(e schema.ChangeColumnType) bool { return e.Column == from }); i >= 0 {
		c.remove(i)
		c.push(schema.ChangeColumnType{Column: to, Type: cct.Type})
	}

	if prior, i := find(c.events, func(e schema.RenameColumn) bool { return e.To == from }); i >= 0 {
		c.remove(i)
		if prior.From != to {
			c.push(schema.RenameColumn{From: prior.From, To: to})
		}
	} else if added, i := find(c.events, func(e schema.AddColumn) bool { return e.Column == from }); i >= 0 {
		c.remove(i)
		c.addColumn(to, added.Type)
	} else {
		c.push(schema.RenameColumn{From: from, To: to})
	}

	c.rekeyConstraints(from, to)

	// a rename back onto the original name can make a type change redundant
	if cct, i := find(c.events, func(e schema.ChangeColumnType) bool { return e.Column == to }); i >= 0 {
		if orig, ok := c.originalColumn(to); ok && orig.DataType == cct.Type {
			c.remove(i)
		}
	}
}

// rekeyConstraints moves pending key edits from one column name to another,
// replaying them in their original order so cancellation rules still apply.
func (c *Changeset) rekeyConstraints(from, to string) {
	var moved []schema.Event
	kept := c.events[:0]
	for _, e := range c.events {
		switch ev := e.(type) {
		case schema.AddPrimaryKey:
			if ev.Column == from {
				moved = append(moved, schema.AddPrimaryKey{Column: to})
				continue
			}
		case schema.RemovePrimaryKey:
			if ev.Column == from {
				moved = append(moved, schema.RemovePrimaryKey{Column: to})
				continue
			}
		case schema.AddForeignKey:
			if ev.Column == from {
				ev.Column = to
				moved = append(moved, ev)
				continue
			}
		case schema.RemoveForeignKey:
			if ev.Column == from {
				moved = append(moved, schema.RemoveForeignKey{Column: to})
				continue
			}
		}
		kept = append(kept, e)
	}
	c.events = kept

	for _, e := range moved {
		switch ev := e.(type) {
		case schema.AddPrimaryKey:
			c.addPrimaryKey(ev.Column)
		case schema.RemovePrimaryKey:
			c.removePrimaryKey(ev.Column)
		case schema.AddForeignKey:
			c.addForeignKey(ev)
		case schema.RemoveForeignKey:
			c.removeForeignKey(ev.Column)
		}
	}
}

func (c *Changeset) removeColumn(col string) {
	c.removeAll(func(e schema.Event) bool {
		switch ev := e.(type) {
		case schema.AddPrimaryKey:
			return ev.Column == col
		case schema.RemovePrimaryKey:
			return ev.Column == col
		case schema.AddForeignKey:
			return ev.Column == col
		case schema.RemoveForeignKey:
			return ev.Column == col
		}
		return false
	})

	if _, i := find(c.events, func(e schema.AddColumn) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
		return
	}
	if _, i := find(c.events, func(e schema.ChangeColumnType) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
	}
	if prior, i := find(c.events, func(e schema.RenameColumn) bool { return e.To == col }); i >= 0 {
		c.remove(i)
		c.push(schema.RemoveColumn{Column: prior.From})
		return
	}
	// checked last: a rename may have moved another column onto a removed name
	if _, i := find(c.events, func(e schema.RemoveColumn) bool { return e.Column == col }); i >= 0 {
		return
	}
	c.push(schema.RemoveColumn{Column: col})
}

func (c *Changeset) addPrimaryKey(col string) {
	if _, i := find(c.events, func(e schema.RemovePrimaryKey) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
		return
	}
	if _, i := find(c.events, func(e schema.AddPrimaryKey) bool { return e.Column == col }); i >= 0 {
		return
	}
	c.push(schema.AddPrimaryKey{Column: col})
}

func (c *Changeset) removePrimaryKey(col string) {
	if _, i := find(c.events, func(e schema.AddPrimaryKey) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
		return
	}
	if _, i := find(c.events, func(e schema.RemovePrimaryKey) bool { return e.Column == col }); i >= 0 {
		return
	}
	c.push(schema.RemovePrimaryKey{Column: col})
}

func (c *Changeset) addForeignKey(fk schema.AddForeignKey) {
	col := fk.Column
	if _, i := find(c.events, func(e schema.AddForeignKey) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
	}

	existing, hasExisting := c.originalForeignKey(col)
	sameAsCatalog := hasExisting &&
		existing.ReferencedTable == fk.ReferencedTable &&
		existing.ReferencedColumn == fk.ReferencedColumn

	if _, i := find(c.events, func(e schema.RemoveForeignKey) bool { return e.Column == col }); i >= 0 {
		if sameAsCatalog {
			c.remove(i)
			return
		}
		c.push(fk)
		return
	}
	if sameAsCatalog {
		return
	}
	if hasExisting {
		// one foreign key per column: replace the catalog's reference
		c.push(schema.RemoveForeignKey{Column: col})
	}
	c.push(fk)
}

func (c *Changeset) removeForeignKey(col string) {
	if _, i := find(c.events, func(e schema.AddForeignKey) bool { return e.Column == col }); i >= 0 {
		c.remove(i)
		return
	}
	if _, i := find(c.events, func(e schema.RemoveForeignKey) bool { return e.Column == col }); i >= 0 {
		return
	}
	c.push(schema.RemoveForeignKey{Column: col})
}

// originalColumn resolves the current name col to the catalog column it
// came from, following a pending rename. Added, removed and renamed-away
// names have no catalog column.
func (c *Changeset) originalColumn(col string) (schema.Column, bool) {
	if prior, i := find(c.events, func(e schema.RenameColumn) bool { return e.To == col }); i >= 0 {
		return c.snapshot.Column(prior.From)
	}
	for _, e := range c.events {
		switch ev := e.(type) {
		case schema.AddColumn:
			if ev.Column == col {
				return schema.Column{}, false
			}
		case schema.RemoveColumn:
			if ev.Column == col {
				return schema.Column{}, false
			}
		case schema.RenameColumn:
			if ev.From == col {
				return schema.Column{}, false
			}
		}
	}
	return c.snapshot.Column(col)
}

func (c *Changeset) originalForeignKey(col string) (schema.Constraint, bool) {
	orig, ok := c.originalColumn(col)
	if !ok {
		return schema.Constraint{}, false
	}
	return orig.ForeignKey()
}

func (c *Changeset) push(e schema.Event) {
	c.events = append(c.events, e)
}

func (c *Changeset) remove(i int) {
	c.events = append(c.events[:i], c.events[i+1:]...)
}

func (c *Changeset) removeAll(match func(schema.Event) bool) {
	kept := c.events[:0]
	for _, e := range c.events {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	c.events = kept
}

// find returns the first pending event of type T accepted by match, and its
// index, or -1.
func find[T schema.Event](events []schema.Event, match func(T) bool) (T, int) {
	for i, e := range events {
		if ev, ok := e.(T); ok && match(ev) {
			return ev, i
		}
	}
	var zero T
	return zero, -1
}
