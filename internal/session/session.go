// Package session binds one table's snapshot, its pending change-set and
// the DDL executor into an editing session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/changeset"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/logging"
	"github.com/tablesmith/tablesmith/internal/schema"
)

// ErrReload marks a commit whose DDL was applied but whose table could not
// be re-read afterwards.
var ErrReload = errors.New("committed, but reloading the table failed")

// Session edits one table. It is not safe for concurrent use; hosts that
// share a session across goroutines serialise access themselves.
type Session struct {
	id        string
	inspector catalog.Inspector
	exec      *ddl.Executor
	logger    *slog.Logger

	changes   *changeset.Changeset
	initialPK []string
	tables    []schema.TableOverview
	intents   []schema.Event
}

// Open reads table from the catalog and starts an empty change-set.
func Open(ctx context.Context, inspector catalog.Inspector, exec *ddl.Executor, table string, observer changeset.Observer, logger *slog.Logger) (*Session, error) {
	if err := ident.Validate("table", table); err != nil {
		return nil, err
	}
	snap, tables, err := fetch(ctx, inspector, table)
	if err != nil {
		return nil, err
	}
	if len(snap.Columns) == 0 {
		return nil, &catalog.CatalogError{Op: "open", Table: table, Err: catalog.ErrTableNotFound}
	}
	return newSession(snap, tables, inspector, exec, observer, logger), nil
}

// Restore rebuilds a session from a saved snapshot by replaying the
// recorded intents, so the pending set is exactly what it was.
func Restore(snapshot schema.TableSnapshot, tables []schema.TableOverview, intents []schema.Event, inspector catalog.Inspector, exec *ddl.Executor, observer changeset.Observer, logger *slog.Logger) (*Session, error) {
	s := newSession(snapshot, tables, inspector, exec, nil, logger)
	for _, e := range intents {
		if err := s.Apply(e); err != nil {
			return nil, fmt.Errorf("replaying %s: %w", e, err)
		}
	}
	s.changes.SetObserver(observer)
	return s, nil
}

func newSession(snap schema.TableSnapshot, tables []schema.TableOverview, inspector catalog.Inspector, exec *ddl.Executor, observer changeset.Observer, logger *slog.Logger) *Session {
	return &Session{
		id:        uuid.NewString(),
		inspector: inspector,
		exec:      exec,
		logger:    logging.Or(logger),
		changes:   changeset.New(snap, observer),
		initialPK: snap.PrimaryKeyColumns(),
		tables:    tables,
	}
}

// SetObserver replaces the pending-set observer.
func (s *Session) SetObserver(o changeset.Observer) { s.changes.SetObserver(o) }

// ID identifies the session to API clients.
func (s *Session) ID() string { return s.id }

// Table is the table's catalog name, before any pending rename.
func (s *Session) Table() string { return s.changes.TableName() }

// Snapshot is the catalog state the pending set is relative to.
func (s *Session) Snapshot() schema.TableSnapshot { return s.changes.Snapshot() }

// InitialPrimaryKey is the primary key read at open or last commit.
func (s *Session) InitialPrimaryKey() []string { return slices.Clone(s.initialPK) }

// Tables is the catalog overview used to pick foreign-key targets.
func (s *Session) Tables() []schema.TableOverview { return slices.Clone(s.tables) }

// Pending returns the coalesced change-set.
func (s *Session) Pending() []schema.Event { return s.changes.Events() }

// Intents returns every intent applied since the last commit or discard.
func (s *Session) Intents() []schema.Event { return slices.Clone(s.intents) }

// Apply validates e and folds it into the pending set.
func (s *Session) Apply(e schema.Event) error {
	if err := schema.Validate(e); err != nil {
		return err
	}
	if fk, ok := e.(schema.AddForeignKey); ok {
		if err := s.checkReference(fk); err != nil {
			return err
		}
	}
	s.changes.Apply(e)
	s.intents = append(s.intents, e)
	s.logger.Debug("intent applied", "table", s.Table(), "event", e.String(), "pending", s.changes.Len())
	return nil
}

// checkReference rejects a foreign key to a table or column the overview
// does not know. Without an overview nothing is checked.
func (s *Session) checkReference(fk schema.AddForeignKey) error {
	if len(s.tables) == 0 {
		return nil
	}
	for _, t := range s.tables {
		if t.TableName != fk.ReferencedTable {
			continue
		}
		if slices.Contains(t.ColumnNames, fk.ReferencedColumn) {
			return nil
		}
		return &ident.ValidationError{Field: "referenced column", Value: fk.ReferencedColumn, Reason: "not a column of " + fk.ReferencedTable}
	}
	return &ident.ValidationError{Field: "referenced table", Value: fk.ReferencedTable, Reason: "no such table"}
}

// Preview is the table as it will look once the pending set is committed.
func (s *Session) Preview() schema.TableSnapshot {
	return ddl.Preview(s.changes.Snapshot(), s.changes.Events())
}

// Statements compiles the pending set without executing it.
func (s *Session) Statements(ctx context.Context) ([]string, error) {
	return s.exec.Statements(ctx, s.Table(), s.changes.Events(), s.initialPK)
}

// Commit applies the pending set in one transaction, then re-reads the
// table and the overview and starts a fresh change-set. A failed commit
// leaves the pending set untouched. When only the re-read fails the error
// wraps ErrReload.
func (s *Session) Commit(ctx context.Context) error {
	events := s.changes.Events()
	if len(events) == 0 {
		return nil
	}
	if err := s.exec.Alter(ctx, s.Table(), events, s.initialPK); err != nil {
		return err
	}
	s.logger.Info("committed pending changes", "table", s.Table(), "events", len(events))

	name := s.Table()
	for _, e := range events {
		if rt, ok := e.(schema.RenameTable); ok {
			name = rt.NewName
		}
	}
	s.intents = nil
	if err := s.refresh(ctx, name); err != nil {
		// the catalog changed; the old snapshot no longer describes it
		s.changes.Rebase(ddl.Preview(s.changes.Snapshot(), events))
		s.initialPK = s.changes.Snapshot().PrimaryKeyColumns()
		return fmt.Errorf("%w: %s: %w", ErrReload, name, err)
	}
	return nil
}

func (s *Session) refresh(ctx context.Context, table string) error {
	snap, tables, err := fetch(ctx, s.inspector, table)
	if err != nil {
		return err
	}
	s.tables = tables
	s.initialPK = snap.PrimaryKeyColumns()
	s.changes.Rebase(snap)
	return nil
}

// Discard drops every pending edit.
func (s *Session) Discard() {
	s.intents = nil
	s.changes.Reset()
}

// fetch reads the snapshot and the overview concurrently.
func fetch(ctx context.Context, in catalog.Inspector, table string) (schema.TableSnapshot, []schema.TableOverview, error) {
	var (
		snap   schema.TableSnapshot
		tables []schema.TableOverview
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = catalog.Snapshot(gctx, in, table)
		return err
	})
	g.Go(func() error {
		var err error
		tables, err = in.TablesOverview(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return schema.TableSnapshot{}, nil, err
	}
	return snap, tables, nil
}
