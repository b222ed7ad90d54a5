package session

import (
	"context"
	"errors"
	"testing"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/changeset"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/ident"
	"github.com/tablesmith/tablesmith/internal/pgtest"
	"github.com/tablesmith/tablesmith/internal/schema"
)

func usersTable() schema.TableSnapshot {
	return schema.TableSnapshot{
		TableName: "users",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Integer, Constraints: []schema.Constraint{schema.PrimaryKey()}},
			{Name: "name", DataType: schema.Text},
		},
	}
}

func orgsTable() schema.TableSnapshot {
	return schema.TableSnapshot{
		TableName: "orgs",
		Columns: []schema.Column{
			{Name: "id", DataType: schema.Integer, Constraints: []schema.Constraint{schema.PrimaryKey()}},
		},
	}
}

func openUsers(t *testing.T, db *pgtest.FakeDB, observer changeset.Observer) (*Session, *catalog.Mock) {
	t.Helper()
	m := catalog.NewMock(usersTable(), orgsTable())
	s, err := Open(context.Background(), m, ddl.NewExecutor(db, m, nil, nil), "users", observer, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, m
}

func mustApply(t *testing.T, s *Session, events ...schema.Event) {
	t.Helper()
	for _, e := range events {
		if err := s.Apply(e); err != nil {
			t.Fatalf("Apply(%s): %v", e, err)
		}
	}
}

func TestOpenReadsSnapshotAndOverview(t *testing.T) {
	s, _ := openUsers(t, &pgtest.FakeDB{}, nil)
	if s.Table() != "users" || len(s.Snapshot().Columns) != 2 {
		t.Errorf("snapshot = %+v", s.Snapshot())
	}
	if pk := s.InitialPrimaryKey(); len(pk) != 1 || pk[0] != "id" {
		t.Errorf("InitialPrimaryKey = %v", pk)
	}
	if len(s.Tables()) != 2 {
		t.Errorf("Tables = %v", s.Tables())
	}
	if s.ID() == "" {
		t.Error("empty session id")
	}
}

func TestOpenMissingTable(t *testing.T) {
	m := catalog.NewMock(usersTable())
	_, err := Open(context.Background(), m, ddl.NewExecutor(&pgtest.FakeDB{}, m, nil, nil), "ghosts", nil, nil)
	var ce *catalog.CatalogError
	if !errors.As(err, &ce) || ce.Table != "ghosts" {
		t.Fatalf("expected CatalogError for ghosts, got %v", err)
	}
}

func TestCommitAppliesAndRebases(t *testing.T) {
	db := &pgtest.FakeDB{}
	var notified [][]schema.Event
	s, m := openUsers(t, db, changeset.ObserverFunc(func(_ string, events []schema.Event) {
		notified = append(notified, events)
	}))

	mustApply(t, s,
		schema.AddColumn{Column: "email", Type: schema.Text},
		schema.RenameColumn{From: "name", To: "username"},
		schema.RenameTable{NewName: "customers"},
	)
	if len(s.Pending()) != 3 || len(s.Intents()) != 3 {
		t.Fatalf("pending = %v", schema.Strings(s.Pending()))
	}

	stmts, err := s.Statements(context.Background())
	if err != nil {
		t.Fatalf("Statements: %v", err)
	}
	if stmts[0] != `ALTER TABLE "users" RENAME TO "customers"` {
		t.Errorf("first statement = %s", stmts[0])
	}

	preview := s.Preview()
	m.SetSnapshot(preview)
	if err := s.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if len(db.Committed) != len(stmts) {
		t.Errorf("committed %v, want %v", db.Committed, stmts)
	}
	if s.Table() != "customers" || len(s.Pending()) != 0 || len(s.Intents()) != 0 {
		t.Errorf("after commit: table=%s pending=%v", s.Table(), s.Pending())
	}
	if _, ok := s.Snapshot().Column("username"); !ok {
		t.Errorf("snapshot not refreshed: %+v", s.Snapshot())
	}
	if last := notified[len(notified)-1]; len(last) != 0 {
		t.Errorf("last notification = %v, want empty", last)
	}
}

func TestCommitFailureKeepsPending(t *testing.T) {
	db := &pgtest.FakeDB{FailOn: "ADD COLUMN"}
	s, _ := openUsers(t, db, nil)
	mustApply(t, s, schema.AddColumn{Column: "email", Type: schema.Text})

	err := s.Commit(context.Background())
	var de *ddl.DdlError
	if !errors.As(err, &de) {
		t.Fatalf("expected DdlError, got %v", err)
	}
	if len(s.Pending()) != 1 || s.Table() != "users" {
		t.Errorf("pending = %v", s.Pending())
	}
}

func TestCommitRefreshFailure(t *testing.T) {
	db := &pgtest.FakeDB{}
	s, m := openUsers(t, db, nil)
	mustApply(t, s, schema.AddColumn{Column: "email", Type: schema.Text})

	m.Err = errors.New("connection reset")
	err := s.Commit(context.Background())
	if !errors.Is(err, ErrReload) {
		t.Errorf("expected ErrReload, got %v", err)
	}
	var ce *catalog.CatalogError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CatalogError, got %v", err)
	}
	if db.Commits != 1 || len(s.Pending()) != 0 {
		t.Errorf("commits=%d pending=%v", db.Commits, s.Pending())
	}
	if _, ok := s.Snapshot().Column("email"); !ok {
		t.Errorf("snapshot should carry the committed column: %+v", s.Snapshot())
	}
}

func TestCommitNothingPending(t *testing.T) {
	db := &pgtest.FakeDB{}
	s, _ := openUsers(t, db, nil)
	if err := s.Commit(context.Background()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if db.Commits != 0 {
		t.Errorf("commits = %d", db.Commits)
	}
}

func TestApplyValidates(t *testing.T) {
	s, _ := openUsers(t, &pgtest.FakeDB{}, nil)
	bad := []schema.Event{
		schema.AddColumn{Column: `x"`, Type: schema.Text},
		schema.AddColumn{Column: "x", Type: "MONEY"},
		schema.AddForeignKey{Column: "name", ReferencedTable: "teams", ReferencedColumn: "id"},
		schema.AddForeignKey{Column: "name", ReferencedTable: "orgs", ReferencedColumn: "slug"},
	}
	for _, e := range bad {
		var ve *ident.ValidationError
		if err := s.Apply(e); !errors.As(err, &ve) {
			t.Errorf("Apply(%s) = %v, want ValidationError", e, err)
		}
	}
	if len(s.Pending()) != 0 || len(s.Intents()) != 0 {
		t.Errorf("rejected intents were recorded: %v", s.Intents())
	}

	mustApply(t, s, schema.AddForeignKey{Column: "name", ReferencedTable: "orgs", ReferencedColumn: "id"})
	if len(s.Pending()) != 1 {
		t.Errorf("pending = %v", s.Pending())
	}
}

func TestRestoreReplaysIntents(t *testing.T) {
	db := &pgtest.FakeDB{}
	s, m := openUsers(t, db, nil)
	mustApply(t, s,
		schema.RenameColumn{From: "name", To: "a"},
		schema.RenameColumn{From: "a", To: "b"},
		schema.AddColumn{Column: "tmp", Type: schema.Integer},
		schema.RemoveColumn{Column: "tmp"},
		schema.RemovePrimaryKey{Column: "id"},
	)

	calls := 0
	r, err := Restore(s.Snapshot(), s.Tables(), s.Intents(), m, ddl.NewExecutor(db, m, nil, nil),
		changeset.ObserverFunc(func(string, []schema.Event) { calls++ }), nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, want := r.Pending(), s.Pending()
	if len(got) != len(want) {
		t.Fatalf("restored %v, want %v", schema.Strings(got), schema.Strings(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
	if calls != 0 {
		t.Errorf("observer called %d times during replay", calls)
	}
	r.Discard()
	if calls != 1 || len(r.Pending()) != 0 || len(r.Intents()) != 0 {
		t.Errorf("after discard: calls=%d pending=%v", calls, r.Pending())
	}
}
