package pgtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// FakeDB records statements executed through transactions it begins.
// Statements become visible in Committed only when the transaction commits.
type FakeDB struct {
	mu sync.Mutex

	// FailOn makes Exec fail for any statement containing it.
	FailOn string
	// Err is returned by the failing Exec; defaults to a generic error.
	Err error
	// BeginErr is returned by Begin when set.
	BeginErr error

	Executed  []string
	Committed []string
	Commits   int
	Rollbacks int
	args      [][]any
}

// Begin starts a fake transaction.
func (d *FakeDB) Begin(context.Context) (pgx.Tx, error) {
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	return &fakeTx{db: d}, nil
}

// Args returns the bind arguments passed with each executed statement.
func (d *FakeDB) Args() [][]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.args
}

// ErrNoQueries is returned by FakeDB's query methods.
var ErrNoQueries = errors.New("fake: queries are not supported")

// Query fails; FakeDB only records statements.
func (d *FakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrNoQueries
}

// QueryRow returns a row whose Scan fails.
func (d *FakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

type errRow struct{}

func (errRow) Scan(...any) error { return ErrNoQueries }

// fakeTx embeds pgx.Tx so it satisfies the interface; only the methods the
// executors call are implemented.
type fakeTx struct {
	pgx.Tx
	db     *FakeDB
	staged []string
	done   bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	t.db.Executed = append(t.db.Executed, sql)
	t.db.args = append(t.db.args, args)
	if t.db.FailOn != "" && strings.Contains(sql, t.db.FailOn) {
		if t.db.Err != nil {
			return pgconn.CommandTag{}, t.db.Err
		}
		return pgconn.CommandTag{}, errors.New("fake: statement failed")
	}
	t.staged = append(t.staged, sql)
	return pgconn.NewCommandTag(strings.Fields(sql)[0]), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.Commits++
	t.db.Committed = append(t.db.Committed, t.staged...)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.db.Rollbacks++
	t.staged = nil
	return nil
}
