// Package engine wires the catalog, executors, drafts and hosted sessions
// into the core shared by the CLI and the HTTP API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/tablesmith/tablesmith/internal/audit"
	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/changeset"
	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/draft"
	"github.com/tablesmith/tablesmith/internal/logging"
	"github.com/tablesmith/tablesmith/internal/rows"
	"github.com/tablesmith/tablesmith/internal/schema"
	"github.com/tablesmith/tablesmith/internal/session"
)

// ErrNoSession is returned for an unknown hosted session id.
var ErrNoSession = errors.New("no such session")

// DB is what the engine needs from a connection pool.
type DB interface {
	ddl.Beginner
	catalog.Querier
}

// Engine is the core shared by all interfaces.
type Engine struct {
	Config *config.Config
	Logger *slog.Logger

	inspector catalog.Inspector
	ddl       *ddl.Executor
	rows      *rows.Executor
	drafts    *draft.Store
	closers   []func()

	mu       sync.Mutex
	sessions map[string]*Hosted
}

// Hosted is a session shared between requests. Callers go through Do,
// which serialises access.
type Hosted struct {
	mu sync.Mutex
	s  *session.Session
}

// Do runs fn with exclusive access to the session.
func (h *Hosted) Do(fn func(*session.Session) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.s)
}

// New creates an Engine over db and inspector. A nil sink discards audit output.
func New(cfg *config.Config, db DB, inspector catalog.Inspector, sink audit.Sink, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.Or(logger)
	x := ddl.NewExecutor(db, inspector, sink, logger)
	return &Engine{
		Config:    cfg,
		Logger:    logger,
		inspector: inspector,
		ddl:       x,
		rows:      rows.NewExecutor(x, db, inspector, logger),
		drafts:    draft.NewStore(cfg.Drafts.Directory),
		sessions:  make(map[string]*Hosted),
	}
}

// Connect opens the configured database and audit log and returns an
// Engine that owns them until Close.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	logger = logging.Or(logger)
	pool, err := catalog.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	closers := []func(){pool.Close}

	var sink audit.Sink = audit.Nop{}
	if cfg.AuditEnabled() {
		l, err := audit.Open(cfg.Audit.Path, logger, cfg.Audit.BufferSize)
		if err != nil {
			pool.Close()
			return nil, err
		}
		sink = l
		closers = append(closers, func() {
			if err := l.Close(); err != nil {
				logger.Warn("closing audit log", "error", err)
			}
			if n := l.Dropped(); n > 0 {
				logger.Warn("audit statements dropped", "count", n)
			}
		})
	}

	e := New(cfg, pool, catalog.NewPostgres(pool, cfg.Database.Schema), sink, logger)
	e.closers = closers
	logger.Debug("connected", "host", cfg.Database.Host, "database", cfg.Database.Database, "schema", cfg.Database.Schema)
	return e, nil
}

// Close releases what Connect opened, audit log first so it flushes.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// Tables lists the catalog overview.
func (e *Engine) Tables(ctx context.Context) ([]schema.TableOverview, error) {
	return e.inspector.TablesOverview(ctx)
}

// Describe reads one table's snapshot.
func (e *Engine) Describe(ctx context.Context, table string) (schema.TableSnapshot, error) {
	snap, err := catalog.Snapshot(ctx, e.inspector, table)
	if err != nil {
		return schema.TableSnapshot{}, err
	}
	if len(snap.Columns) == 0 {
		return schema.TableSnapshot{}, &catalog.CatalogError{Op: "describe", Table: table, Err: catalog.ErrTableNotFound}
	}
	return snap, nil
}

// CreateTable creates spec.
func (e *Engine) CreateTable(ctx context.Context, spec schema.TableSpec) error {
	return e.ddl.CreateTable(ctx, spec)
}

// DropTable drops table and any draft for it.
func (e *Engine) DropTable(ctx context.Context, table string) error {
	if err := e.ddl.DropTable(ctx, table); err != nil {
		return err
	}
	return e.drafts.Delete(table)
}

// SelectRows reads a table back as text.
func (e *Engine) SelectRows(ctx context.Context, table string, columns, orderBy []string) (*rows.Result, error) {
	return e.rows.Select(ctx, table, columns, orderBy)
}

// ApplyRows runs row edits in one transaction.
func (e *Engine) ApplyRows(ctx context.Context, table string, events []schema.RowEvent) error {
	return e.rows.Apply(ctx, table, events)
}

// Open starts a fresh session on table, ignoring any draft.
func (e *Engine) Open(ctx context.Context, table string, observer changeset.Observer) (*session.Session, error) {
	return session.Open(ctx, e.inspector, e.ddl, table, observer, e.Logger)
}

// Draft opens table for editing, resuming its saved draft when there is one.
func (e *Engine) Draft(ctx context.Context, table string, observer changeset.Observer) (*session.Session, error) {
	d, err := e.drafts.Load(table)
	if errors.Is(err, draft.ErrNotFound) {
		return e.Open(ctx, table, observer)
	}
	if err != nil {
		return nil, err
	}
	tables, err := e.inspector.TablesOverview(ctx)
	if err != nil {
		return nil, err
	}
	return d.Session(tables, e.inspector, e.ddl, observer, e.Logger)
}

// LockDraft takes table's draft lock for a load, edit and save cycle.
func (e *Engine) LockDraft(table string) (func() error, error) {
	return e.drafts.Lock(table)
}

// SaveDraft stores s so a later Draft call resumes it.
func (e *Engine) SaveDraft(s *session.Session) error {
	return e.drafts.Save(draft.Of(s))
}

// Drafts lists the tables with saved drafts.
func (e *Engine) Drafts() ([]string, error) {
	return e.drafts.List()
}

// DiscardDraft forgets table's draft.
func (e *Engine) DiscardDraft(table string) error {
	return e.drafts.Delete(table)
}

// CommitDraft commits table's draft and removes it. It returns the
// statements that ran. The draft is kept unless the DDL was applied.
func (e *Engine) CommitDraft(ctx context.Context, table string) ([]string, error) {
	release, err := e.drafts.Lock(table)
	if err != nil {
		return nil, err
	}
	defer release()

	s, err := e.Draft(ctx, table, nil)
	if err != nil {
		return nil, err
	}
	stmts, err := s.Statements(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Commit(ctx); err != nil {
		if !errors.Is(err, session.ErrReload) {
			return nil, err
		}
		// the DDL landed; the draft is spent
		return stmts, errors.Join(err, e.drafts.Delete(table))
	}
	return stmts, e.drafts.Delete(table)
}

// OpenSession starts a hosted session on table. observe, when set, builds
// the session's observer from its id.
func (e *Engine) OpenSession(ctx context.Context, table string, observe func(id string) changeset.Observer) (*Hosted, string, error) {
	s, err := session.Open(ctx, e.inspector, e.ddl, table, nil, e.Logger)
	if err != nil {
		return nil, "", err
	}
	if observe != nil {
		s.SetObserver(observe(s.ID()))
	}
	h := &Hosted{s: s}
	e.mu.Lock()
	e.sessions[s.ID()] = h
	e.mu.Unlock()
	e.Logger.Info("session opened", "session", s.ID(), "table", table)
	return h, s.ID(), nil
}

// Session returns the hosted session with id.
func (e *Engine) Session(id string) (*Hosted, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	return h, nil
}

// CloseSession drops a hosted session and its pending edits.
func (e *Engine) CloseSession(id string) error {
	e.mu.Lock()
	_, ok := e.sessions[id]
	delete(e.sessions, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, id)
	}
	e.Logger.Info("session closed", "session", id)
	return nil
}

// SessionState is the summary of a hosted session.
type SessionState struct {
	ID      string               `json:"id"`
	Table   string               `json:"table"`
	Pending []schema.EventRecord `json:"pending"`
}

// Sessions summarises every hosted session, ordered by table then id.
func (e *Engine) Sessions() []SessionState {
	e.mu.Lock()
	hosted := make([]*Hosted, 0, len(e.sessions))
	for _, h := range e.sessions {
		hosted = append(hosted, h)
	}
	e.mu.Unlock()

	out := make([]SessionState, 0, len(hosted))
	for _, h := range hosted {
		h.Do(func(s *session.Session) error {
			out = append(out, SessionState{ID: s.ID(), Table: s.Table(), Pending: schema.Records(s.Pending())})
			return nil
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].ID < out[j].ID
	})
	return out
}
