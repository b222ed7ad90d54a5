// Package draft persists a table's pending edits between CLI invocations.
package draft

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tablesmith/tablesmith/internal/catalog"
	"github.com/tablesmith/tablesmith/internal/changeset"
	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/ddl"
	"github.com/tablesmith/tablesmith/internal/lock"
	"github.com/tablesmith/tablesmith/internal/schema"
	"github.com/tablesmith/tablesmith/internal/session"
)

// ErrNotFound is returned by Load when the table has no draft.
var ErrNotFound = errors.New("no draft")

const ext = ".yaml"

// Draft is the saved state of one editing session. Intents are replayed on
// load; Pending is the coalesced set at save time, kept for inspection.
type Draft struct {
	Table       string               `yaml:"table"`
	LastUpdated time.Time            `yaml:"last_updated"`
	Snapshot    schema.TableSnapshot `yaml:"snapshot"`
	Intents     []schema.EventRecord `yaml:"intents,omitempty"`
	Pending     []schema.EventRecord `yaml:"pending,omitempty"`
}

// Store reads and writes drafts under one directory.
type Store struct {
	dir string
}

// NewStore uses dir, expanding a leading "~/".
func NewStore(dir string) *Store {
	return &Store{dir: config.ExpandHome(dir)}
}

// Path is the file holding table's draft.
func (st *Store) Path(table string) string {
	return filepath.Join(st.dir, url.PathEscape(table)+ext)
}

// Lock takes the per-table lock guarding a load, edit and save cycle. It
// fails with lock.ErrHeld while another process holds it.
func (st *Store) Lock(table string) (func() error, error) {
	return lock.Acquire(filepath.Join(st.dir, url.PathEscape(table)+".lock"))
}

// Of captures s.
func Of(s *session.Session) *Draft {
	return &Draft{
		Table:    s.Table(),
		Snapshot: s.Snapshot(),
		Intents:  schema.Records(s.Intents()),
		Pending:  schema.Records(s.Pending()),
	}
}

// Session rebuilds the editing session the draft was taken from.
func (d *Draft) Session(tables []schema.TableOverview, inspector catalog.Inspector, exec *ddl.Executor, observer changeset.Observer, logger *slog.Logger) (*session.Session, error) {
	intents, err := schema.EventsOf(d.Intents)
	if err != nil {
		return nil, fmt.Errorf("decoding draft for %s: %w", d.Table, err)
	}
	return session.Restore(d.Snapshot, tables, intents, inspector, exec, observer, logger)
}

// Load reads table's draft. It returns ErrNotFound when there is none.
func (st *Store) Load(table string) (*Draft, error) {
	data, err := os.ReadFile(st.Path(table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for table %s", ErrNotFound, table)
		}
		return nil, fmt.Errorf("reading draft: %w", err)
	}

	d := &Draft{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parsing draft: %w", err)
	}
	return d, nil
}

// Save writes d. A draft with no intents removes the file instead.
func (st *Store) Save(d *Draft) error {
	if len(d.Intents) == 0 {
		return st.Delete(d.Table)
	}
	d.LastUpdated = time.Now()

	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("creating draft directory: %w", err)
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling draft: %w", err)
	}

	return os.WriteFile(st.Path(d.Table), data, 0o644)
}

// Delete removes table's draft if it exists.
func (st *Store) Delete(table string) error {
	if err := os.Remove(st.Path(table)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing draft: %w", err)
	}
	return nil
}

// List returns the tables that have drafts, sorted.
func (st *Store) List() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	var tables []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ext)
		if e.IsDir() || !ok {
			continue
		}
		table, err := url.PathUnescape(name)
		if err != nil {
			continue
		}
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables, nil
}
