// Package audit mirrors executed SQL statements to a log file without ever
// blocking the caller.
package audit

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tablesmith/tablesmith/internal/config"
	"github.com/tablesmith/tablesmith/internal/logging"
)

// Sink receives each statement after it has been committed.
type Sink interface {
	Write(statement string)
}

// Nop discards statements.
type Nop struct{}

func (Nop) Write(string) {}

type entry struct {
	at   time.Time
	stmt string
}

// Log is a Sink backed by a bounded queue drained by one goroutine. When
// the queue is full the statement is dropped and counted.
type Log struct {
	out    io.Writer
	closer io.Closer
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan entry
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
}

// New starts a Log writing to out. buffer bounds the queue.
func New(out io.Writer, logger *slog.Logger, buffer int) *Log {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Log{
		out:    out,
		logger: logging.Or(logger),
		queue:  make(chan entry, buffer),
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

// Open appends to the file at path, creating it and its directory.
func Open(path string, logger *slog.Logger, buffer int) (*Log, error) {
	path = config.ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	l := New(f, logger, buffer)
	l.closer = f
	return l, nil
}

// Write queues statement. It never blocks.
func (l *Log) Write(statement string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.queue <- entry{at: time.Now().UTC(), stmt: statement}:
	default:
		l.dropped.Add(1)
	}
}

// Dropped returns how many statements were discarded.
func (l *Log) Dropped() int64 { return l.dropped.Load() }

// Written returns how many statements reached the output.
func (l *Log) Written() int64 { return l.written.Load() }

// Close drains the queue and closes the file opened by Open.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if n := l.Dropped(); n > 0 {
		l.logger.Warn("audit statements dropped", "count", n)
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Log) drain() {
	defer close(l.done)
	for e := range l.queue {
		if _, err := fmt.Fprintf(l.out, "%s\t%s;\n", e.at.Format(time.RFC3339), e.stmt); err != nil {
			l.logger.Error("writing audit log", "error", err)
			continue
		}
		l.written.Add(1)
		l.logger.Debug("audit", "statement", e.stmt)
	}
}
