// Package journal is the append-only decision log: one line-delimited JSON
// record per gate/trade decision, flushed on every append so operators can
// tail the file live.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alejandrodnm/polyedge/internal/ports"
)

// Log appends decision records to a JSONL file. Safe for concurrent use.
// A nil *Log is a valid no-op logger, so callers need no nil checks when
// journaling is disabled.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// Open returns a Log appending to path, or nil when path is empty
// (journaling disabled).
func Open(path string) *Log {
	if path == "" {
		return nil
	}
	return &Log{path: path}
}

// Append writes one record followed by a newline and flushes it.
func (l *Log) Append(rec ports.DecisionRecord) error {
	if l == nil {
		return nil
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal.Append: marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.openLocked(); err != nil {
		return fmt.Errorf("journal.Append: %w", err)
	}
	if _, err := l.buf.Write(b); err != nil {
		return fmt.Errorf("journal.Append: write: %w", err)
	}
	if err := l.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("journal.Append: write: %w", err)
	}
	return l.buf.Flush()
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	if l.buf != nil {
		if err := l.buf.Flush(); err != nil {
			firstErr = err
		}
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.buf = nil
	l.file = nil
	return firstErr
}

// openLocked lazily opens the file. Callers hold l.mu.
func (l *Log) openLocked() error {
	if l.file != nil {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.buf = bufio.NewWriterSize(f, 64*1024)
	return nil
}
