package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/example/keygate/internal/lineio"
)

const maxLineBytes = 1 << 20

// FileLedger stores one delivered item per line. A missing file is an
// empty ledger.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

func (l *FileLedger) Snapshot(context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[string]struct{}{}
	err := l.each(func(line string) bool {
		out[line] = struct{}{}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *FileLedger) Contains(_ context.Context, item string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	found := false
	err := l.each(func(line string) bool {
		found = line == item
		return !found
	})
	return found, err
}

func (l *FileLedger) Count(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	err := l.each(func(string) bool {
		n++
		return true
	})
	return n, err
}

// Commit appends items with a single write and syncs the file.
func (l *FileLedger) Commit(_ context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if needsNewline, err := missingTrailingNewline(f); err != nil {
		return err
	} else if needsNewline {
		b.WriteByte('\n')
	}
	for _, item := range items {
		b.WriteString(item)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

func (l *FileLedger) each(fn func(line string) bool) error {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	// Oversized lines cannot hold a delivered item and are passed over.
	err = lineio.Each(f, maxLineBytes, func(line string) bool {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			return true
		}
		return fn(line)
	}, nil)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}
	return nil
}

func missingTrailingNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read ledger tail: %w", err)
	}
	return last[0] != '\n', nil
}
