// Package pool reads the externally populated source pools in scan order.
package pool

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/keygate/internal/lineio"
)

const maxLineBytes = 1 << 20

// Source is one append-only pool of candidate records.
type Source interface {
	Name() string
	Open() (io.ReadCloser, error)
}

type FileSource struct {
	path string
}

func NewFileSource(path string) FileSource { return FileSource{path: path} }

func (f FileSource) Name() string { return filepath.Base(f.path) }

func (f FileSource) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// Matches is the category predicate: a substring test on the item text.
func Matches(item, category string) bool {
	return strings.Contains(item, category)
}

// ScanReport describes which pools a Select call touched.
type ScanReport struct {
	Opened  []string
	Skipped []string
}

// Set is an ordered list of pools.
type Set struct {
	sources []Source
	log     logrus.FieldLogger
}

func NewSet(log logrus.FieldLogger, sources ...Source) *Set {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Set{sources: sources, log: log.WithField("component", "pool")}
}

// FileSet builds a Set from files under dir, in the given order.
func FileSet(dir string, files []string, log logrus.FieldLogger) *Set {
	sources := make([]Source, 0, len(files))
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(dir, f)
		}
		sources = append(sources, NewFileSource(f))
	}
	return NewSet(log, sources...)
}

func (s *Set) Len() int { return len(s.sources) }

func (s *Set) Names() []string {
	out := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src.Name())
	}
	return out
}

// Select walks the pools in order and returns up to quota trimmed records
// matching category, skipping any record for which exclude returns true and
// any duplicate within the result. Pools after the quota is met are not
// opened. Lines over maxLineBytes are logged and passed over. A pool that
// fails to open or read is skipped; records already taken from it are kept.
func (s *Set) Select(category string, quota int, exclude func(string) bool) ([]string, ScanReport) {
	var report ScanReport
	selected := []string{}
	if quota <= 0 {
		return selected, report
	}
	picked := map[string]struct{}{}
	for _, src := range s.sources {
		if len(selected) >= quota {
			break
		}
		rc, err := src.Open()
		if err != nil {
			s.log.WithError(err).WithField("pool", src.Name()).Warn("pool unavailable, skipping")
			report.Skipped = append(report.Skipped, src.Name())
			continue
		}
		report.Opened = append(report.Opened, src.Name())

		log := s.log.WithField("pool", src.Name())
		err = lineio.Each(rc, maxLineBytes, func(line string) bool {
			item := strings.TrimSpace(line)
			if item == "" || !Matches(item, category) {
				return true
			}
			if _, dup := picked[item]; dup || exclude(item) {
				return true
			}
			picked[item] = struct{}{}
			selected = append(selected, item)
			return len(selected) < quota
		}, func(size int) {
			log.WithField("bytes", size).Warn("oversized pool line skipped")
		})
		if err != nil {
			log.WithError(err).Warn("pool read failed, continuing with next pool")
			report.Skipped = append(report.Skipped, src.Name())
		}
		_ = rc.Close()
	}
	return selected, report
}

// EnsureFiles creates any missing pool files under dir.
func EnsureFiles(dir string, files []string) error {
	for _, f := range files {
		if !filepath.IsAbs(f) {
			f = filepath.Join(dir, f)
		}
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			return fmt.Errorf("create pool dir: %w", err)
		}
		fh, err := os.OpenFile(f, os.O_CREATE|os.O_RDONLY, 0o644)
		if err != nil {
			return fmt.Errorf("create pool %s: %w", f, err)
		}
		_ = fh.Close()
	}
	return nil
}
