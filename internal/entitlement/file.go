package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/example/keygate/internal/expiry"
)

const (
	keysField   = "keys"
	grantsField = "user_keys"
)

// document is the on-disk layout, compatible with the legacy keys.json.
// Top-level fields other than keys and user_keys (the legacy file carries
// "logs") are kept as-is across a reload and persist.
type document struct {
	Keys     map[string]expiry.Expiry
	UserKeys map[string]expiry.Expiry
	Extra    map[string]json.RawMessage
}

func (d document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[keysField] = d.Keys
	out[grantsField] = d.UserKeys
	return json.Marshal(out)
}

func (d *document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for name, dst := range map[string]*map[string]expiry.Expiry{keysField: &d.Keys, grantsField: &d.UserKeys} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		delete(fields, name)
	}
	if len(fields) > 0 {
		d.Extra = fields
	}
	return nil
}

// FileStore keeps state in memory and snapshots it to a JSON file.
// An empty path keeps it memory-only.
type FileStore struct {
	mu     sync.Mutex
	path   string
	keys   map[string]expiry.Expiry
	grants map[string]expiry.Expiry
	extra  map[string]json.RawMessage
	log    logrus.FieldLogger
}

func NewFileStore(path string, log logrus.FieldLogger) *FileStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileStore{
		path:   path,
		keys:   map[string]expiry.Expiry{},
		grants: map[string]expiry.Expiry{},
		log:    log.WithField("component", "entitlement-store"),
	}
}

// OpenFileStore builds a FileStore and loads its file.
func OpenFileStore(ctx context.Context, path string, log logrus.FieldLogger) (*FileStore, error) {
	s := NewFileStore(path, log)
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) PutUnredeemed(_ context.Context, key string, exp expiry.Expiry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	s.keys[key] = exp
	return nil
}

func (s *FileStore) Peek(_ context.Context, key string) (expiry.Expiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.keys[key]
	if !ok {
		return expiry.Expiry{}, ErrNotFound
	}
	return exp, nil
}

func (s *FileStore) Consume(_ context.Context, key string) (expiry.Expiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.keys[key]
	if !ok {
		return expiry.Expiry{}, ErrNotFound
	}
	delete(s.keys, key)
	return exp, nil
}

func (s *FileStore) Grant(_ context.Context, user string, exp expiry.Expiry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[user] = exp
	return nil
}

func (s *FileStore) EntitlementOf(_ context.Context, user string) (expiry.Expiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.grants[user]
	if !ok {
		return expiry.Expiry{}, ErrNotFound
	}
	return exp, nil
}

func (s *FileStore) Grants(_ context.Context) (map[string]expiry.Expiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]expiry.Expiry, len(s.grants))
	for k, v := range s.grants {
		out[k] = v
	}
	return out, nil
}

// Persist rewrites the whole file through a temp file and rename, so
// readers never observe a partial snapshot.
func (s *FileStore) Persist(_ context.Context) error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	payload, err := json.MarshalIndent(document{Keys: s.keys, UserKeys: s.grants, Extra: s.extra}, "", "    ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal entitlements: %w", err)
	}
	return writeFileAtomic(s.path, payload)
}

// Reload replaces in-memory state with the file contents. A missing or
// unreadable file resets the store to empty instead of failing.
func (s *FileStore) Reload(_ context.Context) error {
	doc := document{}
	if s.path != "" {
		content, err := os.ReadFile(s.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			s.log.WithError(err).WithField("path", s.path).Warn("entitlement file unreadable, starting empty")
		default:
			if err := json.Unmarshal(content, &doc); err != nil {
				s.log.WithError(err).WithField("path", s.path).Warn("entitlement file corrupt, starting empty")
				doc = document{}
			}
		}
	}
	if doc.Keys == nil {
		doc.Keys = map[string]expiry.Expiry{}
	}
	if doc.UserKeys == nil {
		doc.UserKeys = map[string]expiry.Expiry{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = doc.Keys
	s.grants = doc.UserKeys
	s.extra = doc.Extra
	return nil
}

func writeFileAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace state file %s: %w", path, err)
	}
	success = true
	return nil
}
