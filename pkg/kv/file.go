package kv

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	pkgerrors "github.com/angelmondragon/tillpoint-terminal/pkg/errors"
)

const fileStoreName = "session.json"

// FileStore keeps session state in a single JSON file under the terminal's
// data directory. Writes go through a temp file plus rename so a crash
// mid-write never corrupts the previous state.
type FileStore struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads (or creates) the session file under dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating session directory")
	}

	store := &FileStore{
		path: filepath.Join(dir, fileStoreName),
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(store.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return store, nil
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading session file")
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &store.data); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parsing session file")
		}
	}
	return store, nil
}

func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value, ok := f.data[key]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "session key not found")
	}
	return value, nil
}

func (f *FileStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = value
	return f.flushLocked()
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.flushLocked()
}

func (f *FileStore) flushLocked() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding session state")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing session file")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replacing session file")
	}
	return nil
}
