package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natserract/amocrm/pkg/oauth"
)

// FileStore keeps the token set as a pretty-printed JSON document on disk.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the token document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (oauth.TokenSet, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return oauth.TokenSet{}, false, nil
		}
		return oauth.TokenSet{}, false, &StoreError{Operation: "load", Backend: "file", Cause: err}
	}

	var ts oauth.TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return oauth.TokenSet{}, false, &StoreError{Operation: "load", Backend: "file", Cause: fmt.Errorf("corrupt token file %s: %w", s.path, err)}
	}
	return ts, true, nil
}

// Save replaces the document atomically by writing a temporary file and
// renaming it over the old one.
func (s *FileStore) Save(ctx context.Context, ts oauth.TokenSet) error {
	data, err := json.MarshalIndent(ts, "", "    ")
	if err != nil {
		return &StoreError{Operation: "save", Backend: "file", Cause: err}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &StoreError{Operation: "save", Backend: "file", Cause: err}
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*.json")
	if err != nil {
		return &StoreError{Operation: "save", Backend: "file", Cause: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &StoreError{Operation: "save", Backend: "file", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &StoreError{Operation: "save", Backend: "file", Cause: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &StoreError{Operation: "save", Backend: "file", Cause: err}
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StoreError{Operation: "delete", Backend: "file", Cause: err}
	}
	return nil
}
