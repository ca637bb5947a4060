package assets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

var ErrSnapshotExists = fmt.Errorf("snapshot already exists")

// Store is the directory holding the snapshot files of one category.
type Store struct {
	dir string
}

func NewStore(dir string) (Store, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return Store{}, err
	}
	return Store{dir: dir}, nil
}

func (s Store) Dir() string {
	return s.dir
}

func (s Store) Path(name string, kind ContentKind) string {
	return filepath.Join(s.dir, name+kind.Extension())
}

// Exists reports whether a snapshot of any kind was captured under name.
func (s Store) Exists(name string) bool {
	for _, kind := range []ContentKind{KindJSON, KindText} {
		_, err := os.Stat(s.Path(name, kind))
		if err == nil {
			return true
		}
	}
	return false
}

// AllExist reports whether every name has a snapshot.
func (s Store) AllExist(names []string) bool {
	for _, name := range names {
		if !s.Exists(name) {
			return false
		}
	}
	return true
}

// WriteText writes raw contents. It never replaces an existing file and
// returns ErrSnapshotExists instead.
func (s Store) WriteText(name string, contents []byte) (string, error) {
	return s.writeOnce(name, KindText, contents)
}

// WriteDocument serializes a structured document, indented unless compact.
func (s Store) WriteDocument(name string, doc any, compact bool) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	err := enc.Encode(doc)
	if err != nil {
		return "", err
	}
	return s.writeOnce(name, KindJSON, buf.Bytes())
}

func (s Store) writeOnce(name string, kind ContentKind, contents []byte) (string, error) {
	path := s.Path(name, kind)
	if s.Exists(name) {
		return path, ErrSnapshotExists
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if os.IsExist(err) {
		return path, ErrSnapshotExists
	}
	if err != nil {
		return path, err
	}
	defer f.Close()
	_, err = f.Write(contents)
	return path, err
}
