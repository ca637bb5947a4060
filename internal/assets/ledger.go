package assets

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const LedgerFilename = "status.json"

type ContentKind string

const (
	KindJSON ContentKind = "json"
	KindText ContentKind = "text"
)

// Extension returns the snapshot file suffix for the kind.
func (k ContentKind) Extension() string {
	if k == KindJSON {
		return ".json"
	}
	return ".txt"
}

// Record is the last observed shape of the response captured under an
// asset name.
type Record struct {
	Kind   ContentKind `json:"content-kind"`
	Status int         `json:"status"`
}

// Ledger maps asset names of one category to their last observed record.
// Entries are added or updated, never removed.
type Ledger struct {
	path    string
	records map[string]Record
}

// LoadLedger reads the ledger persisted in dir, if any. A missing file
// yields an empty ledger.
func LoadLedger(dir string) (*Ledger, error) {
	l := &Ledger{
		path:    filepath.Join(dir, LedgerFilename),
		records: map[string]Record{},
	}
	contents, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	err = json.Unmarshal(contents, &l.records)
	if err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", l.path, err)
	}
	if l.records == nil {
		l.records = map[string]Record{}
	}
	slog.Debug("loaded ledger", "path", l.path, "entries", len(l.records))
	return l, nil
}

func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) Set(name string, record Record) {
	l.records[name] = record
}

func (l *Ledger) Get(name string) (Record, bool) {
	record, ok := l.records[name]
	return record, ok
}

func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns a copy of every entry.
func (l *Ledger) Records() map[string]Record {
	out := make(map[string]Record, len(l.records))
	for name, record := range l.records {
		out[name] = record
	}
	return out
}

// Save rewrites the whole ledger file. encoding/json sorts map keys so the
// output is stable across runs.
func (l *Ledger) Save() error {
	contents, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return err
	}
	contents = append(contents, '\n')
	err = os.MkdirAll(filepath.Dir(l.path), 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, contents, 0644)
}
