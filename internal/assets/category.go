package assets

import (
	"path/filepath"
)

// Category groups the ledger and the snapshot store of one source, e.g.
// "gateway" or "scheduler-api/0.0.41".
type Category struct {
	Name   string
	Ledger *Ledger
	Store  Store
}

// OpenCategory prepares <root>/<name> and loads its ledger.
func OpenCategory(root, name string) (*Category, error) {
	dir := filepath.Join(root, filepath.FromSlash(name))
	store, err := NewStore(dir)
	if err != nil {
		return nil, err
	}
	ledger, err := LoadLedger(dir)
	if err != nil {
		return nil, err
	}
	return &Category{
		Name:   name,
		Ledger: ledger,
		Store:  store,
	}, nil
}

func (c *Category) Close() error {
	return c.Ledger.Save()
}
