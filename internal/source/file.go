package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bricklore/brickengine/internal/catalog"
)

// FileAdapter reads raw records from a JSON file holding an array of
// objects. Used for fixtures, offline loads, and exports from sources
// without an API.
type FileAdapter struct {
	name string
	path string
}

// NewFileAdapter creates a file-backed adapter with the given source name.
func NewFileAdapter(name, path string) *FileAdapter {
	return &FileAdapter{name: name, path: path}
}

// Name returns the source name.
func (a *FileAdapter) Name() string { return a.name }

// Fetch reads and decodes the backing file.
func (a *FileAdapter) Fetch(ctx context.Context) ([]catalog.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.path, err)
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", a.path, err)
	}

	records := make([]catalog.RawRecord, 0, len(rows))
	for _, fields := range rows {
		records = append(records, catalog.RawRecord{Source: a.name, Fields: fields})
	}
	return records, nil
}
