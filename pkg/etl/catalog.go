package etl

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// ReadCatalog decodes a JSON array catalog file. Any IO or decode failure wraps
// ErrFatalIngestion.
func ReadCatalog[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open catalog %s: %w", ErrFatalIngestion, path, err)
	}
	defer f.Close()

	records, err := DecodeCatalog[T](f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// DecodeCatalog decodes a JSON array of records.
func DecodeCatalog[T any](r io.Reader) ([]T, error) {
	var records []T
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode catalog: %w", ErrFatalIngestion, err)
	}
	return records, nil
}
