// Package loader extracts plain text from source documents on local disk.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ragflow/internal/domain"
)

// Loader dispatches on file extension. PDFs yield one string per page,
// plain-text files a single string.
type Loader struct{}

func New() *Loader { return &Loader{} }

// Load returns the page texts of the document at path. Every failure wraps
// domain.ErrLoad.
func (l *Loader) Load(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", domain.ErrLoad)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLoad, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrLoad, path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrLoad, err)
		}
		return []string{string(data)}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrLoad, filepath.Ext(path))
	}
}
