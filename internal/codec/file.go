package codec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/status"
)

// SaveFile writes a to path. The image is written to a temporary file in
// the same directory and renamed over path, so a failed save leaves the
// previous image intact.
func SaveFile(path string, a *app.App) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return status.Wrap(status.CannotOpenFile, "save", err)
	}
	defer os.Remove(tmp.Name())

	if err := SaveApp(tmp, a); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return status.Wrap(status.CannotOpenFile, "save", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return status.Wrap(status.CannotOpenFile, "save", err)
	}
	return nil
}

// LoadFile reads the image at path.
func LoadFile(path string, catalog *kit.Catalog, opts ...Option) (*app.App, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, status.Wrap(status.CannotOpenFile, "load", err)
	}
	defer f.Close()

	a, err := LoadApp(f, catalog, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
