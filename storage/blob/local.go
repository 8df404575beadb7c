package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type localStorage struct {
	dir string
}

var _ Storage = (*localStorage)(nil)

func NewLocalStorage(dir string) (*localStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage dir")
	}
	return &localStorage{dir: dir}, nil
}

// path keeps keys inside the storage dir.
func (s *localStorage) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", errors.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, cleaned), nil
}

func (s *localStorage) Upload(_ context.Context, key string, r io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating storage subdir")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "writing file")
	}
	return errors.Wrap(f.Close(), "closing file")
}

func (s *localStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	return f, errors.Wrap(err, "opening file")
}

func (s *localStorage) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	return errors.Wrap(os.Remove(path), "removing file")
}
