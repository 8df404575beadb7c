// Package blob stores uploaded library files. Backblaze B2 backs production;
// the filesystem implementation covers development and tests.
package blob

import (
	"context"
	"io"
)

type Storage interface {
	Upload(ctx context.Context, key string, r io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
