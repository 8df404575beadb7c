package blob

import (
	"context"
	"io"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"
)

type b2Storage struct {
	bucket *b2.Bucket
}

var _ Storage = (*b2Storage)(nil)

func NewB2Storage(ctx context.Context, accountID, appKey, bucketName string) (*b2Storage, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating b2 client")
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "getting b2 bucket")
	}
	return &b2Storage{bucket: bucket}, nil
}

func (s *b2Storage) Upload(ctx context.Context, key string, r io.Reader) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "writing b2 object")
	}
	return errors.Wrap(w.Close(), "closing b2 object")
}

func (s *b2Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.bucket.Object(key).NewReader(ctx), nil
}

func (s *b2Storage) Delete(ctx context.Context, key string) error {
	return errors.Wrap(s.bucket.Object(key).Delete(ctx), "deleting b2 object")
}
