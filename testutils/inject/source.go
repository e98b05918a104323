package inject

import (
	"context"

	"github.com/cyber-run/OpenMV-H7/vision"
)

// Source is an injectable vision.Source.
type Source struct {
	vision.Source
	BlobsFunc func(ctx context.Context) ([]vision.Blob, error)
}

// Blobs calls the injected Blobs or the real version.
func (s *Source) Blobs(ctx context.Context) ([]vision.Blob, error) {
	if s.BlobsFunc == nil {
		return s.Source.Blobs(ctx)
	}
	return s.BlobsFunc(ctx)
}
