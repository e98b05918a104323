package inject

import (
	"context"

	"github.com/cyber-run/OpenMV-H7/data"
)

// Sink is an injectable data.Sink.
type Sink struct {
	data.Sink
	WriteFunc func(ctx context.Context, rec *data.Record, freq float64) (string, error)
}

// Write calls the injected Write or the real version.
func (s *Sink) Write(ctx context.Context, rec *data.Record, freq float64) (string, error) {
	if s.WriteFunc == nil {
		return s.Sink.Write(ctx, rec, freq)
	}
	return s.WriteFunc(ctx, rec, freq)
}
