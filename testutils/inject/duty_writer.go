// Package inject contains test doubles whose behavior is swapped in per test through function
// fields.
package inject

import (
	"context"

	"github.com/cyber-run/OpenMV-H7/components/servo"
)

// DutyWriter is an injectable servo.DutyWriter.
type DutyWriter struct {
	servo.DutyWriter
	SetDutyFunc func(ctx context.Context, channel, duty int) error
}

// SetDuty calls the injected SetDuty or the real version.
func (w *DutyWriter) SetDuty(ctx context.Context, channel, duty int) error {
	if w.SetDutyFunc == nil {
		return w.DutyWriter.SetDuty(ctx, channel, duty)
	}
	return w.SetDutyFunc(ctx, channel, duty)
}
