// Package fake implements a duty writer that only records what it is told.
package fake

import (
	"context"
	"sync"
)

// Write is one recorded duty command.
type Write struct {
	Channel int
	Duty    int
}

// DutyWriter remembers every duty written to it.
type DutyWriter struct {
	mu     sync.Mutex
	writes []Write
	duties map[int]int
}

// NewDutyWriter returns an empty recorder.
func NewDutyWriter() *DutyWriter {
	return &DutyWriter{duties: map[int]int{}}
}

// SetDuty records the command.
func (w *DutyWriter) SetDuty(ctx context.Context, channel, duty int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, Write{Channel: channel, Duty: duty})
	w.duties[channel] = duty
	return nil
}

// Duty returns the last duty written to channel and whether one was written.
func (w *DutyWriter) Duty(channel int) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.duties[channel]
	return d, ok
}

// History returns the duties written to channel, oldest first.
func (w *DutyWriter) History(channel int) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []int
	for _, wr := range w.writes {
		if wr.Channel == channel {
			out = append(out, wr.Duty)
		}
	}
	return out
}

// Writes returns every recorded command, oldest first.
func (w *DutyWriter) Writes() []Write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Write(nil), w.writes...)
}

// Clear forgets everything recorded so far.
func (w *DutyWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = nil
	w.duties = map[int]int{}
}
