// Package data stores and analyzes the time series recorded during a tracking measurement.
package data

import (
	"sync"
)

// Sample is one measurement: seconds since the run started, the pan angle error in degrees and
// the pan angle in degrees.
type Sample struct {
	Time  float64
	Error float64
	Angle float64
}

// Record is an append only series of samples, oldest first.
type Record struct {
	mu      sync.Mutex
	samples []Sample
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{}
}

// Append adds a sample at the end.
func (r *Record) Append(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

// Len is the number of samples.
func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Samples returns a copy of the samples.
func (r *Record) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// Columns returns the time, error and angle columns.
func (r *Record) Columns() (times, errs, angles []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	times = make([]float64, len(r.samples))
	errs = make([]float64, len(r.samples))
	angles = make([]float64, len(r.samples))
	for i, s := range r.samples {
		times[i], errs[i], angles[i] = s.Time, s.Error, s.Angle
	}
	return times, errs, angles
}
