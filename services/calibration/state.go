package calibration

import "fmt"

// State is a step of a calibration and measurement run.
type State int

// The run goes Idle, Calibrating, Validating and back to Calibrating until the envelope is valid,
// then AwaitingLock, Measuring, Done and Idle again.
const (
	Idle State = iota
	Calibrating
	Validating
	AwaitingLock
	Measuring
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Calibrating:
		return "calibrating"
	case Validating:
		return "validating"
	case AwaitingLock:
		return "awaiting_lock"
	case Measuring:
		return "measuring"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Envelope is the pan range reached while tracking the calibration target and the range it must
// cover.
type Envelope struct {
	Min         float64
	Max         float64
	RequiredMin float64
	RequiredMax float64
}

// Valid reports whether the discovered range covers the required one.
func (e Envelope) Valid() bool {
	return e.Min <= e.RequiredMin && e.Max >= e.RequiredMax
}

// widen extends the range to include angle.
func (e *Envelope) widen(angle float64) bool {
	switch {
	case angle < e.Min:
		e.Min = angle
	case angle > e.Max:
		e.Max = angle
	default:
		return false
	}
	return true
}
