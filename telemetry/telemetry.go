// Package telemetry carries per-cycle controller samples to observers without ever blocking the
// control cycle.
package telemetry

import (
	"time"
)

// WrenchSize is the number of elements in an end effector force/torque vector.
const WrenchSize = 6

// Sample is what the controller reports after each cycle.
type Sample struct {
	Time          time.Time `json:"time"`
	Cycle         uint64    `json:"cycle"`
	Mode          string    `json:"mode"`
	Family        string    `json:"family"`
	SafetyTripped bool      `json:"safety_tripped,omitempty"`
	Held          bool      `json:"held,omitempty"`

	Qdot   []float64 `json:"qdot"`
	Wrench []float64 `json:"wrench"`
	Tau    []float64 `json:"tau"`
}

func cloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	return append(make([]float64, 0, len(in)), in...)
}

// Clone returns a copy that shares no memory with s.
func (s Sample) Clone() Sample {
	s.Qdot = cloneFloats(s.Qdot)
	s.Wrench = cloneFloats(s.Wrench)
	s.Tau = cloneFloats(s.Tau)
	return s
}

// Publisher receives samples. Publish is called from the control cycle: it must return
// immediately and must copy the sample if it keeps it.
type Publisher interface {
	Publish(s Sample)
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(s Sample)

// Publish calls f.
func (f PublisherFunc) Publish(s Sample) {
	f(s)
}

// Nop discards every sample.
var Nop Publisher = PublisherFunc(func(Sample) {})
