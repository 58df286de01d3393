// Package tripsignal provides the process-wide trip flag that the GOOSE
// sniffer sets on a rule match and the sequence engine and test drivers poll
// for coordination.
package tripsignal

import "sync/atomic"

// Flag is a thread-safe boolean. The zero value is clear.
type Flag struct {
	set atomic.Bool
}

// Set raises the flag (release semantics via atomic.Bool).
func (f *Flag) Set() { f.set.Store(true) }

// Clear lowers the flag.
func (f *Flag) Clear() { f.set.Store(false) }

// IsSet reports the current state (acquire semantics via atomic.Bool).
func (f *Flag) IsSet() bool { return f.set.Load() }

// Global is the singleton flag shared across the sniffer, sequence engine,
// and test drivers, mirroring the original's process-global trip flag.
var Global Flag
