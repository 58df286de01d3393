// Package sequence drives multi-state test sequences: each state applies a
// phasor configuration to a set of active publisher streams, then waits for
// either its duration to expire or a GOOSE trip rule to fire, before moving
// to the next state. Grounded on the core's sequence engine.
package sequence

import (
	"fmt"
	"sync"
	"time"

	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/tripsignal"
	"github.com/tturner/vts/internal/vtserrors"
)

// pollInterval is how often the wait loop checks for stop/pause/trip/timeout.
const pollInterval = 50 * time.Millisecond

// TransitionType selects how a state decides it is done.
type TransitionType int

const (
	// TransitionTime moves on once Duration has elapsed.
	TransitionTime TransitionType = iota
	// TransitionGooseTrip moves on when the global trip signal fires, or
	// when Duration elapses first as a timeout fallback.
	TransitionGooseTrip
)

// StreamPhasorState is the phasor configuration applied to one stream while
// a state is active.
type StreamPhasorState struct {
	FreqHz   float64
	Channels map[string]synth.Phasor
}

// State is one step of a Sequence.
type State struct {
	Name       string
	Duration   time.Duration
	Transition TransitionType
	// Phasors maps stream ID to the phasor state to apply on entry.
	Phasors map[string]StreamPhasorState
}

// Sequence is a complete multi-state test definition.
type Sequence struct {
	ActiveStreams []string
	States        []State
}

// Status is the sequence engine's run state.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusCompleted
	StatusStopped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusCompleted:
		return "completed"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Progress describes one state transition or terminal event.
type Progress struct {
	CurrentState int
	TotalStates  int
	StateName    string
	ElapsedSec   float64
	Message      string
}

// ProgressFunc receives sequence progress notifications.
type ProgressFunc func(Progress)

// PhasorUpdateFunc applies a phasor state to one stream, wired to a
// publisher registry in production.
type PhasorUpdateFunc func(streamID string, state StreamPhasorState)

// Engine runs one Sequence at a time.
type Engine struct {
	mu     sync.Mutex
	status Status

	seq              Sequence
	currentState     int // -1 when not in a state
	stopRequested    bool
	pauseRequested   bool
	lastError        string
	sequenceStart    time.Time
	stateStart       time.Time
	progressCallback ProgressFunc
	phasorCallback   PhasorUpdateFunc
	logger           *logging.Logger

	done chan struct{}
}

// NewEngine returns an idle engine.
func NewEngine(logger *logging.Logger) *Engine {
	return &Engine{status: StatusIdle, currentState: -1, logger: logger}
}

// SetProgressCallback registers the progress notification sink.
func (e *Engine) SetProgressCallback(f ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progressCallback = f
}

// SetPhasorUpdateCallback registers the phasor application sink.
func (e *Engine) SetPhasorUpdateCallback(f PhasorUpdateFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phasorCallback = f
}

// Start validates and begins running seq in a background goroutine.
func (e *Engine) Start(seq Sequence) error {
	e.mu.Lock()
	if e.status == StatusRunning || e.status == StatusPaused {
		e.mu.Unlock()
		return fmt.Errorf("sequence: %w", vtserrors.ErrAlreadyRunning)
	}
	if len(seq.States) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("sequence has no states: %w", vtserrors.ErrConfigInvalid)
	}
	if len(seq.ActiveStreams) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("sequence has no active streams: %w", vtserrors.ErrConfigInvalid)
	}

	e.seq = seq
	e.currentState = -1
	e.stopRequested = false
	e.pauseRequested = false
	e.lastError = ""
	e.status = StatusRunning
	e.done = make(chan struct{})
	e.mu.Unlock()

	tripsignal.Global.Clear()

	if e.logger != nil {
		e.logger.Info("sequence started with %d states", len(seq.States))
	}

	go e.run()
	return nil
}

// Stop requests termination and blocks until the run goroutine exits.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.status == StatusIdle || e.status == StatusStopped {
		e.mu.Unlock()
		return
	}
	e.stopRequested = true
	done := e.done
	e.mu.Unlock()

	<-done

	e.mu.Lock()
	e.status = StatusStopped
	e.currentState = -1
	e.mu.Unlock()

	if e.logger != nil {
		e.logger.Info("sequence stopped")
	}
}

// Pause suspends execution between poll ticks. No-op unless running.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusRunning {
		return
	}
	e.pauseRequested = true
	e.status = StatusPaused
	if e.logger != nil {
		e.logger.Info("sequence paused")
	}
}

// Resume clears a pause. No-op unless paused.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusPaused {
		return
	}
	e.pauseRequested = false
	e.status = StatusRunning
	if e.logger != nil {
		e.logger.Info("sequence resumed")
	}
}

// Status returns the current run state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// CurrentStateIndex returns the 0-based state index, or -1 when idle.
func (e *Engine) CurrentStateIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentState
}

// StateElapsed returns time spent in the current state.
func (e *Engine) StateElapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentState < 0 {
		return 0
	}
	return time.Since(e.stateStart)
}

// TotalElapsed returns time since the sequence started.
func (e *Engine) TotalElapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusIdle {
		return 0
	}
	return time.Since(e.sequenceStart)
}

// LastError returns the message from the most recent run failure, if any.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

func (e *Engine) run() {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("sequence error: %v", r)
			e.mu.Lock()
			e.lastError = msg
			e.status = StatusError
			e.mu.Unlock()
			if e.logger != nil {
				e.logger.Error("%s", msg)
			}
			e.reportProgress(msg)
		}
	}()

	e.mu.Lock()
	e.sequenceStart = time.Now()
	total := len(e.seq.States)
	e.mu.Unlock()

	for i := 0; i < total; i++ {
		if e.checkStop() {
			e.reportProgress("sequence stopped by user")
			e.setStatus(StatusStopped)
			return
		}

		if e.waitWhilePaused() {
			e.reportProgress("sequence stopped while paused")
			e.setStatus(StatusStopped)
			return
		}

		e.mu.Lock()
		state := e.seq.States[i]
		e.currentState = i
		e.stateStart = time.Now()
		e.mu.Unlock()

		e.reportProgress(fmt.Sprintf("entering state %d/%d: %s", i+1, total, state.name()))
		if e.logger != nil {
			e.logger.Info("state %d/%d: %s (duration %s)", i+1, total, state.name(), state.Duration)
		}

		e.applyState(state)

		transitioned := e.waitForTransition(state)
		if !transitioned && e.checkStop() {
			e.reportProgress("sequence stopped during state execution")
			e.setStatus(StatusStopped)
			return
		}
	}

	e.mu.Lock()
	e.currentState = -1
	e.status = StatusCompleted
	e.mu.Unlock()
	e.reportProgress("sequence completed successfully")
	if e.logger != nil {
		e.logger.Info("sequence completed (total time %s)", e.TotalElapsed())
	}
}

func (n State) name() string {
	if n.Name == "" {
		return "(unnamed)"
	}
	return n.Name
}

func (e *Engine) applyState(state State) {
	e.mu.Lock()
	cb := e.phasorCallback
	streams := e.seq.ActiveStreams
	e.mu.Unlock()

	if cb == nil {
		if e.logger != nil {
			e.logger.Verbose("no phasor update callback set")
		}
		return
	}

	for _, streamID := range streams {
		st, ok := state.Phasors[streamID]
		if !ok {
			if e.logger != nil {
				e.logger.Verbose("state %q has no phasor config for stream %q", state.name(), streamID)
			}
			continue
		}
		cb(streamID, st)
		if e.logger != nil {
			e.logger.Debug("applied phasors to stream %q (freq %.2fHz, %d channels)", streamID, st.FreqHz, len(st.Channels))
		}
	}
}

// waitForTransition blocks until the state's transition condition fires or
// a stop is requested, returning true iff the state transitioned normally
// (duration expired, or a trip was observed / timed out for GOOSE_TRIP).
func (e *Engine) waitForTransition(state State) bool {
	stateStart := time.Now()

	if state.Transition == TransitionGooseTrip {
		tripsignal.Global.Clear()
	}

	for {
		if e.checkStop() {
			return false
		}
		if e.waitWhilePaused() {
			return false
		}

		elapsed := time.Since(stateStart)

		if state.Transition == TransitionGooseTrip && tripsignal.Global.IsSet() {
			if e.logger != nil {
				e.logger.Info("goose trip transition: trip flag detected")
			}
			tripsignal.Global.Clear()
			return true
		}

		if elapsed >= state.Duration {
			if state.Transition == TransitionGooseTrip {
				if e.logger != nil {
					e.logger.Verbose("goose trip transition: timeout after %s (no trip detected)", state.Duration)
				}
			} else if e.logger != nil {
				e.logger.Info("time transition: duration %s expired", state.Duration)
			}
			return true
		}

		time.Sleep(pollInterval)
	}
}

// waitWhilePaused blocks while paused, returning true if a stop arrives
// while waiting.
func (e *Engine) waitWhilePaused() bool {
	for e.isPaused() {
		if e.checkStop() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

func (e *Engine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pauseRequested
}

func (e *Engine) checkStop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopRequested
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) reportProgress(message string) {
	e.mu.Lock()
	cb := e.progressCallback
	idx := e.currentState
	total := len(e.seq.States)
	stateName := ""
	if idx >= 0 && idx < total {
		stateName = e.seq.States[idx].name()
	}
	current := idx
	if current < 0 {
		current = 0
	}
	e.mu.Unlock()

	if cb == nil {
		return
	}
	cb(Progress{
		CurrentState: current,
		TotalStates:  total,
		StateName:    stateName,
		ElapsedSec:   e.TotalElapsed().Seconds(),
		Message:      message,
	})
}
