package testers

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tturner/vts/internal/vtserrors"
)

// RampVariable names the quantity a ramp test sweeps.
type RampVariable int

const (
	RampVoltageA RampVariable = iota
	RampVoltageB
	RampVoltageC
	RampVoltage3Ph
	RampCurrentA
	RampCurrentB
	RampCurrentC
	RampCurrent3Ph
	RampFrequency
)

// ParseRampVariable accepts the long enum names and the short aliases the
// core's config parser also recognizes.
func ParseRampVariable(s string) (RampVariable, error) {
	switch strings.ToLower(s) {
	case "voltage_a", "va":
		return RampVoltageA, nil
	case "voltage_b", "vb":
		return RampVoltageB, nil
	case "voltage_c", "vc":
		return RampVoltageC, nil
	case "voltage_3ph", "v3ph":
		return RampVoltage3Ph, nil
	case "current_a", "ia":
		return RampCurrentA, nil
	case "current_b", "ib":
		return RampCurrentB, nil
	case "current_c", "ic":
		return RampCurrentC, nil
	case "current_3ph", "i3ph":
		return RampCurrent3Ph, nil
	case "frequency", "freq", "f":
		return RampFrequency, nil
	default:
		return 0, fmt.Errorf("unknown ramp variable %q: %w", s, vtserrors.ErrConfigInvalid)
	}
}

// String renders the canonical ramp variable name.
func (v RampVariable) String() string {
	switch v {
	case RampVoltageA:
		return "VOLTAGE_A"
	case RampVoltageB:
		return "VOLTAGE_B"
	case RampVoltageC:
		return "VOLTAGE_C"
	case RampVoltage3Ph:
		return "VOLTAGE_3PH"
	case RampCurrentA:
		return "CURRENT_A"
	case RampCurrentB:
		return "CURRENT_B"
	case RampCurrentC:
		return "CURRENT_C"
	case RampCurrent3Ph:
		return "CURRENT_3PH"
	case RampFrequency:
		return "FREQUENCY"
	default:
		return "UNKNOWN"
	}
}

// RampConfig describes one pickup/dropoff ramp sweep.
type RampConfig struct {
	Variable     RampVariable
	StartValue   float64
	EndValue     float64
	StepSize     float64
	StepDuration time.Duration
	MonitorTrip  bool
	StreamID     string
}

// RampResult is the outcome of a ramp sweep, including pickup/dropoff values
// and the resulting reset ratio when both transitions were observed.
type RampResult struct {
	Completed     bool
	PickupValue   float64
	DropoffValue  float64
	ResetRatio    float64
	Error         string
	PickupTime    time.Duration
	DropoffTime   time.Duration
	TotalDuration time.Duration
}

// RampProgressFunc receives one callback per ramp step.
type RampProgressFunc func(currentValue, progressPct float64, tripFlag bool)

// RampingTester sweeps a single variable and records pickup/dropoff.
type RampingTester struct {
	mu             sync.Mutex
	running        bool
	stopRequested  bool
	tripFlagGetter func() bool
	valueSetter    func(RampVariable, float64)
}

// NewRampingTester returns an idle tester.
func NewRampingTester() *RampingTester { return &RampingTester{} }

// SetTripFlagGetter wires the trip-flag poll function.
func (r *RampingTester) SetTripFlagGetter(getter func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tripFlagGetter = getter
}

// SetValueSetter wires the function that applies a new sweep value.
func (r *RampingTester) SetValueSetter(setter func(RampVariable, float64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valueSetter = setter
}

// Stop requests the in-progress sweep to end at the next step boundary.
func (r *RampingTester) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopRequested = true
}

// IsRunning reports whether a sweep is currently executing.
func (r *RampingTester) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *RampingTester) isStopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRequested
}

// Run executes one ramp sweep. Pickup/dropoff tracking state lives only in
// this call's locals, so a second Run never sees a prior call's transitions.
func (r *RampingTester) Run(cfg RampConfig, progress RampProgressFunc) RampResult {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return RampResult{Error: "test already running"}
	}
	valueSetter := r.valueSetter
	tripFlagGetter := r.tripFlagGetter
	r.running = true
	r.stopRequested = false
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if valueSetter == nil {
		return RampResult{Error: "value setter not configured"}
	}
	if cfg.MonitorTrip && tripFlagGetter == nil {
		return RampResult{Error: "trip flag getter not configured but monitoring requested"}
	}
	if math.Abs(cfg.StepSize) < 1e-9 {
		return RampResult{Error: "step size too small"}
	}

	increasing := cfg.EndValue > cfg.StartValue
	if (increasing && cfg.StepSize < 0) || (!increasing && cfg.StepSize > 0) {
		return RampResult{Error: "step size direction doesn't match start/end values"}
	}

	valRange := math.Abs(cfg.EndValue - cfg.StartValue)
	numSteps := int(math.Ceil(valRange / math.Abs(cfg.StepSize)))
	if numSteps < 1 {
		return RampResult{Error: "invalid number of steps"}
	}

	testStart := time.Now()

	var prevTripFlag, pickupDetected, dropoffDetected bool
	if cfg.MonitorTrip {
		prevTripFlag = tripFlagGetter()
	}

	result := RampResult{}
	currentValue := cfg.StartValue

	for step := 0; step <= numSteps; step++ {
		if r.isStopRequested() {
			return RampResult{Error: "test stopped by user"}
		}

		valueSetter(cfg.Variable, currentValue)

		if !waitWithStopCheck(cfg.StepDuration, r.isStopRequested) {
			return RampResult{Error: "test stopped by user"}
		}

		var currentTripFlag bool
		if cfg.MonitorTrip {
			currentTripFlag = tripFlagGetter()

			if !prevTripFlag && currentTripFlag && !pickupDetected {
				pickupDetected = true
				result.PickupValue = currentValue
				result.PickupTime = time.Since(testStart)
			}
			if prevTripFlag && !currentTripFlag && !dropoffDetected {
				dropoffDetected = true
				result.DropoffValue = currentValue
				result.DropoffTime = time.Since(testStart)
			}
			prevTripFlag = currentTripFlag
		}

		if progress != nil {
			progress(currentValue, float64(step)*100.0/float64(numSteps), currentTripFlag)
		}

		if step < numSteps {
			currentValue += cfg.StepSize
			if increasing && currentValue > cfg.EndValue {
				currentValue = cfg.EndValue
			} else if !increasing && currentValue < cfg.EndValue {
				currentValue = cfg.EndValue
			}
		}
	}

	result.TotalDuration = time.Since(testStart)
	if pickupDetected && dropoffDetected && math.Abs(result.PickupValue) > 1e-9 {
		result.ResetRatio = result.DropoffValue / result.PickupValue
	}
	result.Completed = true
	return result
}
