package testers

import (
	"sync"
	"time"

	"github.com/tturner/vts/internal/impedance"
)

// DistancePoint is one R-X coordinate to inject for a given fault type.
type DistancePoint struct {
	R            float64
	X            float64
	FaultType    impedance.FaultType
	ExpectedTime time.Duration // 0 for instantaneous
	Label        string
}

// DistanceResult is the outcome of testing one DistancePoint.
type DistanceResult struct {
	Tripped   bool
	TripTime  time.Duration
	R         float64
	X         float64
	FaultType impedance.FaultType
	Passed    bool
	Error     string
}

// DistanceTestConfig configures a full Zone 21 distance relay test run.
type DistanceTestConfig struct {
	Points             []DistancePoint
	Source             impedance.SourceImpedance
	PrefaultDuration   time.Duration
	FaultDuration      time.Duration
	TimeTolerance      time.Duration
	StopOnFirstFailure bool
	StreamID           string
}

// DistanceProgressFunc receives one callback per test point, before it runs.
type DistanceProgressFunc func(pointIndex, totalPoints int, point DistancePoint)

// DistanceTester injects a balanced pre-fault state followed by a computed
// fault phasor state and checks whether the relay trips within tolerance.
// Unlike OvercurrentTester it does not pause between points.
type DistanceTester struct {
	mu             sync.Mutex
	running        bool
	stopRequested  bool
	tripFlagGetter func() bool
	phasorSetter   func(impedance.PhasorState)
}

// NewDistanceTester returns an idle tester.
func NewDistanceTester() *DistanceTester { return &DistanceTester{} }

// SetTripFlagGetter wires the trip-flag poll function.
func (d *DistanceTester) SetTripFlagGetter(getter func() bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tripFlagGetter = getter
}

// SetPhasorSetter wires the three-phase phasor injection function.
func (d *DistanceTester) SetPhasorSetter(setter func(impedance.PhasorState)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phasorSetter = setter
}

// Stop requests the in-progress run to end after the current point.
func (d *DistanceTester) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopRequested = true
}

// IsRunning reports whether a run is currently executing.
func (d *DistanceTester) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *DistanceTester) isStopRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopRequested
}

// prefaultPhasorState builds a synthetic balanced healthy-system state:
// nominal voltage at 0/-120/+120 degrees, zero current.
func prefaultPhasorState(source impedance.SourceImpedance) impedance.PhasorState {
	v := complex(source.Vprefault, 0)
	return impedance.PhasorState{
		Voltage: impedance.ThreePhasePhasor{
			A: v,
			B: v * complex(-0.5, -0.866025403784439),
			C: v * complex(-0.5, 0.866025403784439),
		},
		Current: impedance.ThreePhasePhasor{},
	}
}

func (d *DistanceTester) testPoint(point DistancePoint, cfg DistanceTestConfig, tripFlagGetter func() bool, phasorSetter func(impedance.PhasorState)) DistanceResult {
	result := DistanceResult{R: point.R, X: point.X, FaultType: point.FaultType}

	phasorSetter(prefaultPhasorState(cfg.Source))

	if !waitWithStopCheck(cfg.PrefaultDuration, d.isStopRequested) {
		result.Error = "test stopped during pre-fault"
		return result
	}

	faultZ := impedance.FaultImpedance{R: point.R, X: point.X}
	faultState, err := impedance.CalculateFault(point.FaultType, faultZ, cfg.Source)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	phasorSetter(faultState)

	tripped, tripTime := monitorTrip(cfg.FaultDuration, d.isStopRequested, tripFlagGetter)
	result.Tripped = tripped
	result.TripTime = tripTime

	if point.ExpectedTime == 0 {
		result.Passed = tripped && tripTime < cfg.TimeTolerance
		if !result.Passed {
			result.Error = "instantaneous trip expected but not observed in tolerance"
		}
		return result
	}

	if !tripped {
		result.Error = "relay did not trip within fault duration"
		return result
	}
	diff := tripTime - point.ExpectedTime
	if diff < 0 {
		diff = -diff
	}
	result.Passed = diff <= cfg.TimeTolerance
	return result
}

// Run tests every configured point in order, returning one result each.
func (d *DistanceTester) Run(cfg DistanceTestConfig, progress DistanceProgressFunc) []DistanceResult {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return []DistanceResult{{Error: "test already running"}}
	}
	tripFlagGetter := d.tripFlagGetter
	phasorSetter := d.phasorSetter
	d.running = true
	d.stopRequested = false
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	if tripFlagGetter == nil {
		return []DistanceResult{{Error: "trip flag getter not configured"}}
	}
	if phasorSetter == nil {
		return []DistanceResult{{Error: "phasor setter not configured"}}
	}
	if len(cfg.Points) == 0 {
		return []DistanceResult{{Error: "no test points provided"}}
	}

	var results []DistanceResult
	for i, point := range cfg.Points {
		if d.isStopRequested() {
			results = append(results, DistanceResult{Error: "test stopped by user"})
			break
		}
		if progress != nil {
			progress(i, len(cfg.Points), point)
		}

		result := d.testPoint(point, cfg, tripFlagGetter, phasorSetter)
		results = append(results, result)

		if cfg.StopOnFirstFailure && !result.Passed {
			break
		}
	}
	return results
}
