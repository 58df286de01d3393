package testers

import (
	"sync"
	"time"
)

// DifferentialPoint is one restraint/differential current pair to inject.
type DifferentialPoint struct {
	Ir           float64
	Id           float64
	ExpectedTime time.Duration // 0 for instantaneous
	Label        string
}

// DifferentialResult is the outcome of testing one DifferentialPoint.
type DifferentialResult struct {
	Ir           float64
	Id           float64
	Is1          float64
	Is2          float64
	Tripped      bool
	TripTime     time.Duration
	ExpectedTime time.Duration
	Passed       bool
	Error        string
}

// DifferentialTestConfig configures a full 87 differential relay test run.
type DifferentialTestConfig struct {
	Points             []DifferentialPoint
	TimeTolerance      time.Duration
	MaxTestDuration    time.Duration
	StopOnFirstFailure bool
	Stream1ID          string
	Stream2ID          string
}

// DifferentialProgressFunc receives one callback per test point, before it runs.
type DifferentialProgressFunc func(pointIndex, totalPoints int, point DifferentialPoint)

// DifferentialTester drives a sequence of Ir/Id restraint characteristic
// injections split across two current sources.
type DifferentialTester struct {
	mu             sync.Mutex
	running        bool
	stopRequested  bool
	tripFlagGetter func() bool
	side1Setter    func(float64)
	side2Setter    func(float64)
}

// NewDifferentialTester returns an idle tester.
func NewDifferentialTester() *DifferentialTester { return &DifferentialTester{} }

// SetTripFlagGetter wires the trip-flag poll function.
func (d *DifferentialTester) SetTripFlagGetter(getter func() bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tripFlagGetter = getter
}

// SetSide1CurrentSetter wires the side-1 current injection function.
func (d *DifferentialTester) SetSide1CurrentSetter(setter func(float64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.side1Setter = setter
}

// SetSide2CurrentSetter wires the side-2 current injection function.
func (d *DifferentialTester) SetSide2CurrentSetter(setter func(float64)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.side2Setter = setter
}

// Stop requests the in-progress run to end after the current point.
func (d *DifferentialTester) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopRequested = true
}

// IsRunning reports whether a run is currently executing.
func (d *DifferentialTester) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *DifferentialTester) isStopRequested() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopRequested
}

// CalculateSideCurrents converts a restraint/differential current pair into
// the pair of in-phase side currents that produce it:
// Id = |Is1+Is2|, Ir = |Is1-Is2|/2.
func CalculateSideCurrents(ir, id float64) (is1, is2 float64) {
	is1 = ir + id/2.0
	is2 = -(ir - id/2.0)
	return is1, is2
}

func (d *DifferentialTester) testPoint(point DifferentialPoint, cfg DifferentialTestConfig, tripFlagGetter func() bool, side1Setter, side2Setter func(float64)) DifferentialResult {
	result := DifferentialResult{Ir: point.Ir, Id: point.Id, ExpectedTime: point.ExpectedTime}
	result.Is1, result.Is2 = CalculateSideCurrents(point.Ir, point.Id)

	side1Setter(result.Is1)
	side2Setter(result.Is2)

	tripped, tripTime := monitorTrip(cfg.MaxTestDuration, d.isStopRequested, tripFlagGetter)
	result.Tripped = tripped
	result.TripTime = tripTime

	if point.ExpectedTime == 0 {
		result.Passed = tripped && tripTime < cfg.TimeTolerance
		if !result.Passed && tripped {
			result.Error = "trip time too slow for instantaneous operation"
		}
		return result
	}

	if !tripped {
		result.Error = "relay did not trip within max test duration"
		return result
	}
	diff := tripTime - point.ExpectedTime
	if diff < 0 {
		diff = -diff
	}
	result.Passed = diff <= cfg.TimeTolerance
	if !result.Passed {
		result.Error = "trip time outside tolerance"
	}
	return result
}

// Run tests every configured point in order, returning one result each.
func (d *DifferentialTester) Run(cfg DifferentialTestConfig, progress DifferentialProgressFunc) []DifferentialResult {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return []DifferentialResult{{Error: "test already running"}}
	}
	tripFlagGetter := d.tripFlagGetter
	side1Setter := d.side1Setter
	side2Setter := d.side2Setter
	d.running = true
	d.stopRequested = false
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	if tripFlagGetter == nil {
		return []DifferentialResult{{Error: "trip flag getter not configured"}}
	}
	if side1Setter == nil || side2Setter == nil {
		return []DifferentialResult{{Error: "side current setters not configured"}}
	}
	if len(cfg.Points) == 0 {
		return []DifferentialResult{{Error: "no test points provided"}}
	}

	var results []DifferentialResult
	for i, point := range cfg.Points {
		if d.isStopRequested() {
			results = append(results, DifferentialResult{Error: "test stopped by user"})
			break
		}
		if progress != nil {
			progress(i, len(cfg.Points), point)
		}

		result := d.testPoint(point, cfg, tripFlagGetter, side1Setter, side2Setter)
		results = append(results, result)

		if cfg.StopOnFirstFailure && !result.Passed {
			break
		}
		if i < len(cfg.Points)-1 {
			waitWithStopCheck(time.Second, d.isStopRequested)
		}
	}
	return results
}
