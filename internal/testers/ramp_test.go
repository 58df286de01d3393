package testers

import (
	"testing"
	"time"
)

func TestParseRampVariableAcceptsAliases(t *testing.T) {
	cases := map[string]RampVariable{
		"va": RampVoltageA, "VOLTAGE_A": RampVoltageA,
		"ia": RampCurrentA, "freq": RampFrequency, "f": RampFrequency,
	}
	for in, want := range cases {
		got, err := ParseRampVariable(in)
		if err != nil {
			t.Fatalf("ParseRampVariable(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRampVariable(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseRampVariableRejectsUnknown(t *testing.T) {
	if _, err := ParseRampVariable("bogus"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRampVariableStringRoundTrip(t *testing.T) {
	for _, v := range []RampVariable{RampVoltageA, RampVoltageB, RampVoltageC, RampVoltage3Ph,
		RampCurrentA, RampCurrentB, RampCurrentC, RampCurrent3Ph, RampFrequency} {
		parsed, err := ParseRampVariable(v.String())
		if err != nil {
			t.Fatalf("ParseRampVariable(%s): %v", v, err)
		}
		if parsed != v {
			t.Fatalf("round trip of %v produced %v", v, parsed)
		}
	}
}

func TestRampRunWithoutMonitoringCompletes(t *testing.T) {
	tester := NewRampingTester()
	var appliedValues []float64
	tester.SetValueSetter(func(v RampVariable, value float64) { appliedValues = append(appliedValues, value) })

	result := tester.Run(RampConfig{
		Variable:     RampVoltageA,
		StartValue:   0,
		EndValue:     10,
		StepSize:     2,
		StepDuration: time.Millisecond,
		MonitorTrip:  false,
	}, nil)

	if !result.Completed {
		t.Fatalf("expected completion, got %+v", result)
	}
	if len(appliedValues) != 6 {
		t.Fatalf("expected 6 steps (0,2,4,6,8,10), got %d: %v", len(appliedValues), appliedValues)
	}
	if appliedValues[len(appliedValues)-1] != 10 {
		t.Fatalf("expected final value clamped to 10, got %v", appliedValues[len(appliedValues)-1])
	}
}

func TestRampRunDetectsPickupOnIncreasingRamp(t *testing.T) {
	tester := NewRampingTester()
	var current float64
	tester.SetValueSetter(func(v RampVariable, value float64) { current = value })
	// The trip flag is a function of the value: set once current reaches 5.0.
	// An increasing-only ramp never brings it back below that, so dropoff
	// never triggers; this test checks the pickup half and expects dropoff
	// to stay at its zero value.
	tester.SetTripFlagGetter(func() bool { return current >= 5.0 })

	result := tester.Run(RampConfig{
		Variable:     RampCurrentA,
		StartValue:   0,
		EndValue:     10,
		StepSize:     1,
		StepDuration: time.Millisecond,
		MonitorTrip:  true,
	}, nil)

	if !result.Completed {
		t.Fatalf("expected completion, got %+v", result)
	}
	if result.PickupValue != 5.0 {
		t.Fatalf("expected pickup at 5.0, got %v", result.PickupValue)
	}
	if result.DropoffValue != 0 {
		t.Fatalf("expected no dropoff recorded, got %v", result.DropoffValue)
	}
}

func TestRampRunDetectsPickupAndDropoffOnSeparateSweeps(t *testing.T) {
	tester := NewRampingTester()
	var current float64
	tester.SetValueSetter(func(v RampVariable, value float64) { current = value })
	tester.SetTripFlagGetter(func() bool { return current >= 6.0 && current < 9.0 })

	// A ramp up from 0 to 8 then immediately a second ramp down from 8 to 0,
	// run as two separate calls since Run only sweeps one direction; pickup is
	// asserted on the up sweep and dropoff asserted on the down sweep.
	up := tester.Run(RampConfig{
		Variable: RampVoltageA, StartValue: 0, EndValue: 8, StepSize: 1,
		StepDuration: time.Millisecond, MonitorTrip: true,
	}, nil)
	if up.PickupValue != 6.0 {
		t.Fatalf("expected pickup at 6.0, got %v", up.PickupValue)
	}

	down := tester.Run(RampConfig{
		Variable: RampVoltageA, StartValue: 8, EndValue: 0, StepSize: -1,
		StepDuration: time.Millisecond, MonitorTrip: true,
	}, nil)
	if down.DropoffValue == 0 {
		t.Fatalf("expected a dropoff to be recorded, got %+v", down)
	}
}

func TestRampRunRejectsBadStepSize(t *testing.T) {
	tester := NewRampingTester()
	tester.SetValueSetter(func(RampVariable, float64) {})
	result := tester.Run(RampConfig{StartValue: 0, EndValue: 10, StepSize: 0}, nil)
	if result.Error == "" {
		t.Fatal("expected error for zero step size")
	}
}

func TestRampRunRejectsMismatchedDirection(t *testing.T) {
	tester := NewRampingTester()
	tester.SetValueSetter(func(RampVariable, float64) {})
	result := tester.Run(RampConfig{StartValue: 0, EndValue: 10, StepSize: -1}, nil)
	if result.Error == "" {
		t.Fatal("expected error for mismatched step direction")
	}
}

func TestRampRunRejectsMissingSetter(t *testing.T) {
	tester := NewRampingTester()
	result := tester.Run(RampConfig{StartValue: 0, EndValue: 10, StepSize: 1}, nil)
	if result.Error == "" {
		t.Fatal("expected error for missing value setter")
	}
}

func TestRampRunRejectsWhileAlreadyRunning(t *testing.T) {
	tester := NewRampingTester()
	tester.SetValueSetter(func(RampVariable, float64) {})

	done := make(chan struct{})
	go func() {
		tester.Run(RampConfig{StartValue: 0, EndValue: 100, StepSize: 1, StepDuration: 5 * time.Millisecond}, nil)
		close(done)
	}()

	// Give the goroutine a moment to flip the running flag.
	deadline := time.Now().Add(200 * time.Millisecond)
	for !tester.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	result := tester.Run(RampConfig{StartValue: 0, EndValue: 1, StepSize: 1}, nil)
	if result.Error == "" {
		t.Fatal("expected rejection while a ramp is already running")
	}

	tester.Stop()
	<-done
}
