package config

// TesterDefaults names the out-of-the-box timing and tolerance values for
// each kind of protection test, used when a config document omits them.
// Replaces the old per-scenario CIP defaults table with named defaults for
// the protection testers this package now configures.
type TesterDefaults struct {
	TimeToleranceMs    int
	MaxTestDurationMs  int
	StopOnFirstFailure bool
}

// defaultOvercurrentTolerancePercent holds the default timing tolerance for an
// overcurrent curve test point, expressed as a percentage of expected trip
// time rather than an absolute millisecond window, since IDMT trip times
// span milliseconds at high multiples to tens of seconds near pickup.
const defaultOvercurrentTolerancePercent = 5.0

// DefaultDistanceTesterSettings returns the timing defaults applied to a
// distance_tests entry that omits prefault_duration_ms, fault_duration_ms,
// or time_tolerance_ms.
func DefaultDistanceTesterSettings() TesterDefaults {
	return TesterDefaults{
		TimeToleranceMs:   50,
		MaxTestDurationMs: 5000,
	}
}

// DefaultOvercurrentTesterSettings returns the timing defaults applied to
// an overcurrent_tests entry that omits its tolerance and duration fields.
func DefaultOvercurrentTesterSettings() TesterDefaults {
	return TesterDefaults{
		MaxTestDurationMs: 60000,
	}
}

// DefaultDifferentialTesterSettings returns the timing defaults applied to
// a differential_tests entry that omits its tolerance and duration fields.
func DefaultDifferentialTesterSettings() TesterDefaults {
	return TesterDefaults{
		TimeToleranceMs:   50,
		MaxTestDurationMs: 5000,
	}
}

const (
	defaultPrefaultDurationMs = 200
	defaultFaultDurationMs    = 2000
)

func applyTestDefaults(cfg *Config) {
	for i := range cfg.DistanceTests {
		dt := &cfg.DistanceTests[i]
		if dt.PrefaultDurationMs == 0 {
			dt.PrefaultDurationMs = defaultPrefaultDurationMs
		}
		if dt.FaultDurationMs == 0 {
			dt.FaultDurationMs = defaultFaultDurationMs
		}
		if dt.TimeToleranceMs == 0 {
			dt.TimeToleranceMs = DefaultDistanceTesterSettings().TimeToleranceMs
		}
		if dt.SourceVprefault == 0 {
			dt.SourceVprefault = 1.0
		}
	}

	for i := range cfg.OvercurrentTests {
		ot := &cfg.OvercurrentTests[i]
		if ot.Curve == "" {
			ot.Curve = "SI"
		}
		if ot.TMS == 0 {
			ot.TMS = 1.0
		}
		if ot.MaxTestDurationMs == 0 {
			ot.MaxTestDurationMs = DefaultOvercurrentTesterSettings().MaxTestDurationMs
		}
		if ot.TimeToleranceMs == 0 && ot.TimeTolerancePercent == 0 {
			ot.ToleranceIsPercent = true
			ot.TimeTolerancePercent = defaultOvercurrentTolerancePercent
		}
	}

	for i := range cfg.DifferentialTests {
		diff := &cfg.DifferentialTests[i]
		if diff.TimeToleranceMs == 0 {
			diff.TimeToleranceMs = DefaultDifferentialTesterSettings().TimeToleranceMs
		}
		if diff.MaxTestDurationMs == 0 {
			diff.MaxTestDurationMs = DefaultDifferentialTesterSettings().MaxTestDurationMs
		}
	}
}

// DefaultConfig returns a minimal, valid starter configuration: one
// publisher on a loopback-safe multicast MAC, no rules, no tests.
func DefaultConfig() *Config {
	return &Config{
		Interface: "eth0",
		LogLevel:  "info",
		Publishers: []PublisherConfig{
			{
				Name:        "sv1",
				AppID:       0x4000,
				MacDst:      "01:0c:cd:04:00:01",
				MacSrc:      "02:00:00:00:00:01",
				SvID:        "VTS1SV1",
				ConfRev:     1,
				NominalFreq: 60.0,
				SampleRate:  4800,
				NumASDU:     1,
				Channels: []PhasorConfig{
					{MagnitudeRMS: 66395.3, AngleDeg: 0},
					{MagnitudeRMS: 66395.3, AngleDeg: -120},
					{MagnitudeRMS: 66395.3, AngleDeg: 120},
					{MagnitudeRMS: 1000.0, AngleDeg: 0},
					{MagnitudeRMS: 1000.0, AngleDeg: -120},
					{MagnitudeRMS: 1000.0, AngleDeg: 120},
				},
			},
		},
	}
}
