package app

import (
	"context"
	"fmt"
	"math/cmplx"
	"time"

	"github.com/tturner/vts/internal/config"
	"github.com/tturner/vts/internal/impedance"
	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/progress"
	"github.com/tturner/vts/internal/publisher"
	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/testers"
	"github.com/tturner/vts/internal/tripsignal"
)

// TestOptions configures a run of the test subcommand.
type TestOptions struct {
	ConfigPath string
	QuickStart bool
	Verbose    bool
	Debug      bool
	NoNet      bool
	// Kind selects which tester family to run: "ramp", "distance",
	// "overcurrent", or "differential".
	Kind string
	// Name selects the named test configuration within Kind.
	Name string
}

// phasorStateToChannels converts a symmetrical-components phasor state to
// the named-channel magnitude/angle form applyStreamPhasorState expects.
func phasorStateToChannels(state impedance.PhasorState) map[string]synth.Phasor {
	toPhasor := func(c complex128) synth.Phasor {
		return synth.Phasor{Magnitude: cmplx.Abs(c), AngleRad: cmplx.Phase(c)}
	}
	return map[string]synth.Phasor{
		"Va": toPhasor(state.Voltage.A),
		"Vb": toPhasor(state.Voltage.B),
		"Vc": toPhasor(state.Voltage.C),
		"Ia": toPhasor(state.Current.A),
		"Ib": toPhasor(state.Current.B),
		"Ic": toPhasor(state.Current.C),
	}
}

// setBalancedCurrent applies the same magnitude to Ia/Ib/Ic at a standard
// 0/-120/+120 degree rotation, the shape a balanced three-phase current
// injection takes.
func setBalancedCurrent(registry *publisher.Registry, id string, magnitude float64, logger *logging.Logger) {
	applyStreamPhasorState(registry, id, map[string]synth.Phasor{
		"Ia": {Magnitude: magnitude, AngleRad: 0},
		"Ib": {Magnitude: magnitude, AngleRad: -2.0943951023931953},
		"Ic": {Magnitude: magnitude, AngleRad: 2.0943951023931953},
	}, logger)
}

// setSingleCurrent applies a magnitude to one current channel only, leaving
// the other two (and all voltage channels) untouched, the shape a
// differential relay's per-side current injection takes.
func setSingleCurrent(registry *publisher.Registry, id, channel string, magnitude float64, logger *logging.Logger) {
	applyStreamPhasorState(registry, id, map[string]synth.Phasor{channel: {Magnitude: magnitude, AngleRad: 0}}, logger)
}

func updateNominalFreq(registry *publisher.Registry, id string, freq float64) error {
	inst, err := registry.Get(id)
	if err != nil {
		return err
	}
	cfg := inst.Config()
	cfg.NominalFreq = freq
	return registry.Update(id, cfg)
}

// RunTest dispatches to the named ramp, distance, overcurrent, or
// differential test and prints its result.
func RunTest(ctx context.Context, opts TestOptions) error {
	logger, err := logging.NewLogger(logLevelFor(opts.Verbose, opts.Debug), "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	cfg, err := loadConfig(opts.ConfigPath, opts.QuickStart)
	if err != nil {
		return err
	}

	switch opts.Kind {
	case "ramp":
		return runRampTest(ctx, cfg, opts, logger)
	case "distance":
		return runDistanceTest(ctx, cfg, opts, logger)
	case "overcurrent":
		return runOvercurrentTest(ctx, cfg, opts, logger)
	case "differential":
		return runDifferentialTest(ctx, cfg, opts, logger)
	default:
		return fmt.Errorf("unknown test kind %q", opts.Kind)
	}
}

func findRampTest(cfg *config.Config, name string) (config.RampTestConfig, bool) {
	for _, t := range cfg.RampTests {
		if t.Name == name {
			return t, true
		}
	}
	return config.RampTestConfig{}, false
}

func findDistanceTest(cfg *config.Config, name string) (config.DistanceTestConfig, bool) {
	for _, t := range cfg.DistanceTests {
		if t.Name == name {
			return t, true
		}
	}
	return config.DistanceTestConfig{}, false
}

func findOvercurrentTest(cfg *config.Config, name string) (config.OvercurrentTestConfig, bool) {
	for _, t := range cfg.OvercurrentTests {
		if t.Name == name {
			return t, true
		}
	}
	return config.OvercurrentTestConfig{}, false
}

func findDifferentialTest(cfg *config.Config, name string) (config.DifferentialTestConfig, bool) {
	for _, t := range cfg.DifferentialTests {
		if t.Name == name {
			return t, true
		}
	}
	return config.DifferentialTestConfig{}, false
}

func rampChannelsFor(variable testers.RampVariable) []string {
	switch variable {
	case testers.RampVoltageA:
		return []string{"Va"}
	case testers.RampVoltageB:
		return []string{"Vb"}
	case testers.RampVoltageC:
		return []string{"Vc"}
	case testers.RampVoltage3Ph:
		return []string{"Va", "Vb", "Vc"}
	case testers.RampCurrentA:
		return []string{"Ia"}
	case testers.RampCurrentB:
		return []string{"Ib"}
	case testers.RampCurrentC:
		return []string{"Ic"}
	case testers.RampCurrent3Ph:
		return []string{"Ia", "Ib", "Ic"}
	default:
		return nil
	}
}

func runRampTest(ctx context.Context, cfg *config.Config, opts TestOptions, logger *logging.Logger) error {
	rt, ok := findRampTest(cfg, opts.Name)
	if !ok {
		return fmt.Errorf("ramp test %q not found", opts.Name)
	}
	rCfg, err := rt.ToRampConfig()
	if err != nil {
		return err
	}
	pub, ok := findPublisher(cfg, rt.StreamID)
	if !ok {
		return fmt.Errorf("ramp test %q: stream %q not found", opts.Name, rt.StreamID)
	}

	sender, port, err := bindSender(cfg.Interface, opts.NoNet || cfg.NoNet)
	if err != nil {
		return err
	}
	if port != nil {
		defer port.Close()
	}
	set, err := setupRegistry([]config.PublisherConfig{pub}, sender)
	if err != nil {
		return err
	}
	set.registry.StartAll()
	defer set.registry.StopAll()
	id := set.streamID[pub.Name]
	stop := startTickLoop(ctx, set)
	defer stop()

	tester := testers.NewRampingTester()
	tester.SetTripFlagGetter(tripsignal.Global.IsSet)
	tester.SetValueSetter(func(variable testers.RampVariable, value float64) {
		if variable == testers.RampFrequency {
			_ = updateNominalFreq(set.registry, id, value)
			return
		}
		channels := rampChannelsFor(variable)
		update := make(map[string]synth.Phasor, len(channels))
		for _, ch := range channels {
			update[ch] = synth.Phasor{Magnitude: value, AngleRad: 0}
		}
		applyStreamPhasorState(set.registry, id, update, logger)
	})

	bar := progress.NewSimpleProgress("ramp "+rt.Name, 100*time.Millisecond)
	result := tester.Run(rCfg, func(value, pct float64, trip bool) {
		bar.Update(int64(pct), fmt.Sprintf("value=%.3f trip=%v", value, trip))
	})
	bar.Finish()

	logger.Info("ramp %s: pickup=%.3f dropoff=%.3f reset_ratio=%.4f completed=%v error=%q",
		rt.Name, result.PickupValue, result.DropoffValue, result.ResetRatio, result.Completed, result.Error)
	fmt.Printf("pickup=%.3f dropoff=%.3f reset_ratio=%.4f\n", result.PickupValue, result.DropoffValue, result.ResetRatio)
	return nil
}

func runDistanceTest(ctx context.Context, cfg *config.Config, opts TestOptions, logger *logging.Logger) error {
	dt, ok := findDistanceTest(cfg, opts.Name)
	if !ok {
		return fmt.Errorf("distance test %q not found", opts.Name)
	}
	dCfg, err := dt.ToDistanceTestConfig()
	if err != nil {
		return err
	}
	pub, ok := findPublisher(cfg, dt.StreamID)
	if !ok {
		return fmt.Errorf("distance test %q: stream %q not found", opts.Name, dt.StreamID)
	}

	sender, port, err := bindSender(cfg.Interface, opts.NoNet || cfg.NoNet)
	if err != nil {
		return err
	}
	if port != nil {
		defer port.Close()
	}
	set, err := setupRegistry([]config.PublisherConfig{pub}, sender)
	if err != nil {
		return err
	}
	set.registry.StartAll()
	defer set.registry.StopAll()
	id := set.streamID[pub.Name]
	stop := startTickLoop(ctx, set)
	defer stop()

	tester := testers.NewDistanceTester()
	tester.SetTripFlagGetter(tripsignal.Global.IsSet)
	tester.SetPhasorSetter(func(state impedance.PhasorState) {
		applyStreamPhasorState(set.registry, id, phasorStateToChannels(state), logger)
	})

	bar := progress.NewProgressBar(int64(len(dCfg.Points)), "distance "+dt.Name)
	results := tester.Run(dCfg, func(i, total int, point testers.DistancePoint) {
		bar.Set(int64(i))
	})
	bar.Finish()

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	logger.Info("distance %s: %d/%d points passed", dt.Name, passed, len(results))
	fmt.Printf("%d/%d points passed\n", passed, len(results))
	return nil
}

func runOvercurrentTest(ctx context.Context, cfg *config.Config, opts TestOptions, logger *logging.Logger) error {
	ot, ok := findOvercurrentTest(cfg, opts.Name)
	if !ok {
		return fmt.Errorf("overcurrent test %q not found", opts.Name)
	}
	oCfg, err := ot.ToOCTestConfig()
	if err != nil {
		return err
	}
	pub, ok := findPublisher(cfg, ot.StreamID)
	if !ok {
		return fmt.Errorf("overcurrent test %q: stream %q not found", opts.Name, ot.StreamID)
	}

	sender, port, err := bindSender(cfg.Interface, opts.NoNet || cfg.NoNet)
	if err != nil {
		return err
	}
	if port != nil {
		defer port.Close()
	}
	set, err := setupRegistry([]config.PublisherConfig{pub}, sender)
	if err != nil {
		return err
	}
	set.registry.StartAll()
	defer set.registry.StopAll()
	id := set.streamID[pub.Name]
	stop := startTickLoop(ctx, set)
	defer stop()

	tester := testers.NewOvercurrentTester()
	tester.SetTripFlagGetter(tripsignal.Global.IsSet)
	tester.SetCurrentSetter(func(magnitude float64) {
		setBalancedCurrent(set.registry, id, magnitude, logger)
	})

	bar := progress.NewProgressBar(int64(len(oCfg.Points)), "overcurrent "+ot.Name)
	results := tester.Run(oCfg, func(i, total int, point testers.OCPoint) {
		bar.Set(int64(i))
	})
	bar.Finish()

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	logger.Info("overcurrent %s: %d/%d points passed", ot.Name, passed, len(results))
	fmt.Printf("%d/%d points passed\n", passed, len(results))
	return nil
}

func runDifferentialTest(ctx context.Context, cfg *config.Config, opts TestOptions, logger *logging.Logger) error {
	dt, ok := findDifferentialTest(cfg, opts.Name)
	if !ok {
		return fmt.Errorf("differential test %q not found", opts.Name)
	}
	dCfg := dt.ToDifferentialTestConfig()
	pub1, ok := findPublisher(cfg, dt.Stream1ID)
	if !ok {
		return fmt.Errorf("differential test %q: stream1 %q not found", opts.Name, dt.Stream1ID)
	}
	pub2, ok := findPublisher(cfg, dt.Stream2ID)
	if !ok {
		return fmt.Errorf("differential test %q: stream2 %q not found", opts.Name, dt.Stream2ID)
	}

	sender, port, err := bindSender(cfg.Interface, opts.NoNet || cfg.NoNet)
	if err != nil {
		return err
	}
	if port != nil {
		defer port.Close()
	}
	set, err := setupRegistry([]config.PublisherConfig{pub1, pub2}, sender)
	if err != nil {
		return err
	}
	set.registry.StartAll()
	defer set.registry.StopAll()
	id1 := set.streamID[pub1.Name]
	id2 := set.streamID[pub2.Name]
	stop := startTickLoop(ctx, set)
	defer stop()

	tester := testers.NewDifferentialTester()
	tester.SetTripFlagGetter(tripsignal.Global.IsSet)
	tester.SetSide1CurrentSetter(func(magnitude float64) {
		setSingleCurrent(set.registry, id1, "Ia", magnitude, logger)
	})
	tester.SetSide2CurrentSetter(func(magnitude float64) {
		setSingleCurrent(set.registry, id2, "Ia", magnitude, logger)
	})

	bar := progress.NewProgressBar(int64(len(dCfg.Points)), "differential "+dt.Name)
	results := tester.Run(dCfg, func(i, total int, point testers.DifferentialPoint) {
		bar.Set(int64(i))
	})
	bar.Finish()

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	logger.Info("differential %s: %d/%d points passed", dt.Name, passed, len(results))
	fmt.Printf("%d/%d points passed\n", passed, len(results))
	return nil
}
