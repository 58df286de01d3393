// Package config loads and validates the virtual test set's YAML
// configuration: interface selection, SV publishers, trip rules, GOOSE
// subscriptions, named sequences, and named tester configurations.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tturner/vts/internal/errors"
	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/impedance"
	"github.com/tturner/vts/internal/testers"
)

// PhasorConfig is one channel's initial fundamental phasor plus harmonics,
// as loaded from YAML before being handed to internal/synth.
type PhasorConfig struct {
	MagnitudeRMS float64          `yaml:"magnitude_rms"`
	AngleDeg     float64          `yaml:"angle_deg"`
	Harmonics    []HarmonicConfig `yaml:"harmonics,omitempty"`
}

// HarmonicConfig is one harmonic order riding on a channel's fundamental.
type HarmonicConfig struct {
	Order        int     `yaml:"order"`
	MagnitudeRMS float64 `yaml:"magnitude_rms"`
	AngleDeg     float64 `yaml:"angle_deg"`
}

// PublisherConfig describes one SV stream, per the publisher configuration
// data model.
type PublisherConfig struct {
	Name         string          `yaml:"name"`
	AppID        uint16          `yaml:"app_id"`
	MacDst       string          `yaml:"mac_dst"`
	MacSrc       string          `yaml:"mac_src"`
	VlanID       uint16          `yaml:"vlan_id,omitempty"`
	VlanPriority uint8           `yaml:"vlan_priority,omitempty"`
	SvID         string          `yaml:"sv_id"`
	DatSet       string          `yaml:"dat_set,omitempty"`
	ConfRev      uint32          `yaml:"conf_rev"`
	NominalFreq  float64         `yaml:"nominal_freq_hz"`
	SampleRate   uint32          `yaml:"sample_rate_hz"`
	NumASDU      int             `yaml:"num_asdu"`
	Channels     []PhasorConfig  `yaml:"channels"`
}

// RuleConfig describes one named trip rule.
type RuleConfig struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Enabled    bool   `yaml:"enabled"`
}

// GooseSubscriptionConfig registers one GOOSE publication the sniffer
// should demultiplex and feed to the trip rule evaluator.
type GooseSubscriptionConfig struct {
	Name    string `yaml:"name"`
	MacSrc  string `yaml:"mac_src"`
	GoCbRef string `yaml:"go_cb_ref"`
}

// SequenceStateConfig is one state of a named sequence.
type SequenceStateConfig struct {
	Name         string                  `yaml:"name"`
	DurationMs   int                     `yaml:"duration_ms,omitempty"`
	Transition   string                  `yaml:"transition"` // "time" or "goose_trip"
	StreamPhasors map[string]StreamPhasorsConfig `yaml:"stream_phasors"`
}

// StreamPhasorsConfig is the per-stream frequency and channel phasor set
// applied when a sequence enters a state.
type StreamPhasorsConfig struct {
	FreqHz   float64                 `yaml:"freq_hz"`
	Channels map[string]PhasorConfig `yaml:"channels"`
}

// SequenceConfig is a named, selectable multi-state test sequence.
type SequenceConfig struct {
	Name          string                `yaml:"name"`
	ActiveStreams []string              `yaml:"active_streams"`
	States        []SequenceStateConfig `yaml:"states"`
}

// RampTestConfig is a named ramp pickup/dropoff sweep.
type RampTestConfig struct {
	Name           string  `yaml:"name"`
	Variable       string  `yaml:"variable"`
	StartValue     float64 `yaml:"start_value"`
	EndValue       float64 `yaml:"end_value"`
	StepSize       float64 `yaml:"step_size"`
	StepDurationMs int     `yaml:"step_duration_ms"`
	MonitorTrip    bool    `yaml:"monitor_trip"`
	StreamID       string  `yaml:"stream_id"`
}

// DistanceTestPointConfig is one R-X coordinate in a named distance test.
type DistanceTestPointConfig struct {
	R              float64 `yaml:"r"`
	X              float64 `yaml:"x"`
	FaultType      string  `yaml:"fault_type"`
	ExpectedTimeMs int     `yaml:"expected_time_ms"`
	Label          string  `yaml:"label,omitempty"`
}

// DistanceTestConfig is a named Zone 21 distance relay test.
type DistanceTestConfig struct {
	Name                string                    `yaml:"name"`
	Points              []DistanceTestPointConfig `yaml:"points"`
	SourceRS1           float64                   `yaml:"source_rs1"`
	SourceXS1           float64                   `yaml:"source_xs1"`
	SourceRS0           float64                   `yaml:"source_rs0"`
	SourceXS0           float64                   `yaml:"source_xs0"`
	SourceVprefault     float64                   `yaml:"source_vprefault"`
	PrefaultDurationMs  int                       `yaml:"prefault_duration_ms"`
	FaultDurationMs     int                       `yaml:"fault_duration_ms"`
	TimeToleranceMs     int                       `yaml:"time_tolerance_ms"`
	StopOnFirstFailure  bool                      `yaml:"stop_on_first_failure"`
	StreamID            string                    `yaml:"stream_id"`
}

// OvercurrentTestPointConfig is one current multiple in a named overcurrent
// curve test.
type OvercurrentTestPointConfig struct {
	CurrentMultiple float64 `yaml:"current_multiple"`
	ExpectedTimeMs  int     `yaml:"expected_time_ms"`
	Label           string  `yaml:"label,omitempty"`
}

// OvercurrentTestConfig is a named IDMT overcurrent curve verification test.
type OvercurrentTestConfig struct {
	Name                 string                       `yaml:"name"`
	PickupCurrent        float64                      `yaml:"pickup_current"`
	TMS                  float64                      `yaml:"tms"`
	Curve                string                       `yaml:"curve"`
	Points               []OvercurrentTestPointConfig `yaml:"points"`
	TimeToleranceMs      int                          `yaml:"time_tolerance_ms"`
	TimeTolerancePercent float64                      `yaml:"time_tolerance_percent,omitempty"`
	ToleranceIsPercent   bool                         `yaml:"tolerance_is_percent"`
	MaxTestDurationMs    int                          `yaml:"max_test_duration_ms"`
	StopOnFirstFailure   bool                         `yaml:"stop_on_first_failure"`
	StreamID             string                       `yaml:"stream_id"`
}

// DifferentialTestPointConfig is one Ir/Id pair in a named differential
// relay test.
type DifferentialTestPointConfig struct {
	Ir             float64 `yaml:"ir"`
	Id             float64 `yaml:"id"`
	ExpectedTimeMs int     `yaml:"expected_time_ms"`
	Label          string  `yaml:"label,omitempty"`
}

// DifferentialTestConfig is a named 87 differential relay test.
type DifferentialTestConfig struct {
	Name               string                        `yaml:"name"`
	Points             []DifferentialTestPointConfig `yaml:"points"`
	TimeToleranceMs    int                            `yaml:"time_tolerance_ms"`
	MaxTestDurationMs  int                            `yaml:"max_test_duration_ms"`
	StopOnFirstFailure bool                           `yaml:"stop_on_first_failure"`
	Stream1ID          string                         `yaml:"stream1_id"`
	Stream2ID          string                         `yaml:"stream2_id"`
}

// Config is the complete top-level configuration document.
type Config struct {
	Interface         string                    `yaml:"interface"`
	NoNet             bool                      `yaml:"no_net"`
	LogLevel          string                    `yaml:"log_level"`
	LogFile           string                    `yaml:"log_file,omitempty"`
	Publishers        []PublisherConfig         `yaml:"publishers"`
	Rules             []RuleConfig              `yaml:"rules"`
	GooseSubscriptions []GooseSubscriptionConfig `yaml:"goose_subscriptions"`
	Sequences         []SequenceConfig          `yaml:"sequences"`
	RampTests         []RampTestConfig          `yaml:"ramp_tests"`
	DistanceTests     []DistanceTestConfig      `yaml:"distance_tests"`
	OvercurrentTests  []OvercurrentTestConfig   `yaml:"overcurrent_tests"`
	DifferentialTests []DifferentialTestConfig  `yaml:"differential_tests"`
}

// WriteDefault writes a minimal, valid starter config to path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load reads and validates a configuration document from path. If the file
// doesn't exist and autoCreate is true, a default config is written first.
func Load(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if !autoCreate {
				return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
			}
			if err := WriteDefault(path); err != nil {
				return nil, fmt.Errorf("create default config: %w", err)
			}
			data, err = os.ReadFile(path)
			if err != nil {
				return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
			}
		} else {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	applyDefaults(&cfg)
	applyTestDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	for i := range cfg.Publishers {
		if cfg.Publishers[i].NumASDU == 0 {
			cfg.Publishers[i].NumASDU = 1
		}
		if cfg.Publishers[i].SampleRate == 0 {
			cfg.Publishers[i].SampleRate = 4800
		}
		if cfg.Publishers[i].NominalFreq == 0 {
			cfg.Publishers[i].NominalFreq = 60.0
		}
	}
}

// Validate checks field ranges and cross-references across the whole
// document.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.LogLevel) {
	case "silent", "error", "info", "verbose", "debug":
	default:
		return fmt.Errorf("log_level %q is not one of silent|error|info|verbose|debug", cfg.LogLevel)
	}

	names := make(map[string]bool)
	for i, pub := range cfg.Publishers {
		if err := validatePublisher(pub, i); err != nil {
			return err
		}
		if names[pub.Name] {
			return fmt.Errorf("publishers[%d]: duplicate name %q", i, pub.Name)
		}
		names[pub.Name] = true
	}

	for i, rule := range cfg.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if rule.Expression == "" {
			return fmt.Errorf("rules[%d]: expression is required", i)
		}
	}

	for i, sub := range cfg.GooseSubscriptions {
		if sub.GoCbRef == "" {
			return fmt.Errorf("goose_subscriptions[%d]: go_cb_ref is required", i)
		}
		if _, err := iec61850.ParseMac(sub.MacSrc); err != nil {
			return fmt.Errorf("goose_subscriptions[%d]: %w", i, err)
		}
	}

	for i, seq := range cfg.Sequences {
		if err := validateSequence(seq, i); err != nil {
			return err
		}
	}

	for i, rt := range cfg.RampTests {
		if rt.Name == "" {
			return fmt.Errorf("ramp_tests[%d]: name is required", i)
		}
		if rt.StepSize == 0 {
			return fmt.Errorf("ramp_tests[%d]: step_size must be nonzero", i)
		}
		if _, err := testers.ParseRampVariable(rt.Variable); err != nil {
			return fmt.Errorf("ramp_tests[%d]: %w", i, err)
		}
	}

	for i, dt := range cfg.DistanceTests {
		if dt.Name == "" {
			return fmt.Errorf("distance_tests[%d]: name is required", i)
		}
		if len(dt.Points) == 0 {
			return fmt.Errorf("distance_tests[%d]: at least one point is required", i)
		}
		for j, pt := range dt.Points {
			if _, err := impedance.ParseFaultType(pt.FaultType); err != nil {
				return fmt.Errorf("distance_tests[%d].points[%d]: %w", i, j, err)
			}
		}
	}

	for i, ot := range cfg.OvercurrentTests {
		if ot.Name == "" {
			return fmt.Errorf("overcurrent_tests[%d]: name is required", i)
		}
		if ot.PickupCurrent <= 0 {
			return fmt.Errorf("overcurrent_tests[%d]: pickup_current must be positive", i)
		}
		if len(ot.Points) == 0 {
			return fmt.Errorf("overcurrent_tests[%d]: at least one point is required", i)
		}
		if _, err := testers.ParseOCCurve(ot.Curve); err != nil {
			return fmt.Errorf("overcurrent_tests[%d]: %w", i, err)
		}
	}

	for i, diff := range cfg.DifferentialTests {
		if diff.Name == "" {
			return fmt.Errorf("differential_tests[%d]: name is required", i)
		}
		if len(diff.Points) == 0 {
			return fmt.Errorf("differential_tests[%d]: at least one point is required", i)
		}
	}

	return nil
}

func validatePublisher(pub PublisherConfig, index int) error {
	if pub.Name == "" {
		return fmt.Errorf("publishers[%d]: name is required", index)
	}
	if _, err := iec61850.ParseMac(pub.MacDst); err != nil {
		return fmt.Errorf("publishers[%d]: mac_dst: %w", index, err)
	}
	if _, err := iec61850.ParseMac(pub.MacSrc); err != nil {
		return fmt.Errorf("publishers[%d]: mac_src: %w", index, err)
	}
	vlan := iec61850.VLAN{ID: pub.VlanID, Prio: pub.VlanPriority}
	if err := vlan.Validate(); err != nil {
		return fmt.Errorf("publishers[%d]: %w", index, err)
	}
	if pub.SvID == "" || len(pub.SvID) > 255 {
		return fmt.Errorf("publishers[%d]: sv_id length must be in [1,255]", index)
	}
	if len(pub.Channels) == 0 || len(pub.Channels) > 32 {
		return fmt.Errorf("publishers[%d]: channel count must be in [1,32]", index)
	}
	if pub.NominalFreq != 50.0 && pub.NominalFreq != 60.0 {
		return fmt.Errorf("publishers[%d]: nominal_freq_hz must be 50 or 60, got %v", index, pub.NominalFreq)
	}
	return nil
}

func validateSequence(seq SequenceConfig, index int) error {
	if seq.Name == "" {
		return fmt.Errorf("sequences[%d]: name is required", index)
	}
	if len(seq.ActiveStreams) == 0 {
		return fmt.Errorf("sequences[%d]: active_streams must not be empty", index)
	}
	if len(seq.States) == 0 {
		return fmt.Errorf("sequences[%d]: states must not be empty", index)
	}
	for j, state := range seq.States {
		switch state.Transition {
		case "time", "goose_trip":
		default:
			return fmt.Errorf("sequences[%d].states[%d]: transition must be 'time' or 'goose_trip', got %q", index, j, state.Transition)
		}
		if state.Transition == "time" && state.DurationMs <= 0 {
			return fmt.Errorf("sequences[%d].states[%d]: duration_ms must be positive for a time transition", index, j)
		}
	}
	return nil
}
