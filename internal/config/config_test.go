package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vts.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const minimalValidConfig = `
interface: eth0
log_level: info
publishers:
  - name: sv1
    app_id: 16384
    mac_dst: "01:0c:cd:04:00:01"
    mac_src: "02:00:00:00:00:01"
    sv_id: VTS1SV1
    conf_rev: 1
    channels:
      - magnitude_rms: 66395.3
        angle_deg: 0
`

func TestLoadAcceptsMinimalValidConfig(t *testing.T) {
	path := writeTempConfig(t, minimalValidConfig)
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(cfg.Publishers) != 1 {
		t.Fatalf("expected 1 publisher, got %d", len(cfg.Publishers))
	}
	if cfg.Publishers[0].SampleRate != 4800 {
		t.Fatalf("expected default sample_rate_hz 4800, got %d", cfg.Publishers[0].SampleRate)
	}
	if cfg.Publishers[0].NominalFreq != 60.0 {
		t.Fatalf("expected default nominal_freq_hz 60, got %v", cfg.Publishers[0].NominalFreq)
	}
}

func TestLoadAutoCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.yaml")
	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load with autoCreate returned error: %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected config file to be created: %v", statErr)
	}
	if len(cfg.Publishers) == 0 {
		t.Fatal("expected default config to include at least one publisher")
	}
}

func TestLoadRejectsMissingFileWithoutAutoCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected an error for a missing config file without autoCreate")
	}
}

func TestLoadRejectsBadMacAddress(t *testing.T) {
	path := writeTempConfig(t, `
interface: eth0
publishers:
  - name: sv1
    mac_dst: "not-a-mac"
    mac_src: "02:00:00:00:00:01"
    sv_id: VTS1SV1
    channels:
      - magnitude_rms: 100
`)
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected an error for an invalid mac_dst")
	}
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeTempConfig(t, `
interface: eth0
log_level: chatty
publishers:
  - name: sv1
    mac_dst: "01:0c:cd:04:00:01"
    mac_src: "02:00:00:00:00:01"
    sv_id: VTS1SV1
    channels:
      - magnitude_rms: 100
`)
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected an error for an invalid log_level")
	}
}

func TestLoadRejectsTooManyChannels(t *testing.T) {
	channels := ""
	for i := 0; i < 33; i++ {
		channels += "      - magnitude_rms: 1\n"
	}
	path := writeTempConfig(t, `
interface: eth0
publishers:
  - name: sv1
    mac_dst: "01:0c:cd:04:00:01"
    mac_src: "02:00:00:00:00:01"
    sv_id: VTS1SV1
    channels:
`+channels)
	if _, err := Load(path, false); err == nil {
		t.Fatal("expected an error for more than 32 channels")
	}
}

func TestValidateRejectsDuplicatePublisherNames(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		Publishers: []PublisherConfig{
			{Name: "dup", MacDst: "01:0c:cd:04:00:01", MacSrc: "02:00:00:00:00:01", SvID: "A", NominalFreq: 60, Channels: []PhasorConfig{{MagnitudeRMS: 1}}},
			{Name: "dup", MacDst: "01:0c:cd:04:00:02", MacSrc: "02:00:00:00:00:02", SvID: "B", NominalFreq: 60, Channels: []PhasorConfig{{MagnitudeRMS: 1}}},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for duplicate publisher names")
	}
}

func TestValidateRejectsRuleWithoutExpression(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		Rules:    []RuleConfig{{Name: "r1"}},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for a rule without an expression")
	}
}

func TestValidateRejectsSequenceWithBadTransition(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		Sequences: []SequenceConfig{
			{
				Name:          "seq1",
				ActiveStreams: []string{"sv1"},
				States: []SequenceStateConfig{
					{Name: "fault", Transition: "whenever"},
				},
			},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unrecognized transition")
	}
}

func TestValidateRejectsTimeTransitionWithoutDuration(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		Sequences: []SequenceConfig{
			{
				Name:          "seq1",
				ActiveStreams: []string{"sv1"},
				States: []SequenceStateConfig{
					{Name: "fault", Transition: "time"},
				},
			},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for a time transition with no duration_ms")
	}
}

func TestValidateRejectsUnknownOvercurrentCurve(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		OvercurrentTests: []OvercurrentTestConfig{
			{
				Name:          "oc1",
				PickupCurrent: 5,
				Curve:         "not_a_curve",
				Points:        []OvercurrentTestPointConfig{{CurrentMultiple: 2}},
			},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unknown overcurrent curve")
	}
}

func TestValidateRejectsUnknownDistanceFaultType(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		DistanceTests: []DistanceTestConfig{
			{
				Name:   "z1",
				Points: []DistanceTestPointConfig{{R: 1, X: 1, FaultType: "not_a_fault"}},
			},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unknown distance fault type")
	}
}

func TestValidateRejectsUnknownRampVariable(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		RampTests: []RampTestConfig{
			{Name: "r1", Variable: "not_a_variable", StepSize: 1},
		},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unknown ramp variable")
	}
}

func TestWriteDefaultProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load of written default failed: %v", err)
	}
	if len(cfg.Publishers) == 0 {
		t.Fatal("expected the default config to include a publisher")
	}
}

func TestApplyTestDefaultsFillsDistanceTiming(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		DistanceTests: []DistanceTestConfig{
			{Name: "z1", Points: []DistanceTestPointConfig{{R: 1, X: 1, FaultType: "3ph"}}},
		},
	}
	applyTestDefaults(cfg)
	dt := cfg.DistanceTests[0]
	if dt.PrefaultDurationMs != defaultPrefaultDurationMs {
		t.Fatalf("prefault_duration_ms = %d, want %d", dt.PrefaultDurationMs, defaultPrefaultDurationMs)
	}
	if dt.FaultDurationMs != defaultFaultDurationMs {
		t.Fatalf("fault_duration_ms = %d, want %d", dt.FaultDurationMs, defaultFaultDurationMs)
	}
	if dt.SourceVprefault != 1.0 {
		t.Fatalf("source_vprefault = %v, want 1.0", dt.SourceVprefault)
	}
}

func TestApplyTestDefaultsFillsOvercurrentTolerance(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
		OvercurrentTests: []OvercurrentTestConfig{
			{Name: "oc1", PickupCurrent: 5, Points: []OvercurrentTestPointConfig{{CurrentMultiple: 2}}},
		},
	}
	applyTestDefaults(cfg)
	ot := cfg.OvercurrentTests[0]
	if ot.Curve != "SI" {
		t.Fatalf("curve = %q, want default SI", ot.Curve)
	}
	if !ot.ToleranceIsPercent || ot.TimeTolerancePercent != defaultOvercurrentTolerancePercent {
		t.Fatalf("expected percent tolerance default of %v, got percent=%v isPercent=%v", defaultOvercurrentTolerancePercent, ot.TimeTolerancePercent, ot.ToleranceIsPercent)
	}
}
