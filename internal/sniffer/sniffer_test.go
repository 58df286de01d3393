package sniffer

import (
	"errors"
	"testing"
	"time"

	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/triprule"
	"github.com/tturner/vts/internal/vtserrors"
)

type queueSource struct {
	frames [][]byte
	idx    int
}

func (q *queueSource) Recv() ([]byte, error) {
	if q.idx >= len(q.frames) {
		return nil, vtserrors.ErrTimeout
	}
	f := q.frames[q.idx]
	q.idx++
	return f, nil
}

type fakeAnalyzer struct {
	running   bool
	streamMac string
	samples   []float64
	channels  []string
}

func (a *fakeAnalyzer) IsRunning() bool     { return a.running }
func (a *fakeAnalyzer) StreamMac() string   { return a.streamMac }
func (a *fakeAnalyzer) ProcessSample(streamMac, channel string, value float64, ts time.Time) {
	a.samples = append(a.samples, value)
	a.channels = append(a.channels, channel)
}

func buildGooseFrame(t *testing.T, allData []iec61850.Data) []byte {
	t.Helper()
	dst, err := iec61850.ParseMac("01:0C:CD:01:00:00")
	if err != nil {
		t.Fatalf("parse dst mac: %v", err)
	}
	src, err := iec61850.ParseMac("AA:BB:CC:DD:EE:02")
	if err != nil {
		t.Fatalf("parse src mac: %v", err)
	}
	cfg := iec61850.GooseConfig{
		AppID:             0x1000,
		MacDst:            dst,
		MacSrc:            src,
		GoCbRef:           "RelayA/LLN0$GO$gcb01",
		TimeAllowedToLive: 2000,
		DatSet:            "RelayA/LLN0$DataSet01",
		StNum:             1,
		SqNum:             0,
		ConfRev:           1,
	}
	frame, err := iec61850.EncodeGoose(cfg, iec61850.UtcTime{Seconds: 1700000000, Defined: true}, allData)
	if err != nil {
		t.Fatalf("EncodeGoose: %v", err)
	}
	return frame
}

func buildSVFrame(t *testing.T) ([]byte, iec61850.Mac) {
	t.Helper()
	dst, err := iec61850.ParseMac("01:0C:CD:04:00:00")
	if err != nil {
		t.Fatalf("parse dst mac: %v", err)
	}
	src, err := iec61850.ParseMac("AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("parse src mac: %v", err)
	}
	cfg := iec61850.SVConfig{
		AppID:        0x4000,
		MacDst:       dst,
		MacSrc:       src,
		SvID:         "TestSV01",
		ConfRev:      1,
		SmpSynch:     1,
		ChannelCount: 2,
		NumASDU:      1,
	}
	tmpl, err := iec61850.NewSVTemplate(cfg)
	if err != nil {
		t.Fatalf("NewSVTemplate: %v", err)
	}
	frame, err := tmpl.Tick(0, []iec61850.Sample{{Value: 12345}, {Value: -500}})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	return frame, src
}

func TestHandleFrameUpdatesTripRuleAndFiresTrip(t *testing.T) {
	dst, _ := iec61850.ParseMac("01:0C:CD:01:00:00")
	src, _ := iec61850.ParseMac("AA:BB:CC:DD:EE:02")
	_ = dst

	evaluator := triprule.NewEvaluator()
	if err := evaluator.AddRule("trip1", "RelayA/LLN0$GO$gcb01/data0 == true"); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	cfg := Config{
		Goose: []GooseRegistration{{MacSrc: src, GoCbRef: "RelayA/LLN0$GO$gcb01"}},
	}
	var triggered []triprule.Result
	sn := New(cfg, &queueSource{}, evaluator, nil, nil)
	sn.OnTrip(func(r triprule.Result) { triggered = append(triggered, r) })

	frame := buildGooseFrame(t, []iec61850.Data{iec61850.Boolean(true), iec61850.Boolean(false)})
	sn.HandleFrame(frame, time.Now())

	if len(triggered) != 1 || triggered[0].RuleName != "trip1" {
		t.Fatalf("triggered = %+v, want one trip1 result", triggered)
	}
}

func TestHandleFrameUnregisteredGoCbRefIgnored(t *testing.T) {
	src, _ := iec61850.ParseMac("AA:BB:CC:DD:EE:02")
	evaluator := triprule.NewEvaluator()
	if err := evaluator.AddRule("trip1", "RelayA/LLN0$GO$gcb01/data0 == true"); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	cfg := Config{
		Goose: []GooseRegistration{{MacSrc: src, GoCbRef: "OtherRelay/LLN0$GO$gcb99"}},
	}
	sn := New(cfg, &queueSource{}, evaluator, nil, nil)
	fired := false
	sn.OnTrip(func(triprule.Result) { fired = true })

	frame := buildGooseFrame(t, []iec61850.Data{iec61850.Boolean(true)})
	sn.HandleFrame(frame, time.Now())

	if fired {
		t.Fatal("expected no trip for an unregistered GoCbRef")
	}
}

func TestHandleFrameDispatchesSVToAnalyzer(t *testing.T) {
	frame, src := buildSVFrame(t)
	analyzer := &fakeAnalyzer{running: true, streamMac: src.String()}
	cfg := Config{SVSources: []iec61850.Mac{mustParseMac(t, "01:0C:CD:04:00:00")}}
	sn := New(cfg, &queueSource{}, nil, analyzer, nil)

	sn.HandleFrame(frame, time.Now())

	if len(analyzer.samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(analyzer.samples))
	}
	if analyzer.samples[0] != 123.45 {
		t.Fatalf("samples[0] = %v, want 123.45", analyzer.samples[0])
	}
	if analyzer.channels[0] != "Ch0" || analyzer.channels[1] != "Ch1" {
		t.Fatalf("channels = %v, want [Ch0 Ch1]", analyzer.channels)
	}
}

func TestHandleFrameSkipsSVWhenAnalyzerNotRunning(t *testing.T) {
	frame, _ := buildSVFrame(t)
	analyzer := &fakeAnalyzer{running: false}
	cfg := Config{SVSources: []iec61850.Mac{mustParseMac(t, "01:0C:CD:04:00:00")}}
	sn := New(cfg, &queueSource{}, nil, analyzer, nil)

	sn.HandleFrame(frame, time.Now())

	if len(analyzer.samples) != 0 {
		t.Fatal("expected no samples while analyzer is not running")
	}
}

func TestHandleFrameUnregisteredMacIgnored(t *testing.T) {
	frame, _ := buildSVFrame(t)
	analyzer := &fakeAnalyzer{running: true, streamMac: "AA:BB:CC:DD:EE:01"}
	sn := New(Config{}, &queueSource{}, nil, analyzer, nil)

	sn.HandleFrame(frame, time.Now())

	if len(analyzer.samples) != 0 {
		t.Fatal("expected no samples for an unregistered destination MAC")
	}
}

func TestHandleFrameTruncatedGooseCountsParseError(t *testing.T) {
	src, _ := iec61850.ParseMac("AA:BB:CC:DD:EE:02")
	evaluator := triprule.NewEvaluator()
	cfg := Config{Goose: []GooseRegistration{{MacSrc: src, GoCbRef: "RelayA/LLN0$GO$gcb01"}}}
	sn := New(cfg, &queueSource{}, evaluator, nil, nil)

	frame := buildGooseFrame(t, []iec61850.Data{iec61850.Boolean(true)})
	sn.HandleFrame(frame[:len(frame)-5], time.Now())

	if got := sn.ParseErrors(); got != 1 {
		t.Fatalf("ParseErrors() = %d, want 1", got)
	}

	sn.HandleFrame(frame, time.Now())
	if got := sn.ParseErrors(); got != 1 {
		t.Fatalf("ParseErrors() after a valid frame = %d, want unchanged at 1", got)
	}
}

func TestStartStopRunsLoopUntilStopped(t *testing.T) {
	src, _ := iec61850.ParseMac("AA:BB:CC:DD:EE:02")
	evaluator := triprule.NewEvaluator()
	cfg := Config{Goose: []GooseRegistration{{MacSrc: src, GoCbRef: "RelayA/LLN0$GO$gcb01"}}}
	frame := buildGooseFrame(t, []iec61850.Data{iec61850.Boolean(true)})
	source := &queueSource{frames: [][]byte{frame}}
	sn := New(cfg, source, evaluator, nil, nil)

	if err := sn.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sn.Start(); !errors.Is(err, vtserrors.ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
	if err := sn.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := sn.Stop(); !errors.Is(err, vtserrors.ErrNotRunning) {
		t.Fatalf("second Stop err = %v, want ErrNotRunning", err)
	}
}

func mustParseMac(t *testing.T, s string) iec61850.Mac {
	t.Helper()
	m, err := iec61850.ParseMac(s)
	if err != nil {
		t.Fatalf("parse mac %q: %v", s, err)
	}
	return m
}
