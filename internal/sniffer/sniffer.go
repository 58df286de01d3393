// Package sniffer demultiplexes raw Ethernet frames into SV and GOOSE
// handling: SV samples are handed to an analyzer sink, GOOSE boolean data
// points feed the trip rule evaluator, and a rule match raises the shared
// trip signal. Grounded on the core's process_pkt/process_SV_packet/
// process_GOOSE_packet dispatch.
package sniffer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/triprule"
	"github.com/tturner/vts/internal/tripsignal"
	"github.com/tturner/vts/internal/vtserrors"
)

// FrameSource is anything that yields whole Ethernet frames, one at a time.
// netio.Port satisfies this; tests use a fake.
type FrameSource interface {
	Recv() ([]byte, error)
}

// AnalyzerSink receives SV samples for the one stream currently under
// analysis. The analyzer decides, via IsRunning/StreamMac, whether it wants
// a given frame at all.
type AnalyzerSink interface {
	IsRunning() bool
	StreamMac() string
	ProcessSample(streamMac, channel string, value float64, ts time.Time)
}

// GooseRegistration names one GOOSE control block the sniffer should match
// frames against, plus the MAC it publishes from.
type GooseRegistration struct {
	MacSrc  iec61850.Mac
	GoCbRef string
}

// Config is the sniffer's static setup: the SV destination MACs it
// dispatches SV frames for, and the GOOSE control blocks it evaluates.
type Config struct {
	SVSources []iec61850.Mac
	Goose     []GooseRegistration
}

// TripHandler is called synchronously whenever the trip rule evaluator fires.
type TripHandler func(triprule.Result)

// Sniffer reads frames from a FrameSource and dispatches them.
type Sniffer struct {
	mu        sync.Mutex
	cfg       Config
	source    FrameSource
	evaluator *triprule.Evaluator
	analyzer  AnalyzerSink
	logger    *logging.Logger
	onTrip    TripHandler

	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	parseErrors uint64
}

// New builds a sniffer over source, evaluating rules with evaluator.
// analyzer and logger may be nil.
func New(cfg Config, source FrameSource, evaluator *triprule.Evaluator, analyzer AnalyzerSink, logger *logging.Logger) *Sniffer {
	return &Sniffer{
		cfg:       cfg,
		source:    source,
		evaluator: evaluator,
		analyzer:  analyzer,
		logger:    logger,
	}
}

// OnTrip registers a callback invoked whenever a trip rule fires.
func (s *Sniffer) OnTrip(h TripHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTrip = h
}

// Start launches the receive loop in a background goroutine.
func (s *Sniffer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("sniffer: %w", vtserrors.ErrAlreadyRunning)
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop signals the receive loop to exit and waits for it.
func (s *Sniffer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sniffer: %w", vtserrors.ErrNotRunning)
	}
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *Sniffer) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		frame, err := s.source.Recv()
		if err != nil {
			if errors.Is(err, vtserrors.ErrTimeout) {
				continue
			}
			return
		}
		s.HandleFrame(frame, time.Now())
	}
}

// HandleFrame processes a single frame, dispatching to SV or GOOSE handling.
// Exported so tests and offline pcap replay can drive the sniffer directly.
func (s *Sniffer) HandleFrame(frame []byte, now time.Time) {
	if !macRegistered(frame, s.cfg) {
		return
	}
	if len(frame) < 14 {
		return
	}

	offset := 12
	if frame[12] == 0x81 && frame[13] == 0x00 {
		offset = 16
	}
	if len(frame) < offset+2 {
		return
	}

	// pduOffset skips ethertype(2)+APPID(2)+Length(2)+Reserved(4) to land on
	// the SAVPDU/GOOSE PDU tag, matching iec61850.DecodeSV/DecodeGoose's
	// offset convention.
	pduOffset := offset + 10
	if len(frame) < pduOffset {
		return
	}

	switch {
	case frame[offset] == 0x88 && frame[offset+1] == 0xBA:
		s.handleSV(frame, pduOffset, now)
	case frame[offset] == 0x88 && frame[offset+1] == 0xB8:
		s.handleGoose(frame, pduOffset, now)
	}
}

// macRegistered mirrors process_pkt: a frame matches if its destination MAC
// (SV publications) or its source MAC (GOOSE publications) is registered.
func macRegistered(frame []byte, cfg Config) bool {
	if len(frame) < 12 {
		return false
	}
	for _, mac := range cfg.SVSources {
		if macEqual(frame[0:6], mac) {
			return true
		}
	}
	for _, g := range cfg.Goose {
		if macEqual(frame[6:12], g.MacSrc) {
			return true
		}
	}
	return false
}

func macEqual(b []byte, m iec61850.Mac) bool {
	for i := 0; i < 6; i++ {
		if b[i] != m[i] {
			return false
		}
	}
	return true
}

func (s *Sniffer) handleSV(frame []byte, offset int, now time.Time) {
	if s.analyzer == nil || !s.analyzer.IsRunning() {
		return
	}
	if len(frame) < 12 {
		return
	}
	streamMac := iec61850.Mac{}
	copy(streamMac[:], frame[6:12])
	if streamMac.String() != s.analyzer.StreamMac() {
		return
	}

	decoded, err := iec61850.DecodeSV(frame, offset)
	if err != nil {
		atomic.AddUint64(&s.parseErrors, 1)
		if s.logger != nil {
			s.logger.Debug("sv decode: %v", err)
		}
		return
	}
	for _, asdu := range decoded.ASDUs {
		for idx, sample := range asdu.Samples {
			value := float64(sample.Value) / 100.0
			channel := "Ch" + strconv.Itoa(idx)
			s.analyzer.ProcessSample(streamMac.String(), channel, value, now)
		}
	}
}

func (s *Sniffer) handleGoose(frame []byte, offset int, now time.Time) {
	decoded, err := iec61850.DecodeGoose(frame, offset)
	if err != nil {
		atomic.AddUint64(&s.parseErrors, 1)
		if s.logger != nil {
			s.logger.Debug("goose decode: %v", err)
		}
		return
	}

	if !s.gooseRegistered(decoded.GoCbRef) {
		return
	}

	if s.evaluator == nil {
		return
	}

	bools := decoded.BooleanVector()
	for idx, b := range bools {
		dataPath := decoded.GoCbRef + "/data" + strconv.Itoa(idx)
		s.evaluator.UpdateBool(dataPath, b)
	}

	result := s.evaluator.Evaluate(now.UnixMicro())
	if !result.Triggered {
		return
	}

	tripsignal.Global.Set()
	if s.logger != nil {
		s.logger.Info("trip rule triggered: %s - %s", result.RuleName, result.Message)
	}

	s.mu.Lock()
	handler := s.onTrip
	s.mu.Unlock()
	if handler != nil {
		handler(result)
	}
}

func (s *Sniffer) gooseRegistered(goCbRef string) bool {
	for _, g := range s.cfg.Goose {
		if g.GoCbRef == goCbRef {
			return true
		}
	}
	return false
}

// RegisteredGoCbRefs returns the configured GOOSE control block references,
// sorted, for diagnostics.
func (s *Sniffer) RegisteredGoCbRefs() []string {
	refs := make([]string, 0, len(s.cfg.Goose))
	for _, g := range s.cfg.Goose {
		refs = append(refs, g.GoCbRef)
	}
	sort.Strings(refs)
	return refs
}

// ParseErrors returns the count of frames dropped for a decode failure
// since the sniffer was created.
func (s *Sniffer) ParseErrors() uint64 {
	return atomic.LoadUint64(&s.parseErrors)
}
