// Package publisher drives one or more SV streams: synthesizing samples,
// patching them into a pre-rendered frame template, and sending each tick.
package publisher

import (
	"fmt"
	"sync"

	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/vtserrors"
)

// FrameSender transmits one complete Ethernet frame. internal/netio.Port
// satisfies this.
type FrameSender interface {
	Send(frame []byte) error
}

// Config is one stream's full configuration: wire framing plus the
// synthesis clock it ticks against.
type Config struct {
	SV          iec61850.SVConfig
	NominalFreq float64
	SampleRate  uint32
}

// Instance owns one SV stream's running state: its frame template, current
// channel phasors/harmonics, and sample counter.
type Instance struct {
	mu       sync.Mutex
	id       string
	cfg      Config
	tmpl     *iec61850.SVTemplate
	channels []synth.Channel
	running  bool
	sample   uint32
	sender   FrameSender
}

// NewInstance builds the frame template once and seeds zero-valued channels.
func NewInstance(id string, cfg Config, sender FrameSender) (*Instance, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate must be positive: %w", vtserrors.ErrConfigInvalid)
	}
	tmpl, err := iec61850.NewSVTemplate(cfg.SV)
	if err != nil {
		return nil, err
	}
	return &Instance{
		id:       id,
		cfg:      cfg,
		tmpl:     tmpl,
		channels: make([]synth.Channel, cfg.SV.ChannelCount),
		sender:   sender,
	}, nil
}

// ID returns the stream's identifier.
func (in *Instance) ID() string { return in.id }

// Config returns a copy of the stream's configuration.
func (in *Instance) Config() Config {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cfg
}

// SetConfig replaces the configuration and rebuilds the frame template.
// It does not reset the running state or sample counter.
func (in *Instance) SetConfig(cfg Config) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if cfg.SampleRate == 0 {
		return fmt.Errorf("sample rate must be positive: %w", vtserrors.ErrConfigInvalid)
	}
	tmpl, err := iec61850.NewSVTemplate(cfg.SV)
	if err != nil {
		return err
	}
	in.cfg = cfg
	in.tmpl = tmpl
	if len(in.channels) != cfg.SV.ChannelCount {
		resized := make([]synth.Channel, cfg.SV.ChannelCount)
		copy(resized, in.channels)
		in.channels = resized
	}
	return nil
}

// Start resets the sample counter and marks the stream running.
func (in *Instance) Start() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.sample = 0
	in.running = true
}

// Stop marks the stream idle. Tick becomes a no-op until Start is called again.
func (in *Instance) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.running = false
}

// IsRunning reports whether the stream is ticking.
func (in *Instance) IsRunning() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.running
}

// SetPhasors replaces every channel's fundamental phasor, leaving harmonics
// untouched, per the manager's manual-mode update path.
func (in *Instance) SetPhasors(phasors []synth.Phasor) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := range in.channels {
		if i < len(phasors) {
			in.channels[i].Fundamental = phasors[i]
		}
	}
}

// Phasors returns a copy of every channel's current fundamental phasor.
func (in *Instance) Phasors() []synth.Phasor {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]synth.Phasor, len(in.channels))
	for i, ch := range in.channels {
		out[i] = ch.Fundamental
	}
	return out
}

// SetHarmonics replaces the harmonic content of one channel.
func (in *Instance) SetHarmonics(channel int, harmonics []synth.Harmonic) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if channel < 0 || channel >= len(in.channels) {
		return fmt.Errorf("channel %d out of range [0,%d): %w", channel, len(in.channels), vtserrors.ErrConfigInvalid)
	}
	in.channels[channel].Harmonics = harmonics
	return nil
}

// Tick synthesizes the current sample, patches it into the template, and
// sends the frame. It is a no-op when the stream is not running. The wrap
// policy matches the wire convention: smpCnt = sample mod 65536, and the
// sample counter itself resets to 0 once it reaches SampleRate (one second
// of samples).
func (in *Instance) Tick() error {
	in.mu.Lock()
	if !in.running {
		in.mu.Unlock()
		return nil
	}
	sample := in.sample
	channels := in.channels
	freq := in.cfg.NominalFreq
	rate := in.cfg.SampleRate
	tmpl := in.tmpl
	sender := in.sender
	in.mu.Unlock()

	values := synth.SynthesizeSet(channels, freq, rate, sample)
	samples := make([]iec61850.Sample, len(values))
	for i, v := range values {
		samples[i] = iec61850.Sample{Value: v, Quality: 0}
	}

	smpCnt := uint16(sample % 65536)
	frame, err := tmpl.Tick(smpCnt, samples)
	if err != nil {
		return err
	}

	in.mu.Lock()
	in.sample++
	if in.sample >= rate {
		in.sample = 0
	}
	in.mu.Unlock()

	if sender == nil {
		return nil
	}
	return sender.Send(frame)
}
