// Package app holds the Run(opts) error functions cmd/vts's subcommands
// call into, so the CLI layer only parses flags and never duplicates core
// logic. Grounded on cmd/cipdip/run.go's internal/app split in the teacher.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tturner/vts/internal/config"
	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/netio"
	"github.com/tturner/vts/internal/publisher"
	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/timing"
)

// standardChannelOrder is the channel-name-to-index convention every
// publisher in this repo's examples and default config follows: three
// voltage phasors followed by three current phasors. Named stream phasor
// updates (sequence states, test drivers) resolve a channel name to an
// index against this order rather than against per-publisher metadata,
// since PhasorConfig carries no channel name of its own.
var standardChannelOrder = []string{"Va", "Vb", "Vc", "Ia", "Ib", "Ic"}

// channelIndex resolves a channel name to its position in
// standardChannelOrder.
func channelIndex(name string) (int, bool) {
	for i, n := range standardChannelOrder {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// registrySet is a publisher registry plus the config-name-to-stream-id
// lookup needed to drive it from sequence/test config, which refers to
// streams by their configured name, not their runtime UUID.
type registrySet struct {
	registry   *publisher.Registry
	streamID   map[string]string // publisher config name -> registry id
	sampleRate uint32
}

// setupRegistry creates and seeds one publisher stream per entry in
// selected, wired to sender, returning the registry and a name lookup.
func setupRegistry(selected []config.PublisherConfig, sender publisher.FrameSender) (*registrySet, error) {
	registry := publisher.NewRegistry()
	set := &registrySet{registry: registry, streamID: make(map[string]string, len(selected))}

	for _, pub := range selected {
		pubCfg, channels, err := pub.ToPublisherConfig()
		if err != nil {
			return nil, fmt.Errorf("publisher %s: %w", pub.Name, err)
		}
		id, err := registry.Create(pubCfg, sender)
		if err != nil {
			return nil, fmt.Errorf("create publisher %s: %w", pub.Name, err)
		}
		phasors := make([]synth.Phasor, len(channels))
		for i, ch := range channels {
			phasors[i] = ch.Fundamental
		}
		if err := registry.UpdatePhasors(id, phasors); err != nil {
			return nil, fmt.Errorf("seed phasors for %s: %w", pub.Name, err)
		}
		for i, ch := range channels {
			if len(ch.Harmonics) > 0 {
				_ = registry.UpdateHarmonics(id, i, ch.Harmonics)
			}
		}
		set.streamID[pub.Name] = id
		if pub.SampleRate > set.sampleRate {
			set.sampleRate = pub.SampleRate
		}
	}
	return set, nil
}

// startTickLoop drives registry ticks at set's sample rate in a background
// goroutine until ctx is cancelled or the returned stop func is called.
// Callers that want the tick loop torn down before ctx expires (every test
// driver, which has already finished its run by then) should defer stop().
func startTickLoop(ctx context.Context, set *registrySet) (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	rate := set.sampleRate
	if rate == 0 {
		rate = 4800
	}
	go func() {
		defer close(stopped)
		scheduler := timing.NewScheduler(time.Second / time.Duration(rate))
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			default:
			}
			scheduler.Next()
			set.registry.TickAll()
		}
	}()
	var alreadyStopped bool
	return func() {
		if alreadyStopped {
			return
		}
		alreadyStopped = true
		close(done)
		<-stopped
	}
}

// applyStreamPhasorState pushes a sequence/test phasor state to a registry
// stream, resolving each named channel against standardChannelOrder.
func applyStreamPhasorState(registry *publisher.Registry, id string, freqChannels map[string]synth.Phasor, logger *logging.Logger) {
	phasors, err := registry.Phasors(id)
	if err != nil {
		return
	}
	for name, ph := range freqChannels {
		idx, ok := channelIndex(name)
		if !ok || idx >= len(phasors) {
			if logger != nil {
				logger.Verbose("unknown channel name %q, skipping", name)
			}
			continue
		}
		phasors[idx] = ph
	}
	if err := registry.UpdatePhasors(id, phasors); err != nil && logger != nil {
		logger.Verbose("update phasors for stream %s: %v", id, err)
	}
}

func logLevelFor(verbose, debug bool) logging.LogLevel {
	switch {
	case debug:
		return logging.LogLevelDebug
	case verbose:
		return logging.LogLevelVerbose
	default:
		return logging.LogLevelInfo
	}
}

func parseLogLevel(s string) logging.LogLevel {
	switch s {
	case "silent":
		return logging.LogLevelSilent
	case "error":
		return logging.LogLevelError
	case "verbose":
		return logging.LogLevelVerbose
	case "debug":
		return logging.LogLevelDebug
	default:
		return logging.LogLevelInfo
	}
}

func loadConfig(path string, quickStart bool) (*config.Config, error) {
	cfg, err := config.Load(path, quickStart)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// discardSender drops every frame, used when --no-net or cfg.NoNet is set.
type discardSender struct{}

func (discardSender) Send(frame []byte) error { return nil }

// bindSender opens a netio.Port unless noNet is set, in which case it
// returns a discardSender and a nil Port (nothing to close).
func bindSender(iface string, noNet bool) (publisher.FrameSender, *netio.Port, error) {
	if noNet {
		return discardSender{}, nil, nil
	}
	port, err := netio.Bind(iface)
	if err != nil {
		return nil, nil, err
	}
	return port, port, nil
}

// findPublisher returns the loaded publisher config with the given name.
func findPublisher(cfg *config.Config, name string) (config.PublisherConfig, bool) {
	for _, p := range cfg.Publishers {
		if p.Name == name {
			return p, true
		}
	}
	return config.PublisherConfig{}, false
}
