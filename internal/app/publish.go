package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/metrics"
	"github.com/tturner/vts/internal/publisher"
	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/timing"
)

// PublishOptions configures a run of the publish subcommand.
type PublishOptions struct {
	ConfigPath string
	QuickStart bool
	Verbose    bool
	Debug      bool
	NoNet      bool
	// StreamNames limits the run to these publishers; empty means all.
	StreamNames []string
}

// countingSender wraps a publisher.FrameSender to tally sent frames.
type countingSender struct {
	inner publisher.FrameSender
	sink  *metrics.Sink
}

func (c countingSender) Send(frame []byte) error {
	err := c.inner.Send(frame)
	if err == nil {
		c.sink.AddSVSent(1)
	} else {
		c.sink.AddSVDropped(1)
	}
	return err
}

// RunPublish loads the configured SV publishers and ticks them at their
// sample rate until ctx is cancelled. All selected publishers must share a
// sample rate, since one internal/timing.Scheduler drives the shared tick.
func RunPublish(ctx context.Context, opts PublishOptions) error {
	logger, err := logging.NewLogger(logLevelFor(opts.Verbose, opts.Debug), "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	cfg, err := loadConfig(opts.ConfigPath, opts.QuickStart)
	if err != nil {
		return err
	}

	noNet := opts.NoNet || cfg.NoNet
	sender, port, err := bindSender(cfg.Interface, noNet)
	if err != nil {
		return fmt.Errorf("bind interface %s: %w", cfg.Interface, err)
	}
	if port != nil {
		defer port.Close()
	}

	sink := metrics.NewSink()
	countedSender := countingSender{inner: sender, sink: sink}

	selected := cfg.Publishers
	if len(opts.StreamNames) > 0 {
		selected = nil
		for _, name := range opts.StreamNames {
			pub, ok := findPublisher(cfg, name)
			if !ok {
				return fmt.Errorf("publisher %q not found in %s", name, opts.ConfigPath)
			}
			selected = append(selected, pub)
		}
	}
	if len(selected) == 0 {
		return fmt.Errorf("no publishers configured")
	}

	registry := publisher.NewRegistry()
	var sampleRate uint32
	for _, pub := range selected {
		pubCfg, channels, err := pub.ToPublisherConfig()
		if err != nil {
			return fmt.Errorf("publisher %s: %w", pub.Name, err)
		}
		id, err := registry.Create(pubCfg, countedSender)
		if err != nil {
			return fmt.Errorf("create publisher %s: %w", pub.Name, err)
		}
		phasors := make([]synth.Phasor, len(channels))
		for i, ch := range channels {
			phasors[i] = ch.Fundamental
		}
		if err := registry.UpdatePhasors(id, phasors); err != nil {
			return fmt.Errorf("seed phasors for %s: %w", pub.Name, err)
		}
		for i, ch := range channels {
			if len(ch.Harmonics) > 0 {
				_ = registry.UpdateHarmonics(id, i, ch.Harmonics)
			}
		}
		logger.Info("publisher %s ready (id=%s, sv_id=%s)", pub.Name, id, pub.SvID)
		if pub.SampleRate > sampleRate {
			sampleRate = pub.SampleRate
		}
	}
	registry.StartAll()
	logger.Info("publishing %d stream(s) on %s", len(selected), cfg.Interface)

	scheduler := timing.NewScheduler(time.Second / time.Duration(sampleRate))
	for {
		select {
		case <-ctx.Done():
			registry.StopAll()
			printPublishSummary(sink)
			return nil
		default:
		}
		scheduler.Next()
		if errs := registry.TickAll(); len(errs) > 0 && opts.Debug {
			for _, e := range errs {
				logger.Debug("tick error: %v", e)
			}
		}
	}
}

func printPublishSummary(sink *metrics.Sink) {
	frames := sink.FrameCounters()
	fmt.Fprintf(os.Stdout, "frames sent: %d, dropped: %d\n", frames.SVFramesSent, frames.SVFramesDropped)
}
