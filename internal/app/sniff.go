package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tturner/vts/internal/analyzer"
	"github.com/tturner/vts/internal/broadcast"
	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/metrics"
	"github.com/tturner/vts/internal/netio"
	"github.com/tturner/vts/internal/sniffer"
	"github.com/tturner/vts/internal/triprule"
	"github.com/tturner/vts/internal/tripsignal"
)

// SniffOptions configures a run of the sniff subcommand.
type SniffOptions struct {
	ConfigPath string
	QuickStart bool
	Verbose    bool
	Debug      bool
	Bus        *broadcast.Bus // events are published here; may be nil
	Sink       *metrics.Sink  // trip latency/frame counters; may be nil
	// AnalyzeStream, if set, names a configured publisher whose SV stream
	// is additionally run through a live analyzer.Engine (one-cycle DFT
	// and 60 Hz waveform snapshots), published on the bus's
	// analysis.frame and analysis.waveform topics.
	AnalyzeStream string
	// PcapOut, if set, records every frame the sniffer observes to this
	// pcap file for offline inspection.
	PcapOut string
}

// capturingSource wraps a FrameSource, recording every frame it yields to a
// FileSink before handing it back to the caller.
type capturingSource struct {
	sniffer.FrameSource
	sink *netio.FileSink
}

func (c capturingSource) Recv() ([]byte, error) {
	frame, err := c.FrameSource.Recv()
	if err == nil && frame != nil {
		_ = c.sink.Write(frame, time.Now())
	}
	return frame, err
}

// RunSniff builds a trip rule evaluator from the configured rules and GOOSE
// subscriptions, binds the interface, and dispatches frames until ctx is
// cancelled.
func RunSniff(ctx context.Context, opts SniffOptions) error {
	logger, err := logging.NewLogger(logLevelFor(opts.Verbose, opts.Debug), "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	cfg, err := loadConfig(opts.ConfigPath, opts.QuickStart)
	if err != nil {
		return err
	}

	evaluator := triprule.NewEvaluator()
	for _, rule := range cfg.Rules {
		if err := evaluator.AddRule(rule.Name, rule.Expression); err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if err := evaluator.SetEnabled(rule.Name, rule.Enabled); err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
	}

	sCfg := sniffer.Config{}
	for _, pub := range cfg.Publishers {
		mac, err := iec61850.ParseMac(pub.MacSrc)
		if err != nil {
			return fmt.Errorf("publisher %s mac_src: %w", pub.Name, err)
		}
		sCfg.SVSources = append(sCfg.SVSources, mac)
	}
	for _, sub := range cfg.GooseSubscriptions {
		mac, err := iec61850.ParseMac(sub.MacSrc)
		if err != nil {
			return fmt.Errorf("goose subscription %s mac_src: %w", sub.Name, err)
		}
		sCfg.Goose = append(sCfg.Goose, sniffer.GooseRegistration{MacSrc: mac, GoCbRef: sub.GoCbRef})
	}

	port, err := netio.Bind(cfg.Interface)
	if err != nil {
		return fmt.Errorf("bind interface %s: %w", cfg.Interface, err)
	}
	defer port.Close()

	var source sniffer.FrameSource = port
	if opts.PcapOut != "" {
		fileSink, err := netio.NewFileSink(opts.PcapOut)
		if err != nil {
			return fmt.Errorf("open pcap capture %s: %w", opts.PcapOut, err)
		}
		defer fileSink.Close()
		source = capturingSource{FrameSource: port, sink: fileSink}
		logger.Info("recording captured frames to %s", opts.PcapOut)
	}

	var analyzerSink sniffer.AnalyzerSink
	if opts.AnalyzeStream != "" {
		pub, ok := findPublisher(cfg, opts.AnalyzeStream)
		if !ok {
			return fmt.Errorf("analyze stream %q not found among publishers", opts.AnalyzeStream)
		}
		mac, err := iec61850.ParseMac(pub.MacSrc)
		if err != nil {
			return fmt.Errorf("analyze stream %q mac_src: %w", opts.AnalyzeStream, err)
		}
		eng := analyzer.NewEngine(logger)
		eng.SetAnalysisCallback(func(frame analyzer.AnalysisFrame) {
			if opts.Bus != nil {
				opts.Bus.Publish(broadcast.TopicAnalysisFrame, frame)
			}
		})
		eng.SetWaveformCallback(func(wf []analyzer.WaveformData) {
			if opts.Bus != nil {
				opts.Bus.Publish(broadcast.TopicWaveform, wf)
			}
		})
		if err := eng.Start(mac.String(), int(pub.SampleRate)); err != nil {
			return fmt.Errorf("start analyzer for %q: %w", opts.AnalyzeStream, err)
		}
		defer eng.Stop()
		analyzerSink = eng
		logger.Info("analyzing stream %s (%s, %d Hz)", opts.AnalyzeStream, mac.String(), pub.SampleRate)
	}

	snf := sniffer.New(sCfg, source, evaluator, analyzerSink, logger)
	snf.OnTrip(func(result triprule.Result) {
		tripsignal.Global.Set()
		if opts.Sink != nil {
			opts.Sink.RecordTrip(metrics.TripLatencySample{
				TestName:   result.RuleName,
				PointLabel: result.Message,
				Passed:     true,
			})
		}
		if opts.Bus != nil {
			opts.Bus.Publish(broadcast.TopicTrip, result)
		}
	})

	if err := snf.Start(); err != nil {
		return fmt.Errorf("start sniffer: %w", err)
	}
	logger.Info("sniffing on %s (%d rule(s), %d goose subscription(s))", cfg.Interface, len(cfg.Rules), len(sCfg.Goose))

	<-ctx.Done()
	stopErr := snf.Stop()
	if opts.Sink != nil {
		opts.Sink.AddParseError(snf.ParseErrors())
	}
	logger.Info("sniffer stopped: %d parse error(s)", snf.ParseErrors())
	return stopErr
}
