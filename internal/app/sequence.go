package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tturner/vts/internal/broadcast"
	"github.com/tturner/vts/internal/config"
	"github.com/tturner/vts/internal/logging"
	"github.com/tturner/vts/internal/sequence"
)

// SequenceOptions configures a run of the sequence run subcommand.
type SequenceOptions struct {
	ConfigPath string
	QuickStart bool
	Verbose    bool
	Debug      bool
	NoNet      bool
	Name       string
	Bus        *broadcast.Bus // sequence.state events are published here; may be nil
}

func findSequence(cfg *config.Config, name string) (config.SequenceConfig, bool) {
	for _, s := range cfg.Sequences {
		if s.Name == name {
			return s, true
		}
	}
	return config.SequenceConfig{}, false
}

// RunSequence runs the named multi-state sequence against its active
// streams until it completes, stops or fails, or ctx is cancelled. A GOOSE
// trip advances a goose_trip state; it does not end the run by itself.
func RunSequence(ctx context.Context, opts SequenceOptions) error {
	logger, err := logging.NewLogger(logLevelFor(opts.Verbose, opts.Debug), "")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Close()

	cfg, err := loadConfig(opts.ConfigPath, opts.QuickStart)
	if err != nil {
		return err
	}

	seqCfg, ok := findSequence(cfg, opts.Name)
	if !ok {
		return fmt.Errorf("sequence %q not found", opts.Name)
	}
	seq := seqCfg.ToSequence()

	var selected []config.PublisherConfig
	for _, name := range seq.ActiveStreams {
		pub, ok := findPublisher(cfg, name)
		if !ok {
			return fmt.Errorf("sequence %q: active stream %q not found among publishers", opts.Name, name)
		}
		selected = append(selected, pub)
	}

	sender, port, err := bindSender(cfg.Interface, opts.NoNet || cfg.NoNet)
	if err != nil {
		return fmt.Errorf("bind interface %s: %w", cfg.Interface, err)
	}
	if port != nil {
		defer port.Close()
	}

	set, err := setupRegistry(selected, sender)
	if err != nil {
		return err
	}
	set.registry.StartAll()
	defer set.registry.StopAll()

	stopTicks := startTickLoop(ctx, set)
	defer stopTicks()

	engine := sequence.NewEngine(logger)
	engine.SetPhasorUpdateCallback(func(streamID string, state sequence.StreamPhasorState) {
		id, ok := set.streamID[streamID]
		if !ok {
			logger.Verbose("sequence state references unknown stream %q", streamID)
			return
		}
		applyStreamPhasorState(set.registry, id, state.Channels, logger)
	})
	engine.SetProgressCallback(func(p sequence.Progress) {
		logger.Info("sequence %s: state %d/%d (%s) - %s", opts.Name, p.CurrentState+1, p.TotalStates, p.StateName, p.Message)
		if opts.Bus != nil {
			opts.Bus.Publish(broadcast.TopicSequenceState, p)
		}
	})

	if err := engine.Start(seq); err != nil {
		return fmt.Errorf("start sequence: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			engine.Stop()
			return nil
		default:
		}
		switch engine.Status() {
		case sequence.StatusCompleted:
			fmt.Printf("sequence %s completed\n", opts.Name)
			return nil
		case sequence.StatusStopped:
			fmt.Printf("sequence %s stopped\n", opts.Name)
			return nil
		case sequence.StatusError:
			return fmt.Errorf("sequence %s failed: %s", opts.Name, engine.LastError())
		}
		time.Sleep(50 * time.Millisecond)
	}
}
