package config

import (
	"fmt"
	"time"

	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/impedance"
	"github.com/tturner/vts/internal/publisher"
	"github.com/tturner/vts/internal/sequence"
	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/testers"
)

// ToSynthPhasor converts a loaded phasor config to the radian-angle form
// internal/synth expects.
func (p PhasorConfig) ToSynthPhasor() synth.Phasor {
	return synth.Phasor{
		Magnitude: p.MagnitudeRMS,
		AngleRad:  p.AngleDeg * (3.141592653589793 / 180.0),
	}
}

// ToSynthChannel converts a loaded phasor config, including harmonics, to a
// full internal/synth.Channel.
func (p PhasorConfig) ToSynthChannel() synth.Channel {
	harmonics := make([]synth.Harmonic, len(p.Harmonics))
	for i, h := range p.Harmonics {
		harmonics[i] = synth.Harmonic{
			Order:     h.Order,
			Magnitude: h.MagnitudeRMS,
			AngleRad:  h.AngleDeg * (3.141592653589793 / 180.0),
		}
	}
	return synth.Channel{Fundamental: p.ToSynthPhasor(), Harmonics: harmonics}
}

// ToPublisherConfig converts one loaded publisher entry to the SV wire
// configuration and synthesis clock internal/publisher expects, plus the
// initial per-channel synthesis state.
func (p PublisherConfig) ToPublisherConfig() (publisher.Config, []synth.Channel, error) {
	macDst, err := iec61850.ParseMac(p.MacDst)
	if err != nil {
		return publisher.Config{}, nil, fmt.Errorf("mac_dst: %w", err)
	}
	macSrc, err := iec61850.ParseMac(p.MacSrc)
	if err != nil {
		return publisher.Config{}, nil, fmt.Errorf("mac_src: %w", err)
	}
	vlan := iec61850.VLAN{ID: p.VlanID, Prio: p.VlanPriority}

	svCfg := iec61850.SVConfig{
		AppID:        p.AppID,
		MacDst:       macDst,
		MacSrc:       macSrc,
		VLAN:         vlan,
		SvID:         p.SvID,
		DatSet:       p.DatSet,
		ConfRev:      p.ConfRev,
		SmpRate:      uint16(p.SampleRate),
		ChannelCount: len(p.Channels),
		NumASDU:      p.NumASDU,
	}

	channels := make([]synth.Channel, len(p.Channels))
	for i, ch := range p.Channels {
		channels[i] = ch.ToSynthChannel()
	}

	return publisher.Config{
		SV:          svCfg,
		NominalFreq: p.NominalFreq,
		SampleRate:  p.SampleRate,
	}, channels, nil
}

// ToStreamPhasorState converts one sequence state's per-stream phasor
// config to the map form internal/sequence expects.
func (sp StreamPhasorsConfig) ToStreamPhasorState() sequence.StreamPhasorState {
	channels := make(map[string]synth.Phasor, len(sp.Channels))
	for name, ph := range sp.Channels {
		channels[name] = ph.ToSynthPhasor()
	}
	return sequence.StreamPhasorState{FreqHz: sp.FreqHz, Channels: channels}
}

// ToSequence converts a loaded sequence to the form internal/sequence.Engine
// runs.
func (s SequenceConfig) ToSequence() sequence.Sequence {
	states := make([]sequence.State, len(s.States))
	for i, st := range s.States {
		transition := sequence.TransitionTime
		if st.Transition == "goose_trip" {
			transition = sequence.TransitionGooseTrip
		}
		phasors := make(map[string]sequence.StreamPhasorState, len(st.StreamPhasors))
		for streamID, sp := range st.StreamPhasors {
			phasors[streamID] = sp.ToStreamPhasorState()
		}
		states[i] = sequence.State{
			Name:       st.Name,
			Duration:   time.Duration(st.DurationMs) * time.Millisecond,
			Transition: transition,
			Phasors:    phasors,
		}
	}
	return sequence.Sequence{ActiveStreams: s.ActiveStreams, States: states}
}

// ToRampConfig converts a loaded ramp test to the form internal/testers.RampingTester runs.
func (r RampTestConfig) ToRampConfig() (testers.RampConfig, error) {
	variable, err := testers.ParseRampVariable(r.Variable)
	if err != nil {
		return testers.RampConfig{}, err
	}
	return testers.RampConfig{
		Variable:     variable,
		StartValue:   r.StartValue,
		EndValue:     r.EndValue,
		StepSize:     r.StepSize,
		StepDuration: time.Duration(r.StepDurationMs) * time.Millisecond,
		MonitorTrip:  r.MonitorTrip,
		StreamID:     r.StreamID,
	}, nil
}

// ToDistanceTestConfig converts a loaded distance test to the form
// internal/testers.DistanceTester runs.
func (d DistanceTestConfig) ToDistanceTestConfig() (testers.DistanceTestConfig, error) {
	points := make([]testers.DistancePoint, len(d.Points))
	for i, pt := range d.Points {
		faultType, err := impedance.ParseFaultType(pt.FaultType)
		if err != nil {
			return testers.DistanceTestConfig{}, fmt.Errorf("points[%d]: %w", i, err)
		}
		points[i] = testers.DistancePoint{
			R:            pt.R,
			X:            pt.X,
			FaultType:    faultType,
			ExpectedTime: time.Duration(pt.ExpectedTimeMs) * time.Millisecond,
			Label:        pt.Label,
		}
	}
	return testers.DistanceTestConfig{
		Points: points,
		Source: impedance.SourceImpedance{
			RS1:       d.SourceRS1,
			XS1:       d.SourceXS1,
			RS0:       d.SourceRS0,
			XS0:       d.SourceXS0,
			Vprefault: d.SourceVprefault,
		},
		PrefaultDuration:   time.Duration(d.PrefaultDurationMs) * time.Millisecond,
		FaultDuration:      time.Duration(d.FaultDurationMs) * time.Millisecond,
		TimeTolerance:      time.Duration(d.TimeToleranceMs) * time.Millisecond,
		StopOnFirstFailure: d.StopOnFirstFailure,
		StreamID:           d.StreamID,
	}, nil
}

// ToOCTestConfig converts a loaded overcurrent test to the form
// internal/testers.OvercurrentTester runs.
func (o OvercurrentTestConfig) ToOCTestConfig() (testers.OCTestConfig, error) {
	curve, err := testers.ParseOCCurve(o.Curve)
	if err != nil {
		return testers.OCTestConfig{}, err
	}
	points := make([]testers.OCPoint, len(o.Points))
	for i, pt := range o.Points {
		points[i] = testers.OCPoint{
			CurrentMultiple: pt.CurrentMultiple,
			ExpectedTime:    time.Duration(pt.ExpectedTimeMs) * time.Millisecond,
			Label:           pt.Label,
		}
	}
	return testers.OCTestConfig{
		Settings: testers.OCSettings{
			PickupCurrent: o.PickupCurrent,
			TMS:           o.TMS,
			Curve:         curve,
		},
		Points:               points,
		TimeTolerance:        time.Duration(o.TimeToleranceMs) * time.Millisecond,
		TimeTolerancePercent: o.TimeTolerancePercent,
		ToleranceIsPercent:   o.ToleranceIsPercent,
		MaxTestDuration:      time.Duration(o.MaxTestDurationMs) * time.Millisecond,
		StopOnFirstFailure:   o.StopOnFirstFailure,
		StreamID:             o.StreamID,
	}, nil
}

// ToDifferentialTestConfig converts a loaded differential test to the form
// internal/testers.DifferentialTester runs.
func (d DifferentialTestConfig) ToDifferentialTestConfig() testers.DifferentialTestConfig {
	points := make([]testers.DifferentialPoint, len(d.Points))
	for i, pt := range d.Points {
		points[i] = testers.DifferentialPoint{
			Ir:           pt.Ir,
			Id:           pt.Id,
			ExpectedTime: time.Duration(pt.ExpectedTimeMs) * time.Millisecond,
			Label:        pt.Label,
		}
	}
	return testers.DifferentialTestConfig{
		Points:             points,
		TimeTolerance:      time.Duration(d.TimeToleranceMs) * time.Millisecond,
		MaxTestDuration:    time.Duration(d.MaxTestDurationMs) * time.Millisecond,
		StopOnFirstFailure: d.StopOnFirstFailure,
		Stream1ID:          d.Stream1ID,
		Stream2ID:          d.Stream2ID,
	}
}
