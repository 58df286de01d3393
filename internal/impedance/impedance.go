// Package impedance converts a fault type and impedance into three-phase
// voltage and current phasors via symmetrical components. Grounded on the
// core's impedance calculator.
package impedance

import (
	"fmt"
	"math/cmplx"
	"strings"

	"github.com/tturner/vts/internal/vtserrors"
)

// alpha is the symmetrical-components rotation operator, 1∠120°.
var alpha = complex(-0.5, 0.866025403784439)

// alpha2 is alpha squared, 1∠240°.
var alpha2 = complex(-0.5, -0.866025403784439)

// FaultType names the ten standard transmission fault conditions.
type FaultType int

const (
	FaultAG FaultType = iota
	FaultBG
	FaultCG
	FaultAB
	FaultBC
	FaultCA
	FaultABG
	FaultBCG
	FaultCAG
	Fault3Ph
)

// ParseFaultType accepts case-insensitive fault type names ("AG", "ab",
// "3ph", ...).
func ParseFaultType(s string) (FaultType, error) {
	switch strings.ToUpper(s) {
	case "AG":
		return FaultAG, nil
	case "BG":
		return FaultBG, nil
	case "CG":
		return FaultCG, nil
	case "AB":
		return FaultAB, nil
	case "BC":
		return FaultBC, nil
	case "CA":
		return FaultCA, nil
	case "ABG":
		return FaultABG, nil
	case "BCG":
		return FaultBCG, nil
	case "CAG":
		return FaultCAG, nil
	case "ABC", "3PH":
		return Fault3Ph, nil
	default:
		return 0, fmt.Errorf("unknown fault type %q: %w", s, vtserrors.ErrConfigInvalid)
	}
}

// String renders the canonical fault type name.
func (f FaultType) String() string {
	switch f {
	case FaultAG:
		return "AG"
	case FaultBG:
		return "BG"
	case FaultCG:
		return "CG"
	case FaultAB:
		return "AB"
	case FaultBC:
		return "BC"
	case FaultCA:
		return "CA"
	case FaultABG:
		return "ABG"
	case FaultBCG:
		return "BCG"
	case FaultCAG:
		return "CAG"
	case Fault3Ph:
		return "ABC"
	default:
		return "UNKNOWN"
	}
}

// SourceImpedance is the sequence-network model of the source behind the
// fault point, in ohms, plus the pre-fault positive-sequence voltage.
type SourceImpedance struct {
	RS1, XS1  float64
	RS0, XS0  float64
	Vprefault float64
}

// FaultImpedance is the fault-point resistance and reactance, in ohms.
type FaultImpedance struct {
	R, X float64
}

// ThreePhasePhasor holds one complex value per phase, A/B/C.
type ThreePhasePhasor struct {
	A, B, C complex128
}

// PhasorState is a complete three-phase voltage and current phasor set.
type PhasorState struct {
	Voltage ThreePhasePhasor
	Current ThreePhasePhasor
}

// abcToSequence transforms phase quantities to 0/1/2 sequence components.
func abcToSequence(abc ThreePhasePhasor) ThreePhasePhasor {
	return ThreePhasePhasor{
		A: (abc.A + abc.B + abc.C) / 3,
		B: (abc.A + alpha*abc.B + alpha2*abc.C) / 3,
		C: (abc.A + alpha2*abc.B + alpha*abc.C) / 3,
	}
}

// sequenceToAbc transforms 0/1/2 sequence components back to phase quantities.
func sequenceToAbc(seq ThreePhasePhasor) ThreePhasePhasor {
	return ThreePhasePhasor{
		A: seq.A + seq.B + seq.C,
		B: seq.A + alpha2*seq.B + alpha*seq.C,
		C: seq.A + alpha*seq.B + alpha2*seq.C,
	}
}

// rotate reassigns ABC onto the phases actually faulted, mirroring the
// calculator's single-phase-A-reference math rotated onto B or C.
func rotate(p ThreePhasePhasor, faultedPhase byte) ThreePhasePhasor {
	switch faultedPhase {
	case 'B':
		return ThreePhasePhasor{A: p.C, B: p.A, C: p.B}
	case 'C':
		return ThreePhasePhasor{A: p.B, B: p.C, C: p.A}
	default:
		return p
	}
}

func calculateSLG(phase byte, faultZ FaultImpedance, source SourceImpedance) PhasorState {
	zs1 := complex(source.RS1, source.XS1)
	zs0 := complex(source.RS0, source.XS0)
	zs2 := zs1
	zf := complex(faultZ.R, faultZ.X)
	vPrefault := complex(source.Vprefault, 0)

	zeq := zs1 + zs2 + zs0 + 3*zf
	i1 := vPrefault / zeq
	i2 := i1
	i0 := i1

	iabc := sequenceToAbc(ThreePhasePhasor{A: i0, B: i1, C: i2})
	vabc := sequenceToAbc(ThreePhasePhasor{
		A: -zs0 * i0,
		B: vPrefault - zs1*i1,
		C: -zs2 * i2,
	})

	return PhasorState{
		Current: rotate(iabc, phase),
		Voltage: rotate(vabc, phase),
	}
}

func calculateLL(phase1, phase2 byte, faultZ FaultImpedance, source SourceImpedance) PhasorState {
	zs1 := complex(source.RS1, source.XS1)
	zs2 := zs1
	zf := complex(faultZ.R, faultZ.X)
	vPrefault := complex(source.Vprefault, 0)

	zeq := zs1 + zs2 + zf
	i1 := vPrefault / zeq
	i2 := -i1

	iabc := sequenceToAbc(ThreePhasePhasor{A: 0, B: i1, C: i2})
	vabc := sequenceToAbc(ThreePhasePhasor{
		A: 0,
		B: vPrefault - zs1*i1,
		C: -zs2 * i2,
	})

	return PhasorState{
		Current: rotateLL(iabc, phase1, phase2),
		Voltage: rotateLL(vabc, phase1, phase2),
	}
}

// rotateLL maps the BC-reference phasor set onto the requested pair, the
// same rotation DLG uses for its B/C-referenced result.
func rotateLL(p ThreePhasePhasor, phase1, phase2 byte) ThreePhasePhasor {
	switch {
	case isPair(phase1, phase2, 'B', 'C'):
		return p
	case isPair(phase1, phase2, 'C', 'A'):
		return ThreePhasePhasor{A: p.C, B: p.A, C: p.B}
	default: // A/B
		return ThreePhasePhasor{A: p.B, B: p.C, C: p.A}
	}
}

func isPair(phase1, phase2, want1, want2 byte) bool {
	return (phase1 == want1 && phase2 == want2) || (phase1 == want2 && phase2 == want1)
}

func calculateDLG(phase1, phase2 byte, faultZ FaultImpedance, source SourceImpedance) PhasorState {
	zs1 := complex(source.RS1, source.XS1)
	zs2 := zs1
	zs0 := complex(source.RS0, source.XS0)
	zf := complex(faultZ.R, faultZ.X)
	vPrefault := complex(source.Vprefault, 0)

	z0Branch := zs0 + 3*zf
	zParallel := (zs2 * z0Branch) / (zs2 + z0Branch)
	zeq := zs1 + zParallel

	i1 := vPrefault / zeq
	v1 := vPrefault - zs1*i1
	i2 := -v1 / zs2
	i0 := -v1 / z0Branch

	iabc := sequenceToAbc(ThreePhasePhasor{A: i0, B: i1, C: i2})
	vabc := sequenceToAbc(ThreePhasePhasor{
		A: -zs0 * i0,
		B: v1,
		C: -zs2 * i2,
	})

	return PhasorState{
		Current: rotateLL(iabc, phase1, phase2),
		Voltage: rotateLL(vabc, phase1, phase2),
	}
}

func calculate3Ph(faultZ FaultImpedance, source SourceImpedance) PhasorState {
	zs1 := complex(source.RS1, source.XS1)
	zf := complex(faultZ.R, faultZ.X)
	vPrefault := complex(source.Vprefault, 0)

	zeq := zs1 + zf
	i1 := vPrefault / zeq

	return PhasorState{
		Current: sequenceToAbc(ThreePhasePhasor{A: 0, B: i1, C: 0}),
		Voltage: sequenceToAbc(ThreePhasePhasor{A: 0, B: vPrefault - zs1*i1, C: 0}),
	}
}

// CalculateFault dispatches to the sequence-network solution for faultType.
func CalculateFault(faultType FaultType, faultZ FaultImpedance, source SourceImpedance) (PhasorState, error) {
	switch faultType {
	case FaultAG:
		return calculateSLG('A', faultZ, source), nil
	case FaultBG:
		return calculateSLG('B', faultZ, source), nil
	case FaultCG:
		return calculateSLG('C', faultZ, source), nil
	case FaultAB:
		return calculateLL('A', 'B', faultZ, source), nil
	case FaultBC:
		return calculateLL('B', 'C', faultZ, source), nil
	case FaultCA:
		return calculateLL('C', 'A', faultZ, source), nil
	case FaultABG:
		return calculateDLG('A', 'B', faultZ, source), nil
	case FaultBCG:
		return calculateDLG('B', 'C', faultZ, source), nil
	case FaultCAG:
		return calculateDLG('C', 'A', faultZ, source), nil
	case Fault3Ph:
		return calculate3Ph(faultZ, source), nil
	default:
		return PhasorState{}, fmt.Errorf("unknown fault type %d: %w", faultType, vtserrors.ErrConfigInvalid)
	}
}

// Magnitude is a convenience wrapper around cmplx.Abs for callers that only
// need RMS/peak magnitude, not the full phasor.
func Magnitude(c complex128) float64 { return cmplx.Abs(c) }
