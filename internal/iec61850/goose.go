package iec61850

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/vts/internal/ber"
	"github.com/tturner/vts/internal/vtserrors"
)

// GooseConfig is the immutable descriptor of one GOOSE publication.
type GooseConfig struct {
	AppID              uint16
	MacDst             Mac
	MacSrc             Mac
	VLAN               *VLAN
	GoCbRef            string
	TimeAllowedToLive  uint32
	DatSet             string
	GoID               string // optional, empty to omit
	StNum              uint32
	SqNum              uint32
	Simulation         bool
	ConfRev            uint32
	NdsCom             bool
}

// EncodeGoose renders a complete GOOSE frame with the given allData leaves.
func EncodeGoose(cfg GooseConfig, t UtcTime, allData []Data) ([]byte, error) {
	var body []byte
	var err error

	body, _, err = ber.AppendTLV(body, 0x80, []byte(cfg.GoCbRef))
	if err != nil {
		return nil, err
	}

	ttl := make([]byte, 4)
	binary.BigEndian.PutUint32(ttl, cfg.TimeAllowedToLive)
	body, _, err = ber.AppendTLV(body, 0x81, ttl)
	if err != nil {
		return nil, err
	}

	body, _, err = ber.AppendTLV(body, 0x82, []byte(cfg.DatSet))
	if err != nil {
		return nil, err
	}

	if cfg.GoID != "" {
		body, _, err = ber.AppendTLV(body, 0x83, []byte(cfg.GoID))
		if err != nil {
			return nil, err
		}
	}

	body, _, err = ber.AppendTLV(body, 0x84, t.Encode())
	if err != nil {
		return nil, err
	}

	stNum := make([]byte, 4)
	binary.BigEndian.PutUint32(stNum, cfg.StNum)
	body, _, err = ber.AppendTLV(body, 0x85, stNum)
	if err != nil {
		return nil, err
	}

	sqNum := make([]byte, 4)
	binary.BigEndian.PutUint32(sqNum, cfg.SqNum)
	body, _, err = ber.AppendTLV(body, 0x86, sqNum)
	if err != nil {
		return nil, err
	}

	simByte := byte(0x00)
	if cfg.Simulation {
		simByte = 0xFF
	}
	body, _, err = ber.AppendTLV(body, 0x87, []byte{simByte})
	if err != nil {
		return nil, err
	}

	confRev := make([]byte, 4)
	binary.BigEndian.PutUint32(confRev, cfg.ConfRev)
	body, _, err = ber.AppendTLV(body, 0x88, confRev)
	if err != nil {
		return nil, err
	}

	ndsByte := byte(0x00)
	if cfg.NdsCom {
		ndsByte = 0xFF
	}
	body, _, err = ber.AppendTLV(body, 0x89, []byte{ndsByte})
	if err != nil {
		return nil, err
	}

	if len(allData) > 0x7FFFFFFF {
		return nil, fmt.Errorf("numDatSetEntries %d exceeds int32 range: %w", len(allData), vtserrors.ErrConfigInvalid)
	}
	numEntries := make([]byte, 4)
	binary.BigEndian.PutUint32(numEntries, uint32(len(allData)))
	body, _, err = ber.AppendTLV(body, 0x8A, numEntries)
	if err != nil {
		return nil, err
	}

	var allDataBody []byte
	for _, d := range allData {
		enc, err := d.Encode()
		if err != nil {
			return nil, err
		}
		allDataBody = append(allDataBody, enc...)
	}
	body, _, err = ber.AppendTLV(body, 0xAB, allDataBody)
	if err != nil {
		return nil, err
	}

	pduBuf, _, err := ber.AppendTLV(nil, 0x61, body)
	if err != nil {
		return nil, err
	}

	eth := EncodeEthernetHeader(cfg.MacDst, cfg.MacSrc, cfg.VLAN, EtherTypeGOOSE)

	length := 8 + len(pduBuf)
	frame := make([]byte, 0, len(eth)+2+2+4+len(pduBuf))
	frame = append(frame, eth...)
	frame = append(frame, byte(cfg.AppID>>8), byte(cfg.AppID))
	frame = append(frame, byte(length>>8), byte(length))
	frame = append(frame, 0, 0, 0, 0)
	frame = append(frame, pduBuf...)
	return frame, nil
}

// DecodedGoose is a fully decoded GOOSE PDU.
type DecodedGoose struct {
	GoCbRef           string
	TimeAllowedToLive uint32
	DatSet            string
	GoID              string
	T                 UtcTime
	StNum             uint32
	SqNum             uint32
	Simulation        bool
	ConfRev           uint32
	NdsCom            bool
	NumDatSetEntries  uint32
	AllData           []Data
}

// BooleanVector returns the flat 1/0 view of AllData the trip rule engine
// consumes: one entry per leaf, in dataset order. Non-boolean leaves are
// represented as 1 when their Int value is non-zero, else 0.
func (g DecodedGoose) BooleanVector() []bool {
	out := make([]bool, len(g.AllData))
	for i, d := range g.AllData {
		switch d.Type {
		case DataBoolean:
			out[i] = d.Bool
		default:
			out[i] = d.Int != 0
		}
	}
	return out
}

// DecodeGoose decodes the PDU starting at the 0x61 tag in frame[offset:].
// Every nested TLV read is bounds-checked against the declared frame length,
// per the rule: offset + 2 + declared_length <= frame_len.
func DecodeGoose(frame []byte, offset int) (DecodedGoose, error) {
	tlv, _, err := ber.ReadTLV(frame, offset)
	if err != nil {
		return DecodedGoose{}, err
	}
	if tlv.Tag != 0x61 {
		return DecodedGoose{}, fmt.Errorf("expected GOOSE PDU tag 0x61, got 0x%02X: %w", tlv.Tag, vtserrors.ErrParseTag)
	}

	var out DecodedGoose
	pos := tlv.ValueStart
	end := tlv.ValueEnd

	for pos < end {
		field, next, err := ber.ReadTLV(frame, pos)
		if err != nil {
			return DecodedGoose{}, err
		}
		switch field.Tag {
		case 0x80:
			out.GoCbRef = string(frame[field.ValueStart:field.ValueEnd])
		case 0x81:
			out.TimeAllowedToLive = be32(frame, field)
		case 0x82:
			out.DatSet = string(frame[field.ValueStart:field.ValueEnd])
		case 0x83:
			out.GoID = string(frame[field.ValueStart:field.ValueEnd])
		case 0x84:
			ut, err := DecodeUtcTime(frame[field.ValueStart:field.ValueEnd])
			if err != nil {
				return DecodedGoose{}, err
			}
			out.T = ut
		case 0x85:
			out.StNum = be32(frame, field)
		case 0x86:
			out.SqNum = be32(frame, field)
		case 0x87:
			out.Simulation = field.Length >= 1 && frame[field.ValueStart] != 0x00
		case 0x88:
			out.ConfRev = be32(frame, field)
		case 0x89:
			out.NdsCom = field.Length >= 1 && frame[field.ValueStart] != 0x00
		case 0x8A:
			out.NumDatSetEntries = be32(frame, field)
		case 0xAB:
			allData, err := decodeAllData(frame, field.ValueStart, field.ValueEnd)
			if err != nil {
				return DecodedGoose{}, err
			}
			out.AllData = allData
		}
		pos = next
	}
	return out, nil
}

func be32(frame []byte, field ber.TLV) uint32 {
	if field.Length != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(frame[field.ValueStart:field.ValueEnd])
}

// decodeAllData walks a flat sequence of Data leaves. Nested Array (0xA1) and
// Structure (0xA2) entries are not expanded; only their raw bytes are kept,
// per the documented flat-view limitation.
func decodeAllData(frame []byte, pos, end int) ([]Data, error) {
	var out []Data
	for pos < end {
		d, next, err := DecodeDataLeaf(frame, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
		pos = next
	}
	return out, nil
}
