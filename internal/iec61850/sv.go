package iec61850

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/vts/internal/ber"
	"github.com/tturner/vts/internal/vtserrors"
)

// Sample is one channel's 32-bit signed value plus its 32-bit quality word.
type Sample struct {
	Value   int32
	Quality uint32
}

// SVConfig is the immutable descriptor of one SV stream, per §3/§6 of the spec.
type SVConfig struct {
	AppID        uint16
	MacDst       Mac
	MacSrc       Mac
	VLAN         VLAN
	SvID         string
	DatSet       string // optional, empty to omit
	ConfRev      uint32
	SmpSynch     uint8
	SmpRate      uint16 // optional, 0 to omit
	SmpMod       uint16 // optional, 0 to omit
	ChannelCount int
	NumASDU      int // ASDUs per frame, normally 1
}

// Validate checks the configuration invariants from §3/§6.
func (c SVConfig) Validate() error {
	if err := c.VLAN.Validate(); err != nil {
		return err
	}
	if c.ChannelCount <= 0 || c.ChannelCount > 32 {
		return fmt.Errorf("channel count %d out of range [1,32]: %w", c.ChannelCount, vtserrors.ErrConfigInvalid)
	}
	if c.NumASDU <= 0 {
		return fmt.Errorf("numASDU must be positive, got %d: %w", c.NumASDU, vtserrors.ErrConfigInvalid)
	}
	if len(c.SvID) == 0 || len(c.SvID) > 255 {
		return fmt.Errorf("svID length %d out of range: %w", len(c.SvID), vtserrors.ErrConfigInvalid)
	}
	return nil
}

// SVTemplate is a pre-rendered SV frame with recorded offsets for the fields
// that change every tick (smpCnt, seqData), so ticks patch in place instead
// of re-encoding the whole frame (see design note on template ownership).
type SVTemplate struct {
	cfg            SVConfig
	buf            []byte
	smpCntOffsets  []int
	seqDataOffsets []int
}

// asduTemplate is one ASDU's encoding plus the offsets of its patchable
// fields, relative to the start of its own byte slice.
type asduTemplate struct {
	bytes      []byte
	smpCntOff  int
	seqDataOff int
}

// NewSVTemplate builds the frame once at configure time.
func NewSVTemplate(cfg SVConfig) (*SVTemplate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	asdus := make([]asduTemplate, cfg.NumASDU)
	var asduSeqBody []byte
	asduStart := make([]int, cfg.NumASDU)
	for i := range asdus {
		a, err := encodeASDU(cfg, 0)
		if err != nil {
			return nil, err
		}
		asdus[i] = a
		asduStart[i] = len(asduSeqBody)
		asduSeqBody = append(asduSeqBody, a.bytes...)
	}

	seqBuf, seqValueStart, err := ber.AppendTLV(nil, 0xA2, asduSeqBody)
	if err != nil {
		return nil, err
	}

	savPDUBody := make([]byte, 0, len(seqBuf)+3)
	savPDUBody = append(savPDUBody, 0x80, 0x01, byte(cfg.NumASDU))
	seqInSavPDU := len(savPDUBody)
	savPDUBody = append(savPDUBody, seqBuf...)

	pduBuf, pduValueStart, err := ber.AppendTLV(nil, 0x60, savPDUBody)
	if err != nil {
		return nil, err
	}

	eth := EncodeEthernetHeader(cfg.MacDst, cfg.MacSrc, &cfg.VLAN, EtherTypeSV)

	length := 8 + len(pduBuf)
	frame := make([]byte, 0, len(eth)+2+2+4+len(pduBuf))
	frame = append(frame, eth...)
	frame = append(frame, byte(cfg.AppID>>8), byte(cfg.AppID))
	frame = append(frame, byte(length>>8), byte(length))
	frame = append(frame, 0, 0, 0, 0) // reserved1, reserved2
	headerLen := len(frame)
	frame = append(frame, pduBuf...)

	base := headerLen + pduValueStart + seqInSavPDU + seqValueStart

	t := &SVTemplate{
		cfg:            cfg,
		buf:            frame,
		smpCntOffsets:  make([]int, cfg.NumASDU),
		seqDataOffsets: make([]int, cfg.NumASDU),
	}
	for i, a := range asdus {
		t.smpCntOffsets[i] = base + asduStart[i] + a.smpCntOff
		t.seqDataOffsets[i] = base + asduStart[i] + a.seqDataOff
	}
	return t, nil
}

// encodeASDU encodes one ASDU (tag 0x30) and records the offsets of its
// smpCnt and seqData value bytes relative to the start of the returned slice.
func encodeASDU(cfg SVConfig, smpCnt uint16) (asduTemplate, error) {
	var body []byte
	var err error

	body, _, err = ber.AppendTLV(body, 0x80, []byte(cfg.SvID))
	if err != nil {
		return asduTemplate{}, err
	}
	if cfg.DatSet != "" {
		body, _, err = ber.AppendTLV(body, 0x81, []byte(cfg.DatSet))
		if err != nil {
			return asduTemplate{}, err
		}
	}

	smpCntBuf := []byte{byte(smpCnt >> 8), byte(smpCnt)}
	var smpCntStart int
	body, smpCntStart, err = ber.AppendTLV(body, 0x82, smpCntBuf)
	if err != nil {
		return asduTemplate{}, err
	}

	confRevBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(confRevBuf, cfg.ConfRev)
	body, _, err = ber.AppendTLV(body, 0x83, confRevBuf)
	if err != nil {
		return asduTemplate{}, err
	}

	body, _, err = ber.AppendTLV(body, 0x85, []byte{cfg.SmpSynch})
	if err != nil {
		return asduTemplate{}, err
	}

	if cfg.SmpRate != 0 {
		rateBuf := []byte{byte(cfg.SmpRate >> 8), byte(cfg.SmpRate)}
		body, _, err = ber.AppendTLV(body, 0x86, rateBuf)
		if err != nil {
			return asduTemplate{}, err
		}
	}

	seqData := make([]byte, 8*cfg.ChannelCount)
	var seqDataStart int
	body, seqDataStart, err = ber.AppendTLV(body, 0x87, seqData)
	if err != nil {
		return asduTemplate{}, err
	}

	if cfg.SmpMod != 0 {
		modBuf := []byte{byte(cfg.SmpMod >> 8), byte(cfg.SmpMod)}
		body, _, err = ber.AppendTLV(body, 0x88, modBuf)
		if err != nil {
			return asduTemplate{}, err
		}
	}

	wrapped, valueStart, err := ber.AppendTLV(nil, 0x30, body)
	if err != nil {
		return asduTemplate{}, err
	}
	return asduTemplate{
		bytes:      wrapped,
		smpCntOff:  valueStart + smpCntStart,
		seqDataOff: valueStart + seqDataStart,
	}, nil
}

// Tick patches the current smpCnt and per-channel samples into the template
// for every ASDU and returns the frame bytes. The returned slice aliases the
// template's internal buffer and must be consumed (sent) before the next Tick.
func (t *SVTemplate) Tick(smpCnt uint16, samples []Sample) ([]byte, error) {
	if len(samples) != t.cfg.ChannelCount {
		return nil, fmt.Errorf("tick got %d samples, want %d: %w", len(samples), t.cfg.ChannelCount, vtserrors.ErrConfigInvalid)
	}
	for asdu := 0; asdu < t.cfg.NumASDU; asdu++ {
		off := t.smpCntOffsets[asdu]
		t.buf[off] = byte(smpCnt >> 8)
		t.buf[off+1] = byte(smpCnt)

		seqOff := t.seqDataOffsets[asdu]
		for ch, s := range samples {
			base := seqOff + ch*8
			binary.BigEndian.PutUint32(t.buf[base:base+4], uint32(s.Value))
			binary.BigEndian.PutUint32(t.buf[base+4:base+8], s.Quality)
		}
	}
	return t.buf, nil
}

// Config returns the template's configuration.
func (t *SVTemplate) Config() SVConfig { return t.cfg }

// DecodedASDU is one decoded ASDU's fields.
type DecodedASDU struct {
	SvID    string
	SmpCnt  uint16
	ConfRev uint32
	Samples []Sample
}

// DecodedSV is a fully decoded SV frame (post-Ethernet/VLAN/EtherType/APPID
// header, i.e. the savPdu onward).
type DecodedSV struct {
	NoASDU int
	ASDUs  []DecodedASDU
}

// DecodeSV decodes the savPdu starting at the 0x60 tag in frame[offset:].
func DecodeSV(frame []byte, offset int) (DecodedSV, error) {
	tlv, _, err := ber.ReadTLV(frame, offset)
	if err != nil {
		return DecodedSV{}, err
	}
	if tlv.Tag != 0x60 {
		return DecodedSV{}, fmt.Errorf("expected savPdu tag 0x60, got 0x%02X: %w", tlv.Tag, vtserrors.ErrParseTag)
	}
	pos := tlv.ValueStart
	end := tlv.ValueEnd

	noAsduTLV, next, err := ber.ReadTLV(frame, pos)
	if err != nil {
		return DecodedSV{}, err
	}
	if noAsduTLV.Tag != 0x80 || noAsduTLV.Length != 1 {
		return DecodedSV{}, fmt.Errorf("expected noASDU tag 0x80: %w", vtserrors.ErrParseTag)
	}
	noAsdu := int(frame[noAsduTLV.ValueStart])
	pos = next

	if pos < end && frame[pos] == 0x81 {
		_, n2, err := ber.ReadTLV(frame, pos)
		if err != nil {
			return DecodedSV{}, err
		}
		pos = n2
	}

	seqTLV, _, err := ber.ReadTLV(frame, pos)
	if err != nil {
		return DecodedSV{}, err
	}
	if seqTLV.Tag != 0xA2 {
		return DecodedSV{}, fmt.Errorf("expected seq-of-ASDU tag 0xA2, got 0x%02X: %w", seqTLV.Tag, vtserrors.ErrParseTag)
	}
	pos = seqTLV.ValueStart
	seqEnd := seqTLV.ValueEnd

	result := DecodedSV{NoASDU: noAsdu}
	for pos < seqEnd {
		asduTLV, nextASDU, err := ber.ReadTLV(frame, pos)
		if err != nil {
			return DecodedSV{}, err
		}
		if asduTLV.Tag != 0x30 {
			return DecodedSV{}, fmt.Errorf("expected ASDU tag 0x30, got 0x%02X: %w", asduTLV.Tag, vtserrors.ErrParseTag)
		}
		decoded, err := decodeASDUFields(frame, asduTLV.ValueStart, asduTLV.ValueEnd)
		if err != nil {
			return DecodedSV{}, err
		}
		result.ASDUs = append(result.ASDUs, decoded)
		pos = nextASDU
	}
	return result, nil
}

func decodeASDUFields(frame []byte, pos, end int) (DecodedASDU, error) {
	var out DecodedASDU
	for pos < end {
		tlv, next, err := ber.ReadTLV(frame, pos)
		if err != nil {
			return DecodedASDU{}, err
		}
		switch tlv.Tag {
		case 0x80:
			out.SvID = string(frame[tlv.ValueStart:tlv.ValueEnd])
		case 0x82:
			if tlv.Length != 2 {
				return DecodedASDU{}, fmt.Errorf("smpCnt length %d != 2: %w", tlv.Length, vtserrors.ErrParseTag)
			}
			out.SmpCnt = uint16(frame[tlv.ValueStart])<<8 | uint16(frame[tlv.ValueStart+1])
		case 0x83:
			if tlv.Length == 4 {
				out.ConfRev = binary.BigEndian.Uint32(frame[tlv.ValueStart:tlv.ValueEnd])
			}
		case 0x87:
			if tlv.Length%8 != 0 {
				return DecodedASDU{}, fmt.Errorf("seqData length %d not a multiple of 8: %w", tlv.Length, vtserrors.ErrParseTag)
			}
			n := tlv.Length / 8
			out.Samples = make([]Sample, n)
			for i := 0; i < n; i++ {
				base := tlv.ValueStart + i*8
				out.Samples[i] = Sample{
					Value:   int32(binary.BigEndian.Uint32(frame[base : base+4])),
					Quality: binary.BigEndian.Uint32(frame[base+4 : base+8]),
				}
			}
		}
		pos = next
	}
	return out, nil
}
