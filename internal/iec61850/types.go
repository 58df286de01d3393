package iec61850

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/vts/internal/ber"
	"github.com/tturner/vts/internal/vtserrors"
)

// UtcTime is the IEC 61850 8-byte UTC time: seconds then a sub-second
// fraction scaled to a 32-bit binary fraction of one second.
type UtcTime struct {
	Seconds    uint32
	FractionNs uint32 // nanoseconds within the second, pre-scaling
	Defined    bool
}

// Encode renders the 8-byte wire form: seconds (BE) then fraction scaled by
// fraction_ns * 2^32 / 1e9 (BE).
func (t UtcTime) Encode() []byte {
	scaled := uint32((uint64(t.FractionNs) << 32) / 1_000_000_000)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], t.Seconds)
	binary.BigEndian.PutUint32(buf[4:8], scaled)
	return buf
}

// DecodeUtcTime inverts Encode.
func DecodeUtcTime(buf []byte) (UtcTime, error) {
	if len(buf) < 8 {
		return UtcTime{}, fmt.Errorf("utc time needs 8 bytes, got %d: %w", len(buf), vtserrors.ErrParseTruncated)
	}
	seconds := binary.BigEndian.Uint32(buf[0:4])
	scaled := binary.BigEndian.Uint32(buf[4:8])
	fractionNs := uint32((uint64(scaled) * 1_000_000_000) >> 32)
	return UtcTime{Seconds: seconds, FractionNs: fractionNs, Defined: true}, nil
}

// DataType is the context tag of a GOOSE Data leaf.
type DataType byte

const (
	DataBoolean       DataType = 0x83
	DataBitString     DataType = 0x84
	DataInteger       DataType = 0x85
	DataUnsigned      DataType = 0x86
	DataFloatingPoint DataType = 0x87
	DataReal          DataType = 0x88
	DataOctetString   DataType = 0x89
	DataVisibleString DataType = 0x8A
	DataBinaryTime    DataType = 0x8B
	DataBcd           DataType = 0x8C
	DataBooleanArray  DataType = 0x8D
	DataObjId         DataType = 0x8E
	DataMmsString     DataType = 0x8F
	DataUtcTime       DataType = 0x90
)

// Data is a single GOOSE allData leaf. The engine extracts only Boolean and
// Integer values; all other kinds keep their raw encoded bytes so they
// round-trip without being interpreted (see design note on the flat view).
type Data struct {
	Type  DataType
	Bool  bool
	Int   int32
	Bytes []byte // raw value bytes for kinds not otherwise interpreted
}

// Boolean constructs a boolean Data leaf.
func Boolean(v bool) Data { return Data{Type: DataBoolean, Bool: v} }

// Integer constructs an integer Data leaf.
func Integer(v int32) Data { return Data{Type: DataInteger, Int: v} }

// Encode renders the leaf as tag + BER length + value.
func (d Data) Encode() ([]byte, error) {
	var value []byte
	switch d.Type {
	case DataBoolean:
		if d.Bool {
			value = []byte{0xFF}
		} else {
			value = []byte{0x00}
		}
	case DataInteger, DataUnsigned, DataBcd:
		value = make([]byte, 4)
		binary.BigEndian.PutUint32(value, uint32(d.Int))
	default:
		value = d.Bytes
	}
	buf, _, err := ber.AppendTLV(nil, byte(d.Type), value)
	return buf, err
}

// DecodeDataLeaf decodes one leaf at offset off, bounds-checked against buf.
func DecodeDataLeaf(buf []byte, off int) (Data, int, error) {
	tlv, next, err := ber.ReadTLV(buf, off)
	if err != nil {
		return Data{}, off, err
	}
	value := buf[tlv.ValueStart:tlv.ValueEnd]
	d := Data{Type: DataType(tlv.Tag)}
	switch d.Type {
	case DataBoolean:
		d.Bool = len(value) >= 1 && value[0] != 0x00
	case DataInteger, DataUnsigned, DataBcd:
		if len(value) == 4 {
			d.Int = int32(binary.BigEndian.Uint32(value))
		}
		d.Bytes = append([]byte(nil), value...)
	default:
		d.Bytes = append([]byte(nil), value...)
	}
	return d, next, nil
}
