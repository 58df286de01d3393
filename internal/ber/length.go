// Package ber implements the subset of ASN.1 Basic Encoding Rules (BER)
// tag-length-value framing IEC 61850-8-1/9-2 uses on the wire.
package ber

import (
	"fmt"

	"github.com/tturner/vts/internal/vtserrors"
)

// MaxLength is the largest length BER long form (0x82 hi lo) can express.
const MaxLength = 0xFFFF

// EncodeLength encodes a BER length in short or long form:
// short form for <= 127, 0x81 L for 128-255, 0x82 hi lo for 256-65535.
// Lengths above 65535 are refused.
func EncodeLength(length int) ([]byte, error) {
	switch {
	case length < 0:
		return nil, fmt.Errorf("negative ber length %d: %w", length, vtserrors.ErrBerOverflow)
	case length <= 127:
		return []byte{byte(length)}, nil
	case length <= 255:
		return []byte{0x81, byte(length)}, nil
	case length <= MaxLength:
		return []byte{0x82, byte(length >> 8), byte(length)}, nil
	default:
		return nil, fmt.Errorf("ber length %d exceeds %d: %w", length, MaxLength, vtserrors.ErrBerOverflow)
	}
}

// DecodeLength reads a BER length starting at buf[0]. It returns the decoded
// length and the number of bytes consumed by the length field.
func DecodeLength(buf []byte) (length int, consumed int, err error) {
	if len(buf) < 1 {
		return 0, 0, fmt.Errorf("empty length field: %w", vtserrors.ErrParseTruncated)
	}
	switch {
	case buf[0] == 0x82:
		if len(buf) < 3 {
			return 0, 0, fmt.Errorf("truncated long-form (2 byte) length: %w", vtserrors.ErrParseTruncated)
		}
		return int(buf[1])<<8 | int(buf[2]), 3, nil
	case buf[0] == 0x81:
		if len(buf) < 2 {
			return 0, 0, fmt.Errorf("truncated long-form (1 byte) length: %w", vtserrors.ErrParseTruncated)
		}
		return int(buf[1]), 2, nil
	case buf[0] <= 0x7F:
		return int(buf[0]), 1, nil
	default:
		return 0, 0, fmt.Errorf("unsupported BER length prefix 0x%02X: %w", buf[0], vtserrors.ErrParseTag)
	}
}

// TLV holds a decoded tag-length-value with the offset of its value bytes
// within the original buffer, so callers can patch in place later.
type TLV struct {
	Tag        byte
	Length     int
	ValueStart int
	ValueEnd   int
}

// ReadTLV reads one tag-length-value entry starting at offset off in buf,
// bounds-checking the declared length against len(buf).
func ReadTLV(buf []byte, off int) (TLV, int, error) {
	if off >= len(buf) {
		return TLV{}, off, fmt.Errorf("tlv read past end at offset %d: %w", off, vtserrors.ErrParseTruncated)
	}
	tag := buf[off]
	length, consumed, err := DecodeLength(buf[off+1:])
	if err != nil {
		return TLV{}, off, err
	}
	valueStart := off + 1 + consumed
	valueEnd := valueStart + length
	if valueEnd > len(buf) {
		return TLV{}, off, fmt.Errorf("tlv tag 0x%02X declared length %d exceeds buffer: %w", tag, length, vtserrors.ErrParseTruncated)
	}
	return TLV{Tag: tag, Length: length, ValueStart: valueStart, ValueEnd: valueEnd}, valueEnd, nil
}

// AppendTLV appends tag, BER length, and value to buf, returning the new
// slice and the offset within it where value begins (for later patching).
func AppendTLV(buf []byte, tag byte, value []byte) ([]byte, int, error) {
	lenBytes, err := EncodeLength(len(value))
	if err != nil {
		return nil, 0, err
	}
	buf = append(buf, tag)
	buf = append(buf, lenBytes...)
	valueStart := len(buf)
	buf = append(buf, value...)
	return buf, valueStart, nil
}
