package ber

import (
	"errors"
	"testing"

	"github.com/tturner/vts/internal/vtserrors"
)

func TestEncodeLengthForm(t *testing.T) {
	cases := []struct {
		length    int
		wantBytes int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{255, 2},
		{256, 3},
		{65535, 3},
	}
	for _, c := range cases {
		got, err := EncodeLength(c.length)
		if err != nil {
			t.Fatalf("EncodeLength(%d): %v", c.length, err)
		}
		if len(got) != c.wantBytes {
			t.Errorf("EncodeLength(%d) = %d bytes, want %d", c.length, len(got), c.wantBytes)
		}
	}
}

func TestEncodeLengthOverflow(t *testing.T) {
	_, err := EncodeLength(65536)
	if !errors.Is(err, vtserrors.ErrBerOverflow) {
		t.Fatalf("expected ErrBerOverflow, got %v", err)
	}
}

func TestLengthRoundTrip(t *testing.T) {
	for _, l := range []int{0, 1, 127, 128, 200, 255, 256, 1000, 65535} {
		enc, err := EncodeLength(l)
		if err != nil {
			t.Fatalf("encode %d: %v", l, err)
		}
		got, consumed, err := DecodeLength(enc)
		if err != nil {
			t.Fatalf("decode %d: %v", l, err)
		}
		if got != l {
			t.Errorf("round trip %d: got %d", l, got)
		}
		if consumed != len(enc) {
			t.Errorf("round trip %d: consumed %d, want %d", l, consumed, len(enc))
		}
	}
}

func TestDecodeLengthTruncated(t *testing.T) {
	_, _, err := DecodeLength([]byte{0x82, 0x01})
	if !errors.Is(err, vtserrors.ErrParseTruncated) {
		t.Fatalf("expected ErrParseTruncated, got %v", err)
	}
	_, _, err = DecodeLength(nil)
	if !errors.Is(err, vtserrors.ErrParseTruncated) {
		t.Fatalf("expected ErrParseTruncated on empty buf, got %v", err)
	}
}

func TestReadTLVBoundsChecked(t *testing.T) {
	buf := []byte{0x80, 0x03, 'a', 'b', 'c'}
	tlv, next, err := ReadTLV(buf, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlv.Tag != 0x80 || tlv.Length != 3 || next != 5 {
		t.Fatalf("unexpected tlv: %+v next=%d", tlv, next)
	}
	if string(buf[tlv.ValueStart:tlv.ValueEnd]) != "abc" {
		t.Fatalf("unexpected value slice: %q", buf[tlv.ValueStart:tlv.ValueEnd])
	}

	_, _, err = ReadTLV([]byte{0x80, 0x05, 'a'}, 0)
	if !errors.Is(err, vtserrors.ErrParseTruncated) {
		t.Fatalf("expected ErrParseTruncated, got %v", err)
	}
}

func TestAppendTLVAllowsPatching(t *testing.T) {
	buf, start, err := AppendTLV(nil, 0x82, []byte{0x00, 0x00})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf[start] = 0x12
	buf[start+1] = 0x34
	if buf[0] != 0x82 || buf[1] != 0x02 || buf[2] != 0x12 || buf[3] != 0x34 {
		t.Fatalf("unexpected buffer: % X", buf)
	}
}

func TestGooseAllDataLongForm(t *testing.T) {
	// 300 booleans, 3 bytes each (tag+len+value) = 900 bytes -> long form 0x82 0x03 0x84.
	payload := make([]byte, 900)
	buf, _, err := AppendTLV(nil, 0xAB, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf[0] != 0xAB || buf[1] != 0x82 || buf[2] != 0x03 || buf[3] != 0x84 {
		t.Fatalf("unexpected long-form header: % X", buf[:4])
	}
}
