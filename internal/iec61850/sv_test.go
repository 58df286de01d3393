package iec61850

import "testing"

func testSVConfig(t *testing.T) SVConfig {
	t.Helper()
	dst, err := ParseMac("01:0C:CD:04:00:00")
	if err != nil {
		t.Fatalf("parse dst mac: %v", err)
	}
	src, err := ParseMac("AA:BB:CC:DD:EE:01")
	if err != nil {
		t.Fatalf("parse src mac: %v", err)
	}
	return SVConfig{
		AppID:        0x4000,
		MacDst:       dst,
		MacSrc:       src,
		VLAN:         VLAN{ID: 100, Prio: 4},
		SvID:         "TestSV01",
		ConfRev:      1,
		SmpSynch:     2,
		ChannelCount: 4,
		NumASDU:      1,
	}
}

func TestSVTemplateTickRoundTrip(t *testing.T) {
	cfg := testSVConfig(t)
	tmpl, err := NewSVTemplate(cfg)
	if err != nil {
		t.Fatalf("NewSVTemplate: %v", err)
	}

	samples := []Sample{
		{Value: 1000, Quality: 0},
		{Value: -2000, Quality: 0},
		{Value: 3000, Quality: 0},
		{Value: -4000, Quality: 0},
	}

	for smpCnt := uint16(0); smpCnt < 4800; smpCnt++ {
		frame, err := tmpl.Tick(smpCnt, samples)
		if err != nil {
			t.Fatalf("Tick(%d): %v", smpCnt, err)
		}

		// savPdu starts right after dst(6)+src(6)+vlan(4)+ethertype(2)+appid(2)+len(2)+reserved(4)
		offset := 6 + 6 + 4 + 2 + 2 + 2 + 4
		decoded, err := DecodeSV(frame, offset)
		if err != nil {
			t.Fatalf("DecodeSV at smpCnt=%d: %v", smpCnt, err)
		}
		if decoded.NoASDU != 1 {
			t.Fatalf("NoASDU = %d, want 1", decoded.NoASDU)
		}
		asdu := decoded.ASDUs[0]
		if asdu.SvID != "TestSV01" {
			t.Fatalf("SvID = %q, want TestSV01", asdu.SvID)
		}
		if asdu.SmpCnt != smpCnt {
			t.Fatalf("SmpCnt = %d, want %d", asdu.SmpCnt, smpCnt)
		}
		if len(asdu.Samples) != 4 {
			t.Fatalf("len(Samples) = %d, want 4", len(asdu.Samples))
		}
		for i, want := range samples {
			if asdu.Samples[i].Value != want.Value {
				t.Fatalf("sample %d value = %d, want %d", i, asdu.Samples[i].Value, want.Value)
			}
		}
	}
}

func TestSVTemplateWrongSampleCount(t *testing.T) {
	cfg := testSVConfig(t)
	tmpl, err := NewSVTemplate(cfg)
	if err != nil {
		t.Fatalf("NewSVTemplate: %v", err)
	}
	_, err = tmpl.Tick(0, []Sample{{Value: 1}})
	if err == nil {
		t.Fatal("expected error for wrong sample count")
	}
}

func TestSVTemplateSeqDataLength(t *testing.T) {
	cfg := testSVConfig(t)
	tmpl, err := NewSVTemplate(cfg)
	if err != nil {
		t.Fatalf("NewSVTemplate: %v", err)
	}
	samples := make([]Sample, cfg.ChannelCount)
	frame, err := tmpl.Tick(0, samples)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	offset := 6 + 6 + 4 + 2 + 2 + 2 + 4
	decoded, err := DecodeSV(frame, offset)
	if err != nil {
		t.Fatalf("DecodeSV: %v", err)
	}
	// 4 channels * 8 bytes (4 value + 4 quality) = 32 bytes of seqData.
	if len(decoded.ASDUs[0].Samples) != 4 {
		t.Fatalf("got %d samples, want 4 (32 bytes of seqData)", len(decoded.ASDUs[0].Samples))
	}
}

func TestSVConfigValidateRejectsBadChannelCount(t *testing.T) {
	cfg := testSVConfig(t)
	cfg.ChannelCount = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero channel count")
	}
}
