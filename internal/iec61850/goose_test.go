package iec61850

import "testing"

func testGooseConfig(t *testing.T) GooseConfig {
	t.Helper()
	dst, err := ParseMac("01:0C:CD:01:00:00")
	if err != nil {
		t.Fatalf("parse dst mac: %v", err)
	}
	src, err := ParseMac("AA:BB:CC:DD:EE:02")
	if err != nil {
		t.Fatalf("parse src mac: %v", err)
	}
	return GooseConfig{
		AppID:             0x1000,
		MacDst:            dst,
		MacSrc:            src,
		VLAN:              &VLAN{ID: 200, Prio: 4},
		GoCbRef:           "RelayA/LLN0$GO$gcb01",
		TimeAllowedToLive: 2000,
		DatSet:            "RelayA/LLN0$DataSet01",
		StNum:             1,
		SqNum:             0,
		ConfRev:           1,
	}
}

func gooseOffset() int {
	// dst(6)+src(6)+vlan(4)+ethertype(2)+appid(2)+len(2)+reserved(4)
	return 6 + 6 + 4 + 2 + 2 + 2 + 4
}

func TestGooseEncodeDecodeRoundTrip(t *testing.T) {
	cfg := testGooseConfig(t)
	allData := []Data{
		Boolean(true),
		Boolean(false),
		Integer(42),
	}
	frame, err := EncodeGoose(cfg, UtcTime{Seconds: 1700000000, FractionNs: 500_000_000, Defined: true}, allData)
	if err != nil {
		t.Fatalf("EncodeGoose: %v", err)
	}

	decoded, err := DecodeGoose(frame, gooseOffset())
	if err != nil {
		t.Fatalf("DecodeGoose: %v", err)
	}
	if decoded.GoCbRef != cfg.GoCbRef {
		t.Fatalf("GoCbRef = %q, want %q", decoded.GoCbRef, cfg.GoCbRef)
	}
	if decoded.StNum != 1 || decoded.SqNum != 0 {
		t.Fatalf("StNum/SqNum = %d/%d, want 1/0", decoded.StNum, decoded.SqNum)
	}
	if decoded.NumDatSetEntries != 3 {
		t.Fatalf("NumDatSetEntries = %d, want 3", decoded.NumDatSetEntries)
	}
	if len(decoded.AllData) != 3 {
		t.Fatalf("len(AllData) = %d, want 3", len(decoded.AllData))
	}
	bv := decoded.BooleanVector()
	if !bv[0] || bv[1] || !bv[2] {
		t.Fatalf("BooleanVector = %v, want [true false true]", bv)
	}
}

func TestGooseAllDataLongFormRoundTrip(t *testing.T) {
	cfg := testGooseConfig(t)
	allData := make([]Data, 300)
	for i := range allData {
		allData[i] = Boolean(i%2 == 0)
	}
	frame, err := EncodeGoose(cfg, UtcTime{Seconds: 1, Defined: true}, allData)
	if err != nil {
		t.Fatalf("EncodeGoose: %v", err)
	}

	decoded, err := DecodeGoose(frame, gooseOffset())
	if err != nil {
		t.Fatalf("DecodeGoose: %v", err)
	}
	if len(decoded.AllData) != 300 {
		t.Fatalf("len(AllData) = %d, want 300", len(decoded.AllData))
	}
	bv := decoded.BooleanVector()
	for i, want := range allData {
		if bv[i] != want.Bool {
			t.Fatalf("booleanVector[%d] = %v, want %v", i, bv[i], want.Bool)
		}
	}
}

func TestGooseDecodeTruncatedFrame(t *testing.T) {
	cfg := testGooseConfig(t)
	frame, err := EncodeGoose(cfg, UtcTime{Seconds: 1, Defined: true}, []Data{Boolean(true)})
	if err != nil {
		t.Fatalf("EncodeGoose: %v", err)
	}
	truncated := frame[:len(frame)-5]
	_, err = DecodeGoose(truncated, gooseOffset())
	if err == nil {
		t.Fatal("expected error decoding truncated frame")
	}
}

func TestGooseSimulationAndNdsComFlags(t *testing.T) {
	cfg := testGooseConfig(t)
	cfg.Simulation = true
	cfg.NdsCom = true
	frame, err := EncodeGoose(cfg, UtcTime{Seconds: 1, Defined: true}, nil)
	if err != nil {
		t.Fatalf("EncodeGoose: %v", err)
	}
	decoded, err := DecodeGoose(frame, gooseOffset())
	if err != nil {
		t.Fatalf("DecodeGoose: %v", err)
	}
	if !decoded.Simulation || !decoded.NdsCom {
		t.Fatalf("Simulation=%v NdsCom=%v, want both true", decoded.Simulation, decoded.NdsCom)
	}
	if decoded.NumDatSetEntries != 0 || len(decoded.AllData) != 0 {
		t.Fatalf("expected empty allData, got %d entries", decoded.NumDatSetEntries)
	}
}
