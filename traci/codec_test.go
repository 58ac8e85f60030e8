package traci

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeGetVariable(t *testing.T) {
	got := EncodeGetVariable(VarSpeed, "veh0")
	want := []byte{0x40, 0x00, 0x00, 0x00, 0x04, 'v', 'e', 'h', '0'}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload = % X, want % X", got, want)
	}
}

func TestEncodeGetVariableEmptyObject(t *testing.T) {
	got := EncodeGetVariable(VarIDList, "")
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload = % X, want % X", got, want)
	}
}

func TestDecodeDoubleLittleEndian(t *testing.T) {
	// 1.0 is 0x3FF0000000000000; on the wire the low byte comes first,
	// unlike the big-endian length fields.
	payload := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F}
	got, warn := DecodeDouble(payload)
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	if got != 1.0 {
		t.Fatalf("decoded %v, want 1.0", got)
	}
}

func TestDecodeDoubleRoundTrip(t *testing.T) {
	for _, v := range []float64{0, -0.5, 13.37, 299792458, math.Pi} {
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint64(payload, math.Float64bits(v))
		got, warn := DecodeDouble(payload)
		if warn != nil {
			t.Fatalf("value %v: unexpected warning %v", v, warn)
		}
		if got != v {
			t.Errorf("decoded %v, want %v", got, v)
		}
	}
}

func TestDecodeDoubleShortPayload(t *testing.T) {
	// Leniency: a short numeric payload decodes to 0.0 plus a warning,
	// never an error.
	got, warn := DecodeDouble(nil)
	if got != 0.0 {
		t.Errorf("decoded %v, want 0.0", got)
	}
	if warn == nil {
		t.Fatal("expected a warning for a zero-length double payload")
	}
}

func TestDecodePosition(t *testing.T) {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint64(payload, math.Float64bits(120.5))
	binary.LittleEndian.PutUint64(payload[8:], math.Float64bits(-33.25))
	x, y, warn := DecodePosition(payload)
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	if x != 120.5 || y != -33.25 {
		t.Fatalf("decoded (%v, %v), want (120.5, -33.25)", x, y)
	}
}

func TestDecodePositionShortPayload(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, math.Float64bits(7.0))
	x, y, warn := DecodePosition(payload)
	if warn == nil {
		t.Fatal("expected a warning for a truncated position payload")
	}
	if x != 7.0 || y != 0.0 {
		t.Fatalf("decoded (%v, %v), want (7, 0)", x, y)
	}
}

func TestDecodeString(t *testing.T) {
	if got := DecodeString([]byte("edge42")); got != "edge42" {
		t.Errorf("decoded %q, want %q", got, "edge42")
	}
	if got := DecodeString(nil); got != "" {
		t.Errorf("decoded %q from empty payload, want empty string", got)
	}
}

func TestDecodeStringListEmpty(t *testing.T) {
	// count = 0 is a legitimate empty list, not a degraded payload.
	list, warn := DecodeStringList([]byte{0x00, 0x00, 0x00, 0x00})
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	if len(list) != 0 {
		t.Fatalf("decoded %d entries, want 0", len(list))
	}
}

func TestDecodeStringListPreservesOrder(t *testing.T) {
	want := []string{"veh2", "veh0", "veh1"}
	payload := []byte{0x00, 0x00, 0x00, 0x03}
	for _, s := range want {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(s)))
		payload = append(payload, l[:]...)
		payload = append(payload, s...)
	}

	list, warn := DecodeStringList(payload)
	if warn != nil {
		t.Fatalf("unexpected warning: %v", warn)
	}
	if len(list) != len(want) {
		t.Fatalf("decoded %d entries, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, list[i], want[i])
		}
	}
}

func TestDecodeStringListShortHeader(t *testing.T) {
	list, warn := DecodeStringList([]byte{0x00, 0x01})
	if warn == nil {
		t.Fatal("expected a warning for a short list header")
	}
	if len(list) != 0 {
		t.Fatalf("decoded %d entries, want 0", len(list))
	}
}

func TestDecodeStringListTruncatedEntries(t *testing.T) {
	// Declares three entries but carries only one complete entry; the
	// complete prefix survives and the truncation is reported.
	payload := []byte{
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x02, 'o', 'k',
		0x00, 0x00, 0x00, 0x05, 'p', 'a',
	}
	list, warn := DecodeStringList(payload)
	if warn == nil {
		t.Fatal("expected a warning for truncated list entries")
	}
	if len(list) != 1 || list[0] != "ok" {
		t.Fatalf("decoded %v, want [ok]", list)
	}
}

func TestDecodeStringListHugeDeclaredCount(t *testing.T) {
	// A degraded payload can declare a count near 2^32 with no entries
	// behind it. That must decode to an empty list plus a warning, not an
	// allocation sized by the declared count.
	list, warn := DecodeStringList([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if warn == nil {
		t.Fatal("expected a warning for a count with no entries")
	}
	if len(list) != 0 {
		t.Fatalf("decoded %d entries, want 0", len(list))
	}

	// Same shape with one complete entry in front: the prefix survives.
	payload := []byte{
		0xFF, 0xFF, 0xFF, 0xFF,
		0x00, 0x00, 0x00, 0x02, 'o', 'k',
	}
	list, warn = DecodeStringList(payload)
	if warn == nil {
		t.Fatal("expected a warning for truncated entries")
	}
	if len(list) != 1 || list[0] != "ok" {
		t.Fatalf("decoded %v, want [ok]", list)
	}
}

func TestEncodeSetTrafficLightState(t *testing.T) {
	payload := EncodeSetTrafficLightState("tls0", "GGrr", 30)

	if payload[0] != VarTLStateRYG {
		t.Errorf("variable byte = 0x%02X, want 0x%02X", payload[0], VarTLStateRYG)
	}
	if idLen := binary.BigEndian.Uint32(payload[1:]); idLen != 4 {
		t.Errorf("object id length = %d, want 4", idLen)
	}
	if got := string(payload[5:9]); got != "tls0" {
		t.Errorf("object id = %q, want tls0", got)
	}
	if stateLen := binary.BigEndian.Uint32(payload[9:]); stateLen != 4 {
		t.Errorf("state length = %d, want 4", stateLen)
	}
	if got := string(payload[13:17]); got != "GGrr" {
		t.Errorf("state = %q, want GGrr", got)
	}
	duration := math.Float64frombits(binary.LittleEndian.Uint64(payload[17:]))
	if duration != 30 {
		t.Errorf("duration = %v, want 30", duration)
	}
	if len(payload) != 25 {
		t.Errorf("payload length = %d, want 25", len(payload))
	}
}
