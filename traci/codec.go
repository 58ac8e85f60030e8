package traci

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The codec follows the observed wire convention exactly: length fields and
// list counts are big-endian, but the 8-byte IEEE-754 doubles are
// little-endian. The asymmetry is deliberate and must not be "fixed".

// Warning records a lenient decode: a payload shorter than its declared type
// requires was mapped to a default value instead of failing the query.
// Warnings are surfaced on the client's warning channel, never swallowed.
type Warning struct {
	Variable byte
	ObjectID string
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("variable 0x%02X object %q: %s", w.Variable, w.ObjectID, w.Reason)
}

// EncodeGetVariable builds the payload of a get-variable request:
// [variableID:u8][objectIdLen:u32 BE][objectID utf8].
func EncodeGetVariable(variableID byte, objectID string) []byte {
	buf := make([]byte, 1+4+len(objectID))
	buf[0] = variableID
	binary.BigEndian.PutUint32(buf[1:], uint32(len(objectID)))
	copy(buf[5:], objectID)
	return buf
}

// EncodeSetTrafficLightState builds the payload of the one modeled
// set-variable command: a red/yellow/green state override with a duration.
// Layout: [variableID:u8][idLen:u32 BE][id][stateLen:u32 BE][state][duration:f64 LE].
func EncodeSetTrafficLightState(objectID, state string, duration float64) []byte {
	buf := make([]byte, 1+4+len(objectID)+4+len(state)+8)
	buf[0] = VarTLStateRYG
	off := 1
	binary.BigEndian.PutUint32(buf[off:], uint32(len(objectID)))
	off += 4
	copy(buf[off:], objectID)
	off += len(objectID)
	binary.BigEndian.PutUint32(buf[off:], uint32(len(state)))
	off += 4
	copy(buf[off:], state)
	off += len(state)
	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(duration))
	return buf
}

// DecodeDouble reads an 8-byte little-endian IEEE-754 double. A short
// payload decodes to 0.0 with a warning.
func DecodeDouble(payload []byte) (float64, *Warning) {
	if len(payload) < 8 {
		return 0, &Warning{Reason: fmt.Sprintf("double payload is %d bytes, want 8; defaulting to 0.0", len(payload))}
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(payload)), nil
}

// DecodePosition reads two consecutive little-endian doubles (x, y). Short
// payloads default the missing coordinates to 0.0 with a warning.
func DecodePosition(payload []byte) (x, y float64, warn *Warning) {
	if len(payload) < 16 {
		warn = &Warning{Reason: fmt.Sprintf("position payload is %d bytes, want 16; defaulting to origin", len(payload))}
		if len(payload) >= 8 {
			x = math.Float64frombits(binary.LittleEndian.Uint64(payload))
		}
		return x, 0, warn
	}
	x = math.Float64frombits(binary.LittleEndian.Uint64(payload))
	y = math.Float64frombits(binary.LittleEndian.Uint64(payload[8:]))
	return x, y, nil
}

// DecodeString interprets the whole payload as UTF-8. There is no explicit
// terminator; the length is implicit from the frame length, so any payload
// is valid and no warning is ever produced.
func DecodeString(payload []byte) string {
	return string(payload)
}

// DecodeStringList reads [count:u32 BE] followed by count length-prefixed
// UTF-8 strings, preserving order. A count of zero is a legitimate empty
// list. A payload too short for its own declared count returns the entries
// that were complete plus a warning; the remainder defaults to absent.
func DecodeStringList(payload []byte) ([]string, *Warning) {
	if len(payload) < 4 {
		return nil, &Warning{Reason: fmt.Sprintf("string list payload is %d bytes, want at least 4; defaulting to empty list", len(payload))}
	}
	count := binary.BigEndian.Uint32(payload)
	rest := payload[4:]

	// The declared count is untrusted; a degraded payload can claim billions
	// of entries. Cap the allocation by what the remaining bytes could hold
	// (each entry needs at least its 4-byte length prefix).
	capHint := count
	if most := uint32(len(rest) / 4); capHint > most {
		capHint = most
	}
	list := make([]string, 0, capHint)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return list, &Warning{Reason: fmt.Sprintf("string list truncated after %d of %d entries", len(list), count)}
		}
		strLen := binary.BigEndian.Uint32(rest)
		rest = rest[4:]
		if uint32(len(rest)) < strLen {
			return list, &Warning{Reason: fmt.Sprintf("string list truncated after %d of %d entries", len(list), count)}
		}
		list = append(list, string(rest[:strLen]))
		rest = rest[strLen:]
	}
	return list, nil
}
