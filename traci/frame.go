package traci

import (
	"encoding/binary"
	"fmt"
)

// Frame is one complete protocol message. The wire form is
// [len:u32 BE][commandID:u8][payload], where len covers the command id and
// the payload but not the length prefix itself.
type Frame struct {
	CommandID byte
	Payload   []byte
}

// headerSize is the length prefix, commandIDSize the byte it accounts for.
const (
	headerSize    = 4
	commandIDSize = 1
)

// EncodeFrame builds the wire form of a command. A nil payload encodes a
// zero-payload frame.
func EncodeFrame(commandID byte, payload []byte) []byte {
	buf := make([]byte, headerSize+commandIDSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(commandIDSize+len(payload)))
	buf[headerSize] = commandID
	copy(buf[headerSize+commandIDSize:], payload)
	return buf
}

// FrameDecoder reassembles complete frames out of an arbitrarily fragmented
// byte stream. It holds at most one partial frame between calls and never
// reorders, drops, or duplicates bytes. The decoder enforces no upper bound
// on frame size; callers that need one impose it themselves.
type FrameDecoder struct {
	buf []byte
}

// NewFrameDecoder returns an empty decoder.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Feed appends chunk to the internal buffer and returns every frame that is
// now complete, in stream order. A chunk may be empty, smaller than one
// frame, or span several frames. A declared length of zero cannot hold a
// command id and is reported as a framing error; the decoder is unusable
// afterwards since the stream position can no longer be trusted.
func (d *FrameDecoder) Feed(chunk []byte) ([]Frame, error) {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		if len(d.buf) < headerSize {
			return frames, nil
		}
		declared := binary.BigEndian.Uint32(d.buf)
		if declared < commandIDSize {
			return frames, fmt.Errorf("%w: declared length %d is below the command id size", ErrFraming, declared)
		}
		total := headerSize + int(declared)
		if len(d.buf) < total {
			return frames, nil
		}

		payload := make([]byte, declared-commandIDSize)
		copy(payload, d.buf[headerSize+commandIDSize:total])
		frames = append(frames, Frame{CommandID: d.buf[headerSize], Payload: payload})
		d.buf = d.buf[total:]
	}
}

// Buffered reports how many bytes of an incomplete frame the decoder is
// holding.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}
