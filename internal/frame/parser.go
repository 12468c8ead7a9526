package frame

import "encoding/binary"

// Parser accumulates inbound bytes and yields complete frames. It never
// blocks: Push appends data, Next extracts one complete frame per call while
// one is available.
type Parser struct {
	buf          []byte
	maxFrameSize uint32
}

// NewParser creates a parser with the given accepted max frame size (applies
// to inbound frames, mirroring the local SETTINGS_MAX_FRAME_SIZE).
func NewParser(maxFrameSize uint32) *Parser {
	if maxFrameSize < MaxFrameSizeLowerBound {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Parser{maxFrameSize: maxFrameSize}
}

// SetMaxFrameSize updates the accepted max frame size, e.g. after a local
// SETTINGS change takes effect.
func (p *Parser) SetMaxFrameSize(n uint32) { p.maxFrameSize = n }

// Push appends newly received bytes to the parser's internal buffer.
func (p *Parser) Push(data []byte) {
	p.buf = append(p.buf, data...)
}

// Next extracts the next complete frame from the buffer. ok is false if more
// data is required. err is non-nil for a malformed frame header (oversized
// length); the caller should treat this as a connection error.
func (p *Parser) Next() (f Frame, ok bool, err error) {
	if len(p.buf) < FrameHeaderLen {
		return Frame{}, false, nil
	}

	length := uint32(p.buf[0])<<16 | uint32(p.buf[1])<<8 | uint32(p.buf[2])
	typ := Type(p.buf[3])
	flags := Flags(p.buf[4])
	streamID := binary.BigEndian.Uint32(p.buf[5:9]) & streamIDMask

	if length > p.maxFrameSize {
		return Frame{}, false, &ErrFrameSizeExceeded{Length: length, Max: p.maxFrameSize}
	}

	total := FrameHeaderLen + int(length)
	if len(p.buf) < total {
		return Frame{}, false, nil
	}

	payload := make([]byte, length)
	copy(payload, p.buf[FrameHeaderLen:total])

	// Shift remaining bytes down; avoids unbounded growth across many frames.
	remaining := len(p.buf) - total
	copy(p.buf, p.buf[total:])
	p.buf = p.buf[:remaining]

	return Frame{
		Length:   length,
		Type:     typ,
		Flags:    flags,
		StreamID: streamID,
		Payload:  payload,
	}, true, nil
}

// Buffered reports how many bytes are currently held, unconsumed.
func (p *Parser) Buffered() int { return len(p.buf) }
