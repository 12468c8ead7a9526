package frame

import "encoding/binary"

// PriorityParams is the 5-octet dependency/weight/exclusive structure shared
// by PRIORITY frames and the optional priority prefix of a HEADERS frame.
type PriorityParams struct {
	StreamDependency uint32
	Weight           uint8
	Exclusive        bool
}

// ParsePriority decodes a 5-octet priority block.
func ParsePriority(b []byte) (PriorityParams, error) {
	if len(b) != 5 {
		return PriorityParams{}, &ErrInvalidFrame{Reason: "PRIORITY payload must be 5 octets"}
	}
	dep := binary.BigEndian.Uint32(b[0:4])
	exclusive := dep&0x80000000 != 0
	dep &= streamIDMask
	return PriorityParams{StreamDependency: dep, Weight: b[4], Exclusive: exclusive}, nil
}

// HeadersPayload is the decoded structure of a HEADERS frame payload: pad
// length stripped, optional priority stripped, leaving only header block
// fragment bytes.
type HeadersPayload struct {
	Priority      *PriorityParams
	HeaderBlock   []byte
	PadLength     uint8
}

// ParseHeadersPayload strips padding and optional priority from a HEADERS
// frame payload per the flag bits.
func ParseHeadersPayload(flags Flags, payload []byte) (HeadersPayload, error) {
	var out HeadersPayload
	b := payload

	if flags.Has(FlagPadded) {
		if len(b) < 1 {
			return out, &ErrInvalidFrame{Reason: "HEADERS padded but empty"}
		}
		padLen := b[0]
		b = b[1:]
		if int(padLen) > len(b) {
			return out, &ErrInvalidFrame{Reason: "HEADERS pad length exceeds payload"}
		}
		out.PadLength = padLen
		b = b[:len(b)-int(padLen)]
	}

	if flags.Has(FlagPriority) {
		if len(b) < 5 {
			return out, &ErrInvalidFrame{Reason: "HEADERS priority flag set but payload too short"}
		}
		p, err := ParsePriority(b[:5])
		if err != nil {
			return out, err
		}
		out.Priority = &p
		b = b[5:]
	}

	out.HeaderBlock = b
	return out, nil
}

// DataPayload is the decoded structure of a DATA frame payload with padding
// stripped.
type DataPayload struct {
	Data      []byte
	PadLength uint8
}

// ParseDataPayload strips padding from a DATA frame payload.
func ParseDataPayload(flags Flags, payload []byte) (DataPayload, error) {
	var out DataPayload
	b := payload

	if flags.Has(FlagPadded) {
		if len(b) < 1 {
			return out, &ErrInvalidFrame{Reason: "DATA padded but empty"}
		}
		padLen := b[0]
		b = b[1:]
		if int(padLen) > len(b) {
			return out, &ErrInvalidFrame{Reason: "DATA pad length exceeds payload"}
		}
		out.PadLength = padLen
		b = b[:len(b)-int(padLen)]
	}

	out.Data = b
	return out, nil
}

// ParseSettings decodes a SETTINGS frame payload into a slice of Setting
// pairs. Payload length must be a multiple of 6.
func ParseSettings(payload []byte) ([]Setting, error) {
	if len(payload)%6 != 0 {
		return nil, &ErrInvalidFrame{Reason: "SETTINGS payload not a multiple of 6"}
	}
	n := len(payload) / 6
	out := make([]Setting, n)
	for i := 0; i < n; i++ {
		off := i * 6
		out[i] = Setting{
			ID:    binary.BigEndian.Uint16(payload[off : off+2]),
			Value: binary.BigEndian.Uint32(payload[off+2 : off+6]),
		}
	}
	return out, nil
}

// ParseWindowUpdate decodes a WINDOW_UPDATE frame payload.
func ParseWindowUpdate(payload []byte) (increment uint32, err error) {
	if len(payload) != 4 {
		return 0, &ErrInvalidFrame{Reason: "WINDOW_UPDATE payload must be 4 octets"}
	}
	increment = binary.BigEndian.Uint32(payload) & streamIDMask
	return increment, nil
}

// ParseRSTStream decodes a RST_STREAM frame payload.
func ParseRSTStream(payload []byte) (ErrCode, error) {
	if len(payload) != 4 {
		return 0, &ErrInvalidFrame{Reason: "RST_STREAM payload must be 4 octets"}
	}
	return ErrCode(binary.BigEndian.Uint32(payload)), nil
}

// ParseGoAway decodes a GOAWAY frame payload.
func ParseGoAway(payload []byte) (lastStreamID uint32, code ErrCode, debugData []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, &ErrInvalidFrame{Reason: "GOAWAY payload too short"}
	}
	lastStreamID = binary.BigEndian.Uint32(payload[0:4]) & streamIDMask
	code = ErrCode(binary.BigEndian.Uint32(payload[4:8]))
	debugData = payload[8:]
	return lastStreamID, code, debugData, nil
}

// ParsePing decodes a PING frame payload (always exactly 8 octets).
func ParsePing(payload []byte) ([8]byte, error) {
	var out [8]byte
	if len(payload) != 8 {
		return out, &ErrInvalidFrame{Reason: "PING payload must be 8 octets"}
	}
	copy(out[:], payload)
	return out, nil
}
