package frame

import (
	"bytes"
	"testing"
)

func TestWriterParserRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteData(3, true, []byte("hello")); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if err := w.WriteRSTStream(5, ErrCodeCancel); err != nil {
		t.Fatalf("WriteRSTStream: %v", err)
	}
	if err := w.WriteSettings(Setting{ID: SettingMaxFrameSize, Value: 32768}); err != nil {
		t.Fatalf("WriteSettings: %v", err)
	}

	p := NewParser(MaxFrameSizeUpperBound)
	p.Push(buf.Bytes())

	f1, ok, err := p.Next()
	if err != nil || !ok {
		t.Fatalf("expected DATA frame, got ok=%v err=%v", ok, err)
	}
	if f1.Type != TypeData || f1.StreamID != 3 || !f1.Flags.Has(FlagEndStream) {
		t.Fatalf("unexpected DATA frame: %+v", f1)
	}
	if string(f1.Payload) != "hello" {
		t.Fatalf("payload mismatch: %q", f1.Payload)
	}

	f2, ok, err := p.Next()
	if err != nil || !ok || f2.Type != TypeRSTStream || f2.StreamID != 5 {
		t.Fatalf("unexpected RST_STREAM frame: %+v ok=%v err=%v", f2, ok, err)
	}
	code, err := ParseRSTStream(f2.Payload)
	if err != nil || code != ErrCodeCancel {
		t.Fatalf("RST_STREAM payload decode: code=%v err=%v", code, err)
	}

	f3, ok, err := p.Next()
	if err != nil || !ok || f3.Type != TypeSettings {
		t.Fatalf("unexpected SETTINGS frame: %+v ok=%v err=%v", f3, ok, err)
	}
	settings, err := ParseSettings(f3.Payload)
	if err != nil || len(settings) != 1 || settings[0].Value != 32768 {
		t.Fatalf("SETTINGS decode mismatch: %+v err=%v", settings, err)
	}

	if _, ok, _ := p.Next(); ok {
		t.Fatalf("expected no more frames")
	}
}

func TestParserIncompleteFrame(t *testing.T) {
	p := NewParser(DefaultMaxFrameSize)
	p.Push([]byte{0, 0, 5, byte(TypeData), 0, 0, 0, 0, 1})
	if _, ok, err := p.Next(); ok || err != nil {
		t.Fatalf("expected no frame yet, got ok=%v err=%v", ok, err)
	}
	p.Push([]byte("hello"))
	f, ok, err := p.Next()
	if !ok || err != nil {
		t.Fatalf("expected complete frame, got ok=%v err=%v", ok, err)
	}
	if string(f.Payload) != "hello" {
		t.Fatalf("payload mismatch: %q", f.Payload)
	}
}

func TestParserRejectsOversizedFrame(t *testing.T) {
	p := NewParser(MaxFrameSizeLowerBound)
	hdr := []byte{0xff, 0xff, 0xff, byte(TypeData), 0, 0, 0, 0, 1}
	p.Push(hdr)
	if _, _, err := p.Next(); err == nil {
		t.Fatalf("expected frame size error")
	}
}

func TestParserStreamIDMasksReservedBit(t *testing.T) {
	p := NewParser(DefaultMaxFrameSize)
	p.Push([]byte{0, 0, 0, byte(TypePing), 0, 0x80, 0, 0, 0})
	// PING requires 8-byte payload elsewhere; here we only verify the
	// reserved bit is masked off the stream id for a zero-length frame.
	p.Push(make([]byte, 0))
	f, ok, err := p.Next()
	if !ok || err != nil {
		t.Fatalf("expected frame, got ok=%v err=%v", ok, err)
	}
	if f.StreamID != 0 {
		t.Fatalf("expected reserved bit masked, got streamID=%d", f.StreamID)
	}
}

func TestHeadersContinuationFragmentation(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	block := bytes.Repeat([]byte{0x41}, 100)
	if err := w.WriteHeaders(1, false, block, 30); err != nil {
		t.Fatalf("WriteHeaders: %v", err)
	}

	p := NewParser(DefaultMaxFrameSize)
	p.Push(buf.Bytes())

	var reassembled []byte
	count := 0
	for {
		f, ok, err := p.Next()
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}
		if !ok {
			break
		}
		count++
		reassembled = append(reassembled, f.Payload...)
		if f.Type != TypeHeaders && f.Type != TypeContinuation {
			t.Fatalf("unexpected frame type: %v", f.Type)
		}
	}
	if count != 4 {
		t.Fatalf("expected 4 fragments (30*3+10), got %d", count)
	}
	if !bytes.Equal(reassembled, block) {
		t.Fatalf("reassembled header block mismatch")
	}
}

func TestPaddedDataPayload(t *testing.T) {
	payload := append([]byte{3}, append([]byte("abc"), []byte{0, 0, 0}...)...)
	dp, err := ParseDataPayload(FlagPadded, payload)
	if err != nil {
		t.Fatalf("ParseDataPayload: %v", err)
	}
	if string(dp.Data) != "abc" || dp.PadLength != 3 {
		t.Fatalf("unexpected padded data parse: %+v", dp)
	}
}

func TestPaddedDataPayloadRejectsOverlongPad(t *testing.T) {
	payload := []byte{5, 'a', 'b'}
	if _, err := ParseDataPayload(FlagPadded, payload); err == nil {
		t.Fatalf("expected error for pad length exceeding payload")
	}
}
