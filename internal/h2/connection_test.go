package h2

import (
	"bytes"
	"context"
	"testing"

	"github.com/kbergstrom/h2gate/internal/frame"
	"github.com/kbergstrom/h2gate/internal/hpack"
	"github.com/kbergstrom/h2gate/internal/stream"
)

func clientFrame(t *testing.T, fn func(w *frame.Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := frame.NewWriter(&buf)
	fn(w)
	return buf.Bytes()
}

func TestConnection_HandleData_PrefaceAndRequest(t *testing.T) {
	var out bytes.Buffer
	handled := make(chan *stream.Stream, 1)
	handler := HandlerFunc(func(_ context.Context, s *stream.Stream) error {
		handled <- s
		return s.Writer.WriteResponse(s.ID, 200, [][2]string{{"content-type", "text/plain"}}, []byte("hi"), true)
	})

	c := NewConnection(&out, handler, DefaultConfig(), nil)

	enc := hpack.NewEncoder(4096)
	block := enc.Encode([]hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "http"},
	})
	headersFrame := clientFrame(t, func(w *frame.Writer) {
		_ = w.WriteHeaders(1, true, block, frame.DefaultMaxFrameSize)
	})

	if err := c.HandleData(context.Background(), []byte(ClientPreface)); err != nil {
		t.Fatalf("preface HandleData() error = %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected server preface (SETTINGS frame) to be written")
	}
	out.Reset()

	if err := c.HandleData(context.Background(), headersFrame); err != nil {
		t.Fatalf("HandleData(headers) error = %v", err)
	}

	select {
	case s := <-handled:
		if s.ID != 1 {
			t.Errorf("expected stream id 1, got %d", s.ID)
		}
	default:
		t.Fatal("expected handler to be invoked")
	}

	if out.Len() == 0 {
		t.Fatal("expected response HEADERS+DATA frames to be written")
	}
}

func TestConnection_HandleData_InvalidPreface(t *testing.T) {
	var out bytes.Buffer
	c := NewConnection(&out, HandlerFunc(func(context.Context, *stream.Stream) error { return nil }), DefaultConfig(), nil)

	if err := c.HandleData(context.Background(), []byte("GET / HTTP/1.1\r\n")); err == nil {
		t.Error("expected error for invalid connection preface")
	}
	if !c.Closed() {
		t.Error("expected connection to be closed after invalid preface")
	}
}

func TestConnection_HandleData_SettingsAck(t *testing.T) {
	var out bytes.Buffer
	c := NewConnection(&out, HandlerFunc(func(context.Context, *stream.Stream) error { return nil }), DefaultConfig(), nil)

	if err := c.HandleData(context.Background(), []byte(ClientPreface)); err != nil {
		t.Fatalf("preface error = %v", err)
	}
	out.Reset()

	settingsFrame := clientFrame(t, func(w *frame.Writer) {
		_ = w.WriteSettings(frame.Setting{ID: frame.SettingInitialWindowSize, Value: 65535})
	})
	if err := c.HandleData(context.Background(), settingsFrame); err != nil {
		t.Fatalf("HandleData(settings) error = %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected a SETTINGS ack to be written")
	}
}

func TestConnection_Shutdown_SendsGoAwayOnce(t *testing.T) {
	var out bytes.Buffer
	c := NewConnection(&out, HandlerFunc(func(context.Context, *stream.Stream) error { return nil }), DefaultConfig(), nil)

	if err := c.Shutdown("bye"); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	n := out.Len()
	if n == 0 {
		t.Fatal("expected GOAWAY to be written")
	}

	if err := c.Shutdown("bye again"); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
	if out.Len() != n {
		t.Error("expected a second Shutdown call to be a no-op")
	}
}
