package h2

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbergstrom/h2gate/internal/frame"
	"github.com/kbergstrom/h2gate/internal/hpack"
	"github.com/kbergstrom/h2gate/internal/stream"
)

// connectionSpecificHeaders are forbidden in an HTTP/2 message per RFC 7540
// section 8.1.2.2: HTTP/2 carries no hop-by-hop semantics, so a client that
// still sends one of these is malformed.
var connectionSpecificHeaders = map[string]bool{
	"connection":        true,
	"keep-alive":        true,
	"proxy-connection":  true,
	"transfer-encoding": true,
	"upgrade":           true,
}

// requestPseudoHeaders are the only pseudo-headers valid on a request
// (RFC 7540 section 8.1.2.3); ":status" and anything else beginning with
// ":" is a response-only or unknown pseudo-header and must be rejected.
var requestPseudoHeaders = map[string]bool{
	":method":    true,
	":scheme":    true,
	":authority": true,
	":path":      true,
}

func (c *Connection) handleHeaders(ctx context.Context, f frame.Frame) error {
	if f.StreamID == 0 {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "HEADERS on stream 0"}
	}
	if f.StreamID%2 == 0 {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "HEADERS on even (server-reserved) stream id"}
	}

	hp, err := frame.ParseHeadersPayload(f.Flags, f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: err.Error()}
	}
	if hp.Priority != nil {
		if err := c.streams.Priority.UpdateFromFrame(f.StreamID, hp.Priority.StreamDependency, hp.Priority.Weight, hp.Priority.Exclusive); err != nil {
			return err
		}
	}

	endStream := f.Flags.Has(frame.FlagEndStream)
	endHeaders := f.Flags.Has(frame.FlagEndHeaders)

	existing, isExisting := c.streams.Get(f.StreamID)
	isTrailer := false
	if isExisting && existing.HeadersComplete {
		switch existing.State() {
		case stream.StateHalfClosedRemote, stream.StateClosed:
			return &stream.StreamError{StreamID: f.StreamID, Code: frame.ErrCodeStreamClosed, Reason: "HEADERS received after the receiving side already closed"}
		default:
			isTrailer = true
		}
	}

	if !endHeaders {
		c.pending = &pendingHeaders{streamID: f.StreamID, endStream: endStream, isTrailer: isTrailer}
		c.pending.block.Write(hp.HeaderBlock)
		if err := c.checkHeaderListSize(c.pending.block.Len()); err != nil {
			c.pending = nil
			return err
		}
		return nil
	}

	if err := c.checkHeaderListSize(len(hp.HeaderBlock)); err != nil {
		return err
	}
	return c.finishHeaders(ctx, f.StreamID, hp.HeaderBlock, endStream, isTrailer)
}

func (c *Connection) handleContinuation(ctx context.Context, f frame.Frame) error {
	if c.pending == nil || c.pending.streamID != f.StreamID {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "unexpected CONTINUATION"}
	}
	c.pending.block.Write(f.Payload)
	if err := c.checkHeaderListSize(c.pending.block.Len()); err != nil {
		c.pending = nil
		return err
	}

	if !f.Flags.Has(frame.FlagEndHeaders) {
		return nil
	}

	p := c.pending
	c.pending = nil
	return c.finishHeaders(ctx, p.streamID, p.block.Bytes(), p.endStream, p.isTrailer)
}

// checkHeaderListSize rejects an accumulated HEADERS+CONTINUATION block once
// it exceeds the locally advertised SETTINGS_MAX_HEADER_LIST_SIZE, per RFC
// 7540 section 6.5.2. Without this, a client can grow an unbounded header
// block across unlimited CONTINUATION frames (the "CONTINUATION flood"
// resource-exhaustion class).
func (c *Connection) checkHeaderListSize(size int) error {
	if c.cfg.MaxHeaderListSize > 0 && uint32(size) > c.cfg.MaxHeaderListSize {
		return &stream.ConnectionError{Code: frame.ErrCodeCompression, Reason: "header list size exceeds SETTINGS_MAX_HEADER_LIST_SIZE"}
	}
	return nil
}

// validateRequestFields enforces the RFC 7540 section 8.1.2 request
// well-formedness rules HPACK decoding alone does not catch: pseudo-headers
// must precede regular headers and appear at most once, only the four
// request pseudo-headers are legal, :method/:scheme/:path are mandatory and
// :path must be non-empty, header names must already be lowercase, and
// connection-specific headers (including a TE value other than "trailers")
// are rejected.
func validateRequestFields(fields []hpack.HeaderField) error {
	seenPseudo := make(map[string]bool, 4)
	inPseudoSection := true
	var path string

	for _, hf := range fields {
		if strings.HasPrefix(hf.Name, ":") {
			if !inPseudoSection {
				return fmt.Errorf("pseudo-header %q after regular headers", hf.Name)
			}
			if !requestPseudoHeaders[hf.Name] {
				return fmt.Errorf("invalid request pseudo-header %q", hf.Name)
			}
			if seenPseudo[hf.Name] {
				return fmt.Errorf("duplicate pseudo-header %q", hf.Name)
			}
			seenPseudo[hf.Name] = true
			if hf.Name == ":path" {
				path = hf.Value
			}
			continue
		}

		inPseudoSection = false
		if err := validateFieldName(hf.Name, hf.Value); err != nil {
			return err
		}
	}

	for _, required := range []string{":method", ":scheme", ":path"} {
		if !seenPseudo[required] {
			return fmt.Errorf("missing required pseudo-header %q", required)
		}
	}
	if path == "" {
		return fmt.Errorf(":path pseudo-header must not be empty")
	}
	return nil
}

// validateTrailerFields enforces the trailer-specific rule that no
// pseudo-header may appear in a trailer block (RFC 7540 section 8.1.2.1),
// plus the same lowercase/connection-specific-header rules as a request.
func validateTrailerFields(fields []hpack.HeaderField) error {
	for _, hf := range fields {
		if strings.HasPrefix(hf.Name, ":") {
			return fmt.Errorf("pseudo-header %q not allowed in trailers", hf.Name)
		}
		if err := validateFieldName(hf.Name, hf.Value); err != nil {
			return err
		}
	}
	return nil
}

// validateFieldName applies the regular (non-pseudo) header field rules
// shared by requests and trailers: lowercase names, no connection-specific
// headers, and a TE value of only "trailers" (RFC 7540 section 8.1.2.2).
func validateFieldName(name, value string) error {
	if name != strings.ToLower(name) {
		return fmt.Errorf("header name %q is not lowercase", name)
	}
	if connectionSpecificHeaders[name] {
		return fmt.Errorf("connection-specific header %q not allowed", name)
	}
	if name == "te" && value != "trailers" {
		return fmt.Errorf("TE header must be \"trailers\" or absent, got %q", value)
	}
	return nil
}

func (c *Connection) finishHeaders(ctx context.Context, streamID uint32, block []byte, endStream, isTrailer bool) error {
	var fields []hpack.HeaderField
	c.hpackDec.SetEmitFunc(func(hf hpack.HeaderField) { fields = append(fields, hf) })
	if err := c.hpackDec.Decode(block); err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeCompression, Reason: err.Error()}
	}

	if isTrailer {
		if !endStream {
			return &stream.StreamError{StreamID: streamID, Code: frame.ErrCodeProtocol, Reason: "trailers without END_STREAM"}
		}
		if err := validateTrailerFields(fields); err != nil {
			return &stream.StreamError{StreamID: streamID, Code: frame.ErrCodeProtocol, Reason: err.Error()}
		}
		s, ok := c.streams.Get(streamID)
		if !ok {
			return nil
		}
		s.Trailers = fields
		if err := s.OnRecvHeaders(endStream); err != nil {
			return err
		}
		return c.endStream(ctx, s)
	}

	if err := validateRequestFields(fields); err != nil {
		return &stream.StreamError{StreamID: streamID, Code: frame.ErrCodeProtocol, Reason: err.Error()}
	}

	if c.streams.ShouldRefuse(streamID) {
		return &stream.StreamError{StreamID: streamID, Code: frame.ErrCodeRefusedStream, Reason: "stream refused after GOAWAY"}
	}

	s, err := c.streams.CreateStream(streamID)
	if err != nil {
		return err
	}
	s.Writer = c
	s.Headers = fields
	s.HeadersComplete = true

	for _, hf := range fields {
		if hf.Name == "content-length" {
			if n, ok := parseContentLength(hf.Value); ok {
				s.ContentLength = n
			}
		}
	}

	if err := s.OnRecvHeaders(endStream); err != nil {
		return err
	}

	if endStream {
		return c.endStream(ctx, s)
	}
	return nil
}

func parseContentLength(v string) (int64, bool) {
	var n int64
	if v == "" {
		return 0, false
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0, false
		}
		n = n*10 + int64(v[i]-'0')
	}
	return n, true
}

// endStream invokes the handler synchronously once a stream's request is
// fully assembled (END_STREAM observed), pausing frame dispatch for this
// connection's single serial processor until the handler returns — there is
// no intra-connection parallelism.
func (c *Connection) endStream(ctx context.Context, s *stream.Stream) error {
	if err := s.CheckContentLengthOnEnd(); err != nil {
		return err
	}
	_ = ctx
	if err := c.handler.HandleStream(s.Ctx, s); err != nil {
		c.logger.Printf("handler error on stream %d: %v", s.ID, err)
		return c.WriteRSTStream(s.ID, uint32(frame.ErrCodeInternal))
	}
	return nil
}

func (c *Connection) handleData(ctx context.Context, f frame.Frame) error {
	if f.StreamID == 0 {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "DATA on stream 0"}
	}
	dp, err := frame.ParseDataPayload(f.Flags, f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: err.Error()}
	}

	s, ok := c.streams.Get(f.StreamID)
	if !ok {
		if c.streams.IsIdle(f.StreamID) {
			return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "DATA on idle stream"}
		}
		return &stream.StreamError{StreamID: f.StreamID, Code: frame.ErrCodeStreamClosed, Reason: "DATA on closed stream"}
	}

	full := int32(len(f.Payload))
	c.streams.ConnRecvWindow.Consume(full)
	s.RecvWindow.Consume(full)

	endStream := f.Flags.Has(frame.FlagEndStream)
	if err := s.OnRecvData(endStream); err != nil {
		return err
	}
	if err := s.AddRecvData(dp.Data); err != nil {
		return err
	}

	// Replenish both connection and stream windows immediately after
	// accumulating the frame, rather than only the connection window, so a
	// slow-draining stream's handler doesn't starve while sibling streams
	// keep consuming shared connection-level credit.
	c.streams.ConnRecvWindow.Add(full)
	_ = c.framer.WriteWindowUpdate(0, uint32(full))
	s.RecvWindow.Add(full)
	_ = c.framer.WriteWindowUpdate(f.StreamID, uint32(full))

	if endStream {
		return c.endStream(ctx, s)
	}
	return nil
}

func (c *Connection) handleSettings(f frame.Frame) error {
	if f.StreamID != 0 {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "SETTINGS on non-zero stream"}
	}
	if f.Flags.Has(frame.FlagAck) {
		if len(f.Payload) != 0 {
			return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: "SETTINGS ack must be empty"}
		}
		return nil
	}

	settings, err := frame.ParseSettings(f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: err.Error()}
	}

	for _, s := range settings {
		switch s.ID {
		case frame.SettingHeaderTableSize:
			c.hpackEnc.SetMaxDynamicTableSize(int(s.Value))
		case frame.SettingMaxFrameSize:
			if s.Value < frame.MaxFrameSizeLowerBound || s.Value > frame.MaxFrameSizeUpperBound {
				return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "invalid SETTINGS_MAX_FRAME_SIZE"}
			}
			c.peerMaxFrameSize = s.Value
		case frame.SettingInitialWindowSize:
			if s.Value > stream.MaxWindowSize {
				return &stream.ConnectionError{Code: frame.ErrCodeFlowControl, Reason: "invalid SETTINGS_INITIAL_WINDOW_SIZE"}
			}
			old := c.cfg.InitialWindowSize
			delta := int32(s.Value) - old
			c.cfg.InitialWindowSize = int32(s.Value)
			if err := c.streams.ApplyInitialWindowSizeDelta(delta, int32(s.Value)); err != nil {
				return err
			}
			if delta > 0 {
				c.flushAllPending()
			}
		case frame.SettingEnablePush:
			// Server push is never offered; client's value is accepted and ignored.
		case frame.SettingMaxConcurrentStreams, frame.SettingMaxHeaderListSize:
			// Advisory for the peer's own inbound limits; nothing to apply locally.
		}
	}

	return c.framer.WriteSettingsAck()
}

func (c *Connection) handleWindowUpdate(f frame.Frame) error {
	inc, err := frame.ParseWindowUpdate(f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: err.Error()}
	}
	if inc == 0 {
		if f.StreamID == 0 {
			return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "zero WINDOW_UPDATE increment on connection"}
		}
		return &stream.StreamError{StreamID: f.StreamID, Code: frame.ErrCodeProtocol, Reason: "zero WINDOW_UPDATE increment"}
	}

	if f.StreamID == 0 {
		if int64(c.streams.ConnSendWindow.Get())+int64(inc) > int64(stream.MaxWindowSize) {
			return &stream.ConnectionError{Code: frame.ErrCodeFlowControl, Reason: "connection window overflow"}
		}
		c.streams.ConnSendWindow.Add(int32(inc))
		c.flushAllPending()
		return nil
	}

	s, ok := c.streams.Get(f.StreamID)
	if !ok {
		return nil
	}
	if int64(s.SendWindow.Get())+int64(inc) > int64(stream.MaxWindowSize) {
		return &stream.StreamError{StreamID: f.StreamID, Code: frame.ErrCodeFlowControl, Reason: "stream window overflow"}
	}
	s.SendWindow.Add(int32(inc))
	return c.flushPending(s)
}

// flushAllPending resumes sending any buffered response bodies once
// connection-level send credit increases.
func (c *Connection) flushAllPending() {
	c.streams.Range(func(s *stream.Stream) {
		if len(s.OutboundPending) > 0 {
			_ = c.flushPending(s)
		}
	})
}

func (c *Connection) handleRSTStream(f frame.Frame) error {
	if f.StreamID == 0 {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "RST_STREAM on stream 0"}
	}
	code, err := frame.ParseRSTStream(f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: err.Error()}
	}
	if s, ok := c.streams.Get(f.StreamID); ok {
		s.OnRecvRSTStream(uint32(code))
		c.streams.Delete(f.StreamID)
	}
	return nil
}

func (c *Connection) handlePriority(f frame.Frame) error {
	p, err := frame.ParsePriority(f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: err.Error()}
	}
	return c.streams.Priority.UpdateFromFrame(f.StreamID, p.StreamDependency, p.Weight, p.Exclusive)
}

func (c *Connection) handlePing(f frame.Frame) error {
	if f.StreamID != 0 {
		return &stream.ConnectionError{Code: frame.ErrCodeProtocol, Reason: "PING on non-zero stream"}
	}
	data, err := frame.ParsePing(f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: err.Error()}
	}
	if f.Flags.Has(frame.FlagAck) {
		return nil
	}
	return c.framer.WritePing(true, data)
}

func (c *Connection) handleGoAway(f frame.Frame) error {
	lastStreamID, code, _, err := frame.ParseGoAway(f.Payload)
	if err != nil {
		return &stream.ConnectionError{Code: frame.ErrCodeFrameSize, Reason: err.Error()}
	}
	c.logger.Printf("received GOAWAY lastStreamID=%d code=%v", lastStreamID, code)
	c.closed = true
	return nil
}

// WriteResponse implements stream.ResponseWriter: encodes and sends the
// response HEADERS (+ CONTINUATION) and DATA frames for a stream, respecting
// the peer's advertised max frame size and flow-control windows.
// WriteResponse implements stream.ResponseWriter. It may be called more than
// once per stream: the first call sends the response HEADERS, and any call
// after that appends body to the already-open stream, matching the
// multi-chunk writes a streaming (SSE, raw Stream) handler produces.
func (c *Connection) WriteResponse(streamID uint32, status int, headers [][2]string, body []byte, endStream bool) error {
	s, ok := c.streams.Get(streamID)
	if !ok {
		return nil
	}

	if !s.OutboundHeadersSent {
		fields := make([]hpack.HeaderField, 0, len(headers)+1)
		fields = append(fields, hpack.HeaderField{Name: ":status", Value: statusString(status)})
		for _, h := range headers {
			fields = append(fields, hpack.HeaderField{Name: h[0], Value: h[1]})
		}

		block := c.hpackEnc.Encode(fields)
		headersEndStream := endStream && len(body) == 0
		if err := s.OnSendHeaders(headersEndStream); err != nil {
			return err
		}
		if err := c.framer.WriteHeaders(streamID, headersEndStream, block, c.peerMaxFrameSize); err != nil {
			return err
		}
		s.OutboundHeadersSent = true

		if headersEndStream {
			c.streams.Delete(streamID)
			return nil
		}
	}

	s.OutboundPending = append(s.OutboundPending, body...)
	s.OutboundEndStream = endStream
	return c.flushPending(s)
}

// flushPending sends as much of s.OutboundPending as current send-window
// credit (stream and connection) and the peer's max frame size allow,
// leaving any remainder buffered for the next WINDOW_UPDATE to unblock.
func (c *Connection) flushPending(s *stream.Stream) error {
	for len(s.OutboundPending) > 0 {
		chunk := int32(len(s.OutboundPending))
		if pf := int32(c.peerMaxFrameSize); chunk > pf {
			chunk = pf
		}
		if sw := s.SendWindow.Get(); chunk > sw {
			chunk = sw
		}
		if cw := c.streams.ConnSendWindow.Get(); chunk > cw {
			chunk = cw
		}
		if chunk <= 0 {
			return nil
		}

		last := chunk == int32(len(s.OutboundPending))
		end := s.OutboundEndStream && last
		if err := s.OnSendData(); err != nil {
			return err
		}
		if err := c.framer.WriteData(s.ID, end, s.OutboundPending[:chunk]); err != nil {
			return err
		}
		s.SendWindow.Consume(chunk)
		c.streams.ConnSendWindow.Consume(chunk)
		s.OutboundPending = s.OutboundPending[chunk:]

		if end {
			c.streams.Delete(s.ID)
			return nil
		}
	}

	if s.OutboundEndStream && !s.IsClosed() {
		if err := s.OnSendData(); err != nil {
			return err
		}
		if err := c.framer.WriteData(s.ID, true, nil); err != nil {
			return err
		}
		c.streams.Delete(s.ID)
	}
	return nil
}

// WriteRSTStream implements stream.ResponseWriter.
func (c *Connection) WriteRSTStream(streamID uint32, code uint32) error {
	if s, ok := c.streams.Get(streamID); ok {
		s.OnSendRSTStream()
	}
	c.streams.Delete(streamID)
	return c.framer.WriteRSTStream(streamID, frame.ErrCode(code))
}

// IsClosed implements stream.ResponseWriter.
func (c *Connection) IsClosed(streamID uint32) bool {
	s, ok := c.streams.Get(streamID)
	return !ok || s.IsClosed()
}

func statusString(code int) string {
	// Avoid strconv import churn for the hot path; status codes are always
	// a fixed 3 ASCII digits in the HTTP range handled here.
	var b [3]byte
	b[0] = byte('0' + code/100)
	b[1] = byte('0' + (code/10)%10)
	b[2] = byte('0' + code%10)
	return string(b[:])
}
