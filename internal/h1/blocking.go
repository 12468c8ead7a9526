package h1

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"

	"github.com/kbergstrom/h2gate/internal/h2"
	"github.com/kbergstrom/h2gate/internal/hpack"
	"github.com/kbergstrom/h2gate/internal/stream"
)

// ServeConn drives one HTTP/1.1 connection synchronously, for listeners
// (TLS-terminated) that hand off a plain net.Conn rather than a gnet.Conn.
// The gnet-based Connection/ResponseWriter pair is tied to AsyncWritev and
// is not reused here; this path trades the batching discipline for a plain
// blocking read/write loop, matching how a TLS-terminated connection is
// inherently one goroutine per socket.
func ServeConn(ctx context.Context, conn net.Conn, handler h2.Handler, logger *log.Logger, maxBodySize int64) {
	defer conn.Close()

	br := bufio.NewReaderSize(conn, 16<<10)
	bw := bufio.NewWriterSize(conn, 16<<10)
	parser := NewParser()
	nextStreamID := uint32(1)

	for {
		req, err := readRequest(br, parser)
		if err != nil {
			return
		}
		if maxBodySize > 0 && req.ContentLength > maxBodySize {
			writeSimpleResponse(bw, 413, "Payload Too Large")
			return
		}

		var body []byte
		switch {
		case req.ChunkedEncoding:
			body, err = readChunkedBody(br, maxBodySize)
			if err != nil {
				writeSimpleResponse(bw, 400, "Invalid chunked encoding")
				return
			}
		case req.ContentLength > 0:
			body = make([]byte, req.ContentLength)
			if _, err := readFull(br, body); err != nil {
				return
			}
		}

		id := nextStreamID
		nextStreamID += 2
		s := stream.NewStream(id, defaultWindowSize, defaultWindowSize, maxBodySize)
		hdrs := make([]hpack.HeaderField, 0, len(req.Headers)+4)
		hdrs = append(hdrs,
			hpack.HeaderField{Name: ":method", Value: req.Method},
			hpack.HeaderField{Name: ":path", Value: req.Path},
			hpack.HeaderField{Name: ":scheme", Value: "https"},
			hpack.HeaderField{Name: ":authority", Value: req.Host},
		)
		for _, h := range req.Headers {
			hdrs = append(hdrs, hpack.HeaderField{Name: h[0], Value: h[1]})
		}
		s.Headers = hdrs
		s.HeadersComplete = true

		endStream := len(body) == 0
		_ = s.OnRecvHeaders(endStream)
		if len(body) > 0 {
			_ = s.OnRecvData(true)
			_ = s.AddRecvData(body)
		}
		s.Writer = &blockingResponseWriter{bw: bw, keepAlive: req.KeepAlive}

		if err := handler.HandleStream(ctx, s); err != nil {
			logger.Printf("handler error: %v", err)
			writeSimpleResponse(bw, 500, "Internal Server Error")
			return
		}
		if err := bw.Flush(); err != nil {
			return
		}
		if !req.KeepAlive {
			return
		}
	}
}

func readRequest(br *bufio.Reader, parser *Parser) (*Request, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return nil, err
		}
	}
	_ = parser

	req := &Request{}
	if err := parseRequestLineBlocking(line, req); err != nil {
		return nil, err
	}
	req.ContentLength = -1
	req.KeepAlive = req.Version == "HTTP/1.1"
	req.Headers = make([][2]string, 0, 16)

	for {
		hl, err := br.ReadSlice('\n')
		if err != nil {
			return nil, err
		}
		trimmed := hl
		for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
			trimmed = trimmed[:len(trimmed)-1]
		}
		if len(trimmed) == 0 {
			break
		}
		colonIdx := -1
		for i, b := range trimmed {
			if b == ':' {
				colonIdx = i
				break
			}
		}
		if colonIdx == -1 {
			return nil, fmt.Errorf("invalid header line")
		}
		name := string(trimSpace(trimmed[:colonIdx]))
		value := string(trimSpace(trimmed[colonIdx+1:]))
		lname := toLowerASCII(name)
		req.Headers = append(req.Headers, [2]string{lname, value})
		switch lname {
		case "host":
			req.Host = value
		case "content-length":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid content-length: %w", err)
			}
			req.ContentLength = n
		case "transfer-encoding":
			if asciiContainsFoldString(value, "chunked") {
				req.ChunkedEncoding = true
				req.ContentLength = -1
			}
		case "connection":
			if asciiContainsFoldString(value, "close") {
				req.KeepAlive = false
			} else if asciiContainsFoldString(value, "keep-alive") {
				req.KeepAlive = true
			}
		}
	}
	if req.Host == "" {
		return nil, fmt.Errorf("missing Host header")
	}
	return req, nil
}

func parseRequestLineBlocking(line []byte, req *Request) error {
	trimmed := line
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	parts := splitN(trimmed, ' ', 3)
	if len(parts) != 3 {
		return fmt.Errorf("invalid request line")
	}
	req.Method = string(parts[0])
	req.Path = string(parts[1])
	req.Version = string(parts[2])
	if req.Version != "HTTP/1.1" && req.Version != "HTTP/1.0" {
		return fmt.Errorf("unsupported HTTP version: %s", req.Version)
	}
	return nil
}

func splitN(b []byte, sep byte, n int) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i < len(b) && len(out) < n-1; i++ {
		if b[i] == sep {
			out = append(out, b[start:i])
			start = i + 1
		}
	}
	out = append(out, b[start:])
	return out
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

func toLowerASCII(s string) string {
	buf := []byte(s)
	for i, c := range buf {
		if 'A' <= c && c <= 'Z' {
			buf[i] = c | 0x20
		}
	}
	return string(buf)
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func readChunkedBody(br *bufio.Reader, maxBodySize int64) ([]byte, error) {
	var out []byte
	chunkCount := 0
	for {
		sizeLine, err := br.ReadSlice('\n')
		if err != nil {
			return nil, err
		}
		sizeLine = trimSpace(sizeLine)
		for i, b := range sizeLine {
			if b == ';' {
				sizeLine = sizeLine[:i]
				break
			}
		}
		size, err := strconv.ParseInt(string(trimSpace(sizeLine)), 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			_, _ = br.ReadSlice('\n')
			return out, nil
		}
		if size > MaxChunkSize {
			return nil, fmt.Errorf("chunk size %d exceeds %d", size, MaxChunkSize)
		}
		chunkCount++
		if chunkCount > MaxChunkCount {
			return nil, fmt.Errorf("chunk count exceeds %d", MaxChunkCount)
		}
		chunk := make([]byte, size)
		if _, err := readFull(br, chunk); err != nil {
			return nil, err
		}
		if _, err := br.ReadSlice('\n'); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		if maxBodySize > 0 && int64(len(out)) > maxBodySize {
			return nil, fmt.Errorf("body exceeds max size %d", maxBodySize)
		}
	}
}

func writeSimpleResponse(bw *bufio.Writer, status int, message string) {
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\ncontent-type: text/plain\r\ncontent-length: %d\r\nconnection: close\r\n\r\n%s",
		status, statusText(status), len(message), message)
	_ = bw.Flush()
}

// blockingResponseWriter implements stream.ResponseWriter over a plain
// bufio.Writer, for TLS-terminated connections. Supports being called more
// than once per stream: the first call sends the status line and headers,
// falling back to chunked transfer-encoding when it isn't also the last.
type blockingResponseWriter struct {
	bw          *bufio.Writer
	keepAlive   bool
	headersSent bool
	chunkedMode bool
}

func (w *blockingResponseWriter) WriteResponse(_ uint32, status int, headers [][2]string, body []byte, endStream bool) error {
	bw := w.bw
	if !w.headersSent {
		w.chunkedMode = !endStream
		fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, statusText(status))
		hasContentLength := false
		for _, h := range headers {
			if h[0] == "content-length" {
				hasContentLength = true
			}
			fmt.Fprintf(bw, "%s: %s\r\n", h[0], h[1])
		}
		switch {
		case w.chunkedMode:
			bw.WriteString("transfer-encoding: chunked\r\n")
		case !hasContentLength:
			fmt.Fprintf(bw, "content-length: %d\r\n", len(body))
		}
		if w.keepAlive {
			bw.WriteString("connection: keep-alive\r\n")
		} else {
			bw.WriteString("connection: close\r\n")
		}
		bw.WriteString("\r\n")
		w.headersSent = true
		w.writeBody(body)
		if endStream && w.chunkedMode {
			bw.WriteString("0\r\n\r\n")
		}
		return nil
	}

	w.writeBody(body)
	if endStream && w.chunkedMode {
		bw.WriteString("0\r\n\r\n")
	}
	return nil
}

func (w *blockingResponseWriter) writeBody(body []byte) {
	if len(body) == 0 {
		return
	}
	if w.chunkedMode {
		fmt.Fprintf(w.bw, "%x\r\n", len(body))
		w.bw.Write(body)
		w.bw.WriteString("\r\n")
		return
	}
	w.bw.Write(body)
}

func (w *blockingResponseWriter) WriteRSTStream(_ uint32, _ uint32) error { return nil }

func (w *blockingResponseWriter) IsClosed(_ uint32) bool { return false }
