package h1

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"github.com/kbergstrom/h2gate/internal/h2"
	"github.com/kbergstrom/h2gate/internal/hpack"
	"github.com/kbergstrom/h2gate/internal/stream"
	"github.com/panjf2000/gnet/v2"
)

// defaultWindowSize sizes the single synthetic stream every HTTP/1.1 request
// is mapped onto; HTTP/1.1 has no flow control of its own, so these windows
// exist only so stream.Stream's bookkeeping stays uniform across h1 and h2.
const defaultWindowSize = 1 << 20

// Connection represents an HTTP/1.1 connection over gnet.
type Connection struct {
	conn        gnet.Conn
	parser      *Parser
	writer      *ResponseWriter
	handler     h2.Handler
	buffer      *bytes.Buffer
	logger      *log.Logger
	ctx         context.Context
	req         Request
	maxBodySize int64
	nextStreamID uint32
}

// h1FastAdapter is a minimal interface to call the H1 fast-path on the adapter without importing pkg/h2gate
type h1FastAdapter interface {
	HandleH1Fast(ctx context.Context, method, path, authority string, reqHeaders [][2]string, body []byte, write func(status int, headers [][2]string, body []byte) error) error
}

// NewConnection creates a new HTTP/1.1 connection.
func NewConnection(ctx context.Context, c gnet.Conn, handler h2.Handler, logger *log.Logger, maxBodySize int64) *Connection {
	return &Connection{
		conn:         c,
		parser:       NewParser(),
		writer:       NewResponseWriter(c, logger, true),
		handler:      handler,
		buffer:       new(bytes.Buffer),
		logger:       logger,
		ctx:          ctx,
		maxBodySize:  maxBodySize,
		nextStreamID: 1,
	}
}

// HandleData processes incoming HTTP/1.1 data.
func (c *Connection) HandleData(data []byte) error {
	// Fast-path: if there is no pending leftover, parse directly from incoming buffer to avoid copy
	if c.buffer.Len() == 0 {
		// Support multiple pipelined requests in the same incoming buffer
		offset := 0
		for offset < len(data) {
			c.parser.noStringHeaders = true
			c.parser.Reset(data[offset:])
			c.req.Reset()
			req := &c.req
			consumed, err := c.parser.ParseRequest(req)
			if err != nil {
				c.logger.Printf("Parse error: %v", err)
				return c.sendError(400, "Bad Request")
			}

			if consumed == 0 {
				// Incomplete headers, copy the remainder for next OnTraffic
				c.buffer.Write(data[offset:])
				return nil
			}

			if err := c.checkBodySize(req); err != nil {
				return c.sendError(413, "Payload Too Large")
			}

			// Determine if a body is required; if so, fall back to buffered path
			bodyNeeded := int64(0)
			if req.ChunkedEncoding {
				bodyNeeded = -1
			} else if req.ContentLength > 0 {
				bodyNeeded = req.ContentLength
			}

			if bodyNeeded > 0 || bodyNeeded == -1 {
				// Copy the remainder (including already parsed headers) to buffer and use standard path
				c.buffer.Write(data[offset:])
				break
			}

			// No body: handle request directly using fast adapter when available
			c.writer.Reset(req.KeepAlive)
			if adapter, ok := c.handler.(h1FastAdapter); ok {
				writeFn := func(status int, headers [][2]string, body []byte) error {
					return c.writer.WriteResponse(status, headers, body, true)
				}
				// For no-body and common GET paths, avoid passing headers slice to minimize copies
				if len(req.Headers) == 0 || (req.Method == "GET" && !req.ChunkedEncoding && req.ContentLength <= 0) {
					if err := adapter.HandleH1Fast(c.ctx, req.Method, req.Path, req.Host, nil, nil, writeFn); err != nil {
						c.logger.Printf("Handler error: %v", err)
						return c.sendError(500, "Internal Server Error")
					}
				} else if err := adapter.HandleH1Fast(c.ctx, req.Method, req.Path, req.Host, req.Headers, nil, writeFn); err != nil {
					c.logger.Printf("Handler error: %v", err)
					return c.sendError(500, "Internal Server Error")
				}
			} else {
				s := c.requestToStream(req, nil)
				if err := c.handler.HandleStream(c.ctx, s); err != nil {
					c.logger.Printf("Handler error: %v", err)
					return c.sendError(500, "Internal Server Error")
				}
			}
			if !req.KeepAlive {
				return fmt.Errorf("connection close requested")
			}

			// Advance to parse any subsequent pipelined request
			offset += consumed
			if offset >= len(data) {
				return nil
			}
		}
		// If we broke due to body or incomplete header, continue with buffered parse below
	} else {
		// There is pending leftover: append and parse from buffer
		c.buffer.Write(data)
	}

	// Buffered path: parse from accumulated buffer
	for c.buffer.Len() > 0 {
		c.parser.noStringHeaders = true
		c.parser.Reset(c.buffer.Bytes())
		c.req.Reset()
		req := &c.req
		consumed, err := c.parser.ParseRequest(req)
		if err != nil {
			c.logger.Printf("Parse error: %v", err)
			return c.sendError(400, "Bad Request")
		}

		if consumed == 0 {
			// Need more data
			break
		}

		if err := c.checkBodySize(req); err != nil {
			return c.sendError(413, "Payload Too Large")
		}

		before := c.buffer.Len()
		if err := c.handleRequest(req, consumed); err != nil {
			return err
		}
		if c.buffer.Len() == before {
			// handleRequest consumed nothing: the body is still incomplete
			break
		}
	}

	return nil
}

// checkBodySize rejects requests whose declared content-length exceeds the
// configured aggregate cap before any body bytes are buffered.
func (c *Connection) checkBodySize(req *Request) error {
	if c.maxBodySize > 0 && req.ContentLength > c.maxBodySize {
		return fmt.Errorf("content-length %d exceeds max body size %d", req.ContentLength, c.maxBodySize)
	}
	return nil
}

// handleRequest processes a complete HTTP/1.1 request.
func (c *Connection) handleRequest(req *Request, headerBytes int) error {
	// Calculate how much body we need
	bodyNeeded := int64(0)
	if req.ChunkedEncoding {
		// For chunked, we'll read chunks as they come
		bodyNeeded = -1
	} else if req.ContentLength > 0 {
		bodyNeeded = req.ContentLength
	}

	var bodyData []byte

	switch {
	case bodyNeeded > 0:
		// Fixed content-length body
		available := int64(c.buffer.Len() - headerBytes)
		if available < bodyNeeded {
			// Need more data, return and wait
			return nil
		}

		// Consume headers and zero-copy slice body directly from buffer
		c.buffer.Next(headerBytes)
		// bytes.Buffer.Bytes() returns underlying slice; read without extra copy by slicing
		buf := c.buffer.Bytes()
		if int64(len(buf)) < bodyNeeded {
			// Fallback: should not happen because available check above, but guard anyway
			bodyData = make([]byte, bodyNeeded)
			_, _ = c.buffer.Read(bodyData)
		} else {
			bodyData = buf[:bodyNeeded]
			// Advance buffer by bodyNeeded without copying
			c.buffer.Next(int(bodyNeeded))
		}
	case bodyNeeded == -1:
		// Chunked encoding - read all chunks
		c.buffer.Next(headerBytes)
		chunks := &bytes.Buffer{}
		chunkCount := 0

		for {
			c.parser.Reset(c.buffer.Bytes())
			chunk, consumed, err := c.parser.ParseChunkedBody()
			if err != nil {
				return c.sendError(400, "Invalid chunked encoding")
			}

			if consumed == 0 {
				// Need more data
				return nil
			}

			c.buffer.Next(consumed)

			if chunk == nil {
				// Last chunk (size 0)
				break
			}

			chunkCount++
			if chunkCount > MaxChunkCount {
				return c.sendError(413, "Payload Too Large")
			}
			chunks.Write(chunk)
			if c.maxBodySize > 0 && int64(chunks.Len()) > c.maxBodySize {
				return c.sendError(413, "Payload Too Large")
			}
		}

		bodyData = chunks.Bytes()
	default:
		// No body
		c.buffer.Next(headerBytes)
	}

	// Fast path: call adapter's H1 direct handler when available, otherwise fallback
	if adapter, ok := c.handler.(h1FastAdapter); ok {
		writeFn := func(status int, headers [][2]string, body []byte) error {
			return c.writer.WriteResponse(status, headers, body, true)
		}
		c.writer.Reset(req.KeepAlive)
		if err := adapter.HandleH1Fast(c.ctx, req.Method, req.Path, req.Host, req.Headers, bodyData, writeFn); err != nil {
			c.logger.Printf("Handler error: %v", err)
			return c.sendError(500, "Internal Server Error")
		}
	} else {
		s := c.requestToStream(req, bodyData)
		c.writer.Reset(req.KeepAlive)
		if err := c.handler.HandleStream(c.ctx, s); err != nil {
			c.logger.Printf("Handler error: %v", err)
			return c.sendError(500, "Internal Server Error")
		}
	}

	// If not keep-alive, close connection
	if !req.KeepAlive {
		return fmt.Errorf("connection close requested")
	}

	return nil
}

// requestToStream converts an HTTP/1.1 request to a stream.Stream for the
// shared handler. Every HTTP/1.1 request maps onto its own odd-numbered
// synthetic stream id so a single handler can log/trace h1 and h2 traffic
// uniformly.
func (c *Connection) requestToStream(req *Request, body []byte) *stream.Stream {
	id := c.nextStreamID
	c.nextStreamID += 2

	s := stream.NewStream(id, defaultWindowSize, defaultWindowSize, c.maxBodySize)

	hdrs := make([]hpack.HeaderField, 0, len(req.Headers)+4)
	hdrs = append(hdrs,
		hpack.HeaderField{Name: ":method", Value: req.Method},
		hpack.HeaderField{Name: ":path", Value: req.Path},
		hpack.HeaderField{Name: ":scheme", Value: "http"},
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

	s.Writer = &h1ResponseWriter{writer: c.writer}
	return s
}

// sendError sends an HTTP error response.
func (c *Connection) sendError(status int, message string) error {
	body := []byte(message)
	headers := [][2]string{
		{"content-type", "text/plain; charset=utf-8"},
		{"content-length", fmt.Sprintf("%d", len(body))},
	}

	return c.writer.WriteResponse(status, headers, body, true)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// h1ResponseWriter adapts the HTTP/1.1 response writer to stream.ResponseWriter.
type h1ResponseWriter struct {
	writer *ResponseWriter
}

func (w *h1ResponseWriter) WriteResponse(_ uint32, status int, headers [][2]string, body []byte, endStream bool) error {
	return w.writer.WriteResponse(status, headers, body, endStream)
}

func (w *h1ResponseWriter) WriteRSTStream(_ uint32, _ uint32) error {
	// HTTP/1.1 has no RST_STREAM equivalent; the connection is simply closed
	// by the caller once it observes KeepAlive is false.
	return nil
}

func (w *h1ResponseWriter) IsClosed(_ uint32) bool {
	return false
}
