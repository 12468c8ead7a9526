package h2gate

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogger_Middleware(t *testing.T) {
	logger := Logger()

	called := false
	handler := HandlerFunc(func(ctx *Context) error {
		called = true
		return ctx.String(200, "ok")
	})

	wrapped := logger(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	if !called {
		t.Error("Expected handler to be called")
	}
}

func TestRecovery_Middleware(t *testing.T) {
	recovery := Recovery()

	handler := HandlerFunc(func(_ *Context) error {
		panic("test panic")
	})

	wrapped := recovery(handler)

	s := newTestStream(1, nil)
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	// Should not panic
	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Logf("ServeHTTP2() error = %v (expected for panic recovery)", err)
	}

	if ctx.Status() != 500 {
		t.Errorf("Expected status 500 after panic, got %d", ctx.Status())
	}
}

func TestRecovery_NormalFlow(t *testing.T) {
	recovery := Recovery()

	called := false
	handler := HandlerFunc(func(ctx *Context) error {
		called = true
		return ctx.String(200, "ok")
	})

	wrapped := recovery(handler)

	s := newTestStream(1, nil)
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	if !called {
		t.Error("Expected handler to be called")
	}

	if ctx.Status() != 200 {
		t.Errorf("Expected status 200, got %d", ctx.Status())
	}
}

func TestCORS_DefaultConfig(t *testing.T) {
	cors := CORS(DefaultCORSConfig())

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := cors(handler)

	s := newTestStream(1, map[string]string{":method": "GET"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	if ctx.responseHeaders.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected Access-Control-Allow-Origin header to be set")
	}

	if ctx.responseHeaders.Get("Access-Control-Allow-Methods") == "" {
		t.Error("Expected Access-Control-Allow-Methods header to be set")
	}

	if ctx.responseHeaders.Get("Access-Control-Allow-Headers") == "" {
		t.Error("Expected Access-Control-Allow-Headers header to be set")
	}
}

func TestCORS_CustomConfig(t *testing.T) {
	config := CORSConfig{
		AllowOrigin:      "https://example.com",
		AllowMethods:     "GET, POST",
		AllowHeaders:     "Content-Type",
		AllowCredentials: true,
		MaxAge:           7200,
	}

	cors := CORS(config)

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := cors(handler)

	s := newTestStream(1, map[string]string{":method": "GET"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	if ctx.responseHeaders.Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Errorf("Expected Access-Control-Allow-Origin https://example.com, got %s",
			ctx.responseHeaders.Get("Access-Control-Allow-Origin"))
	}

	if ctx.responseHeaders.Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected Access-Control-Allow-Credentials to be true")
	}

	if ctx.responseHeaders.Get("Access-Control-Max-Age") != "7200" {
		t.Errorf("Expected Access-Control-Max-Age 7200, got %s",
			ctx.responseHeaders.Get("Access-Control-Max-Age"))
	}
}

func TestCORS_OptionsRequest(t *testing.T) {
	cors := CORS(DefaultCORSConfig())

	handlerCalled := false
	handler := HandlerFunc(func(ctx *Context) error {
		handlerCalled = true
		return ctx.String(200, "ok")
	})

	wrapped := cors(handler)

	s := newTestStream(1, map[string]string{":method": "OPTIONS"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	if handlerCalled {
		t.Error("Expected handler not to be called for OPTIONS request")
	}
}

func TestRequestID_Middleware(t *testing.T) {
	requestID := RequestID()

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := requestID(handler)

	s := newTestStream(1, nil)
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}
}

func TestRequestID_ExistingHeader(t *testing.T) {
	requestID := RequestID()

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := requestID(handler)

	s := newTestStream(1, map[string]string{"x-request-id": "existing-id"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}
}

func TestTimeout_Normal(t *testing.T) {
	timeout := Timeout(1 * time.Second)

	called := false
	handler := HandlerFunc(func(ctx *Context) error {
		called = true
		return ctx.String(200, "ok")
	})

	wrapped := timeout(handler)

	s := newTestStream(1, nil)
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	if !called {
		t.Error("Expected handler to be called")
	}

	if ctx.Status() != 200 {
		t.Errorf("Expected status 200, got %d", ctx.Status())
	}
}

func TestTimeout_Exceeded(t *testing.T) {
	timeout := Timeout(10 * time.Millisecond)

	handler := HandlerFunc(func(ctx *Context) error {
		time.Sleep(100 * time.Millisecond)
		return ctx.String(200, "ok")
	})

	wrapped := timeout(handler)

	s := newTestStream(1, nil)

	var capturedStatus int
	var capturedBody []byte

	writeResponseFunc := func(_ uint32, status int, _ [][2]string, body []byte, _ bool) error {
		capturedStatus = status
		capturedBody = body
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Logf("ServeHTTP2() error = %v (expected for timeout)", err)
	}

	if capturedStatus != 504 {
		t.Errorf("Expected status 504 for timeout, got %d", capturedStatus)
	}

	if !strings.Contains(string(capturedBody), "Gateway Timeout") {
		t.Errorf("Expected 'Gateway Timeout' in response, got %s", string(capturedBody))
	}
}

func TestCompress_Middleware(t *testing.T) {
	compress := Compress()

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := compress(handler)

	s := newTestStream(1, map[string]string{"accept-encoding": "gzip"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rateLimiter := RateLimiter(100)

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := rateLimiter(handler)

	s := newTestStream(1, nil)
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}
}

func TestGenerateRequestID(t *testing.T) {
	id1 := generateRequestID()
	id2 := generateRequestID()

	if id1 == "" {
		t.Error("Expected non-empty request ID")
	}

	if id1 == id2 {
		t.Error("Expected different request IDs")
	}
}

func TestLoggerWithConfig_JSONFormat(t *testing.T) {
	var buf strings.Builder
	config := LoggerConfig{
		Output: &buf,
		Format: "json",
	}
	logger := LoggerWithConfig(config)

	handler := HandlerFunc(func(ctx *Context) error {
		ctx.Set("request-id", "test-123")
		return ctx.String(200, "ok")
	})

	wrapped := logger(handler)

	s := newTestStream(1, map[string]string{":method": "POST", ":path": "/api/users"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "POST") {
		t.Errorf("Expected log to contain method POST, got: %s", output)
	}
	if !strings.Contains(output, "/api/users") {
		t.Errorf("Expected log to contain path /api/users, got: %s", output)
	}
}

func TestLoggerWithConfig_SkipPaths(t *testing.T) {
	var buf strings.Builder
	config := LoggerConfig{
		Output:    &buf,
		Format:    "text",
		SkipPaths: []string{"/health"},
	}
	logger := LoggerWithConfig(config)

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})

	wrapped := logger(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/health"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	_ = wrapped.ServeHTTP2(ctx)

	output := buf.String()
	if output != "" {
		t.Errorf("Expected no log output for skipped path, got: %s", output)
	}
}

func TestCompressWithConfig_Gzip(t *testing.T) {
	t.Skip("Compression requires full request cycle with flush - tested in integration tests")
}

func TestCompressWithConfig_Brotli(t *testing.T) {
	t.Skip("Compression requires full request cycle with flush - tested in integration tests")
}

func TestCompressWithConfig_TooSmall(t *testing.T) {
	config := CompressConfig{
		Level:   6,
		MinSize: 1000, // Larger than response
	}
	compress := CompressWithConfig(config)

	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "small")
	})

	wrapped := compress(handler)

	s := newTestStream(1, map[string]string{"accept-encoding": "gzip"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	encoding := ctx.responseHeaders.Get("content-encoding")
	if encoding != "" {
		t.Errorf("Expected no compression for small response, got %s", encoding)
	}
}

func TestCompressWithConfig_ExcludedType(t *testing.T) {
	config := CompressConfig{
		Level:         6,
		MinSize:       10,
		ExcludedTypes: []string{"image/"},
	}
	compress := CompressWithConfig(config)

	handler := HandlerFunc(func(ctx *Context) error {
		ctx.SetHeader("content-type", "image/png")
		return ctx.String(200, "This is a long image data that should not be compressed")
	})

	wrapped := compress(handler)

	s := newTestStream(1, map[string]string{"accept-encoding": "gzip"})
	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrapped.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("ServeHTTP2() error = %v", err)
	}

	encoding := ctx.responseHeaders.Get("content-encoding")
	if encoding != "" {
		t.Errorf("Expected no compression for excluded type, got %s", encoding)
	}
}

func TestRateLimiterMiddleware_Basic(t *testing.T) {
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "success"})
	})

	middleware := RateLimiter(1)
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test", ":authority": "localhost:8080"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("First request should succeed, got error: %v", err)
	}

	limit := ctx.responseHeaders.Get("x-ratelimit-limit")
	if limit != "1" {
		t.Errorf("Expected x-ratelimit-limit header to be 1, got %s", limit)
	}
}

func TestRateLimiterMiddleware_SkipPaths(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 1,
		SkipPaths:         []string{"/health"},
	}
	middleware := RateLimiterWithConfig(config)
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "success"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/health", ":authority": "localhost:8080"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Skipped path should not be rate limited, got error: %v", err)
	}

	if ctx.statusCode == 429 {
		t.Error("Skipped path should not be rate limited")
	}
}

func TestRateLimiterMiddleware_CustomKeyFunc(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 1,
		KeyFunc: func(_ *Context) string {
			return "custom-key"
		},
	}
	middleware := RateLimiterWithConfig(config)
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "success"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test", ":authority": "localhost:8080"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Request should succeed, got error: %v", err)
	}

	limit := ctx.responseHeaders.Get("x-ratelimit-limit")
	if limit != "1" {
		t.Errorf("Expected x-ratelimit-limit header to be 1, got %s", limit)
	}
}

func TestRateLimiterMiddleware_ExhaustsBurst(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         2,
		KeyFunc: func(_ *Context) string {
			return "fixed-key"
		},
	}
	middleware := RateLimiterWithConfig(config)
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})
	wrappedHandler := middleware(handler)

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}

	var lastStatus int
	for i := 0; i < 3; i++ {
		s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test"})
		ctx := newContext(context.Background(), s, writeResponseFunc)
		if err := wrappedHandler.ServeHTTP2(ctx); err != nil {
			t.Fatalf("request %d: ServeHTTP2() error = %v", i, err)
		}
		lastStatus = ctx.Status()
	}

	if lastStatus != 429 {
		t.Errorf("Expected third request in a burst of 2 to be rate limited (429), got %d", lastStatus)
	}
}

func TestHealthMiddleware_Default(t *testing.T) {
	middleware := Health()
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "test"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/health"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Health endpoint should work, got error: %v", err)
	}

	if ctx.statusCode != 200 {
		t.Errorf("Expected status 200, got %d", ctx.statusCode)
	}
}

func TestHealthMiddleware_CustomHandler(t *testing.T) {
	config := HealthConfig{
		Path: "/custom-health",
		Handler: func(ctx *Context) error {
			return ctx.JSON(200, map[string]interface{}{
				"status":    "healthy",
				"service":   "test-service",
				"timestamp": time.Now().Unix(),
			})
		},
	}
	middleware := HealthWithConfig(config)
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "test"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/custom-health"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Custom health endpoint should work, got error: %v", err)
	}

	if ctx.statusCode != 200 {
		t.Errorf("Expected status 200, got %d", ctx.statusCode)
	}
}

func TestHealthMiddleware_NonHealthEndpoint(t *testing.T) {
	middleware := Health()
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "test"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Non-health endpoint should work, got error: %v", err)
	}

	if ctx.statusCode != 200 {
		t.Errorf("Expected status 200, got %d", ctx.statusCode)
	}
}

func TestDocsMiddleware_Default(t *testing.T) {
	middleware := Docs()
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "test"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/docs"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Docs endpoint should work, got error: %v", err)
	}

	if ctx.statusCode != 200 {
		t.Errorf("Expected status 200, got %d", ctx.statusCode)
	}

	contentType := ctx.responseHeaders.Get("content-type")
	if contentType != "text/html; charset=utf-8" {
		t.Errorf("Expected content-type text/html; charset=utf-8, got %s", contentType)
	}
}

func TestDocsMiddleware_CustomConfig(t *testing.T) {
	config := DocsConfig{
		Path:        "/api-docs",
		Title:       "Custom API",
		Description: "Custom API Documentation",
		Version:     "2.0.0",
		ServerURL:   "https://api.example.com",
		Routes: []RouteInfo{
			{
				Method:      "GET",
				Path:        "/users",
				Summary:     "Get users",
				Description: "Retrieve all users",
				Tags:        []string{"users"},
				Parameters: []ParameterInfo{
					{
						Name:        "limit",
						In:          "query",
						Required:    false,
						Description: "Number of users to return",
						Type:        "integer",
					},
				},
				Responses: map[string]string{
					"200": "Success",
					"400": "Bad Request",
				},
			},
		},
	}
	middleware := DocsWithConfig(config)
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "test"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/api-docs"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Custom docs endpoint should work, got error: %v", err)
	}

	if ctx.statusCode != 200 {
		t.Errorf("Expected status 200, got %d", ctx.statusCode)
	}
}

func TestDocsMiddleware_NonDocsEndpoint(t *testing.T) {
	middleware := Docs()
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.JSON(200, map[string]string{"message": "test"})
	})
	wrappedHandler := middleware(handler)

	s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test"})

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}
	ctx := newContext(context.Background(), s, writeResponseFunc)

	err := wrappedHandler.ServeHTTP2(ctx)
	if err != nil {
		t.Errorf("Non-docs endpoint should work, got error: %v", err)
	}

	if ctx.statusCode != 200 {
		t.Errorf("Expected status 200, got %d", ctx.statusCode)
	}
}

func TestDocsMiddleware_OpenAPISpecGeneration(t *testing.T) {
	config := DocsConfig{
		Title:        "Test API",
		Description:  "Test API Documentation",
		Version:      "1.0.0",
		ServerURL:    "http://localhost:8080",
		ContactName:  "Test Contact",
		ContactEmail: "test@example.com",
		LicenseName:  "MIT",
		LicenseURL:   "https://opensource.org/licenses/MIT",
		Routes: []RouteInfo{
			{
				Method:      "GET",
				Path:        "/users",
				Summary:     "Get users",
				Description: "Retrieve all users",
				Tags:        []string{"users"},
				Parameters: []ParameterInfo{
					{
						Name:        "limit",
						In:          "query",
						Required:    false,
						Description: "Number of users to return",
						Type:        "integer",
					},
				},
				Responses: map[string]string{
					"200": "Success",
					"400": "Bad Request",
				},
			},
			{
				Method:      "POST",
				Path:        "/users",
				Summary:     "Create user",
				Description: "Create a new user",
				Tags:        []string{"users"},
				Responses: map[string]string{
					"201": "Created",
					"400": "Bad Request",
				},
			},
		},
	}

	spec := generateOpenAPISpec(config)

	if spec["openapi"] != "3.0.0" {
		t.Error("OpenAPI version should be 3.0.0")
	}

	info, ok := spec["info"].(map[string]interface{})
	if !ok {
		t.Fatal("Info section should be present")
	}

	if info["title"] != "Test API" {
		t.Error("Title should match config")
	}
	if info["description"] != "Test API Documentation" {
		t.Error("Description should match config")
	}
	if info["version"] != "1.0.0" {
		t.Error("Version should match config")
	}

	contact, ok := info["contact"].(map[string]interface{})
	if !ok {
		t.Fatal("Contact section should be present")
	}
	if contact["name"] != "Test Contact" {
		t.Error("Contact name should match config")
	}
	if contact["email"] != "test@example.com" {
		t.Error("Contact email should match config")
	}

	license, ok := info["license"].(map[string]interface{})
	if !ok {
		t.Fatal("License section should be present")
	}
	if license["name"] != "MIT" {
		t.Error("License name should match config")
	}
	if license["url"] != "https://opensource.org/licenses/MIT" {
		t.Error("License URL should match config")
	}

	servers, ok := spec["servers"].([]map[string]interface{})
	if !ok {
		t.Fatal("Servers section should be present")
	}
	if len(servers) != 1 {
		t.Error("Should have one server")
	}
	if servers[0]["url"] != "http://localhost:8080" {
		t.Error("Server URL should match config")
	}

	paths, ok := spec["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("Paths section should be present")
	}

	usersPath, ok := paths["/users"].(map[string]interface{})
	if !ok {
		t.Fatal("Users path should be present")
	}

	getOp, ok := usersPath["get"].(map[string]interface{})
	if !ok {
		t.Fatal("GET operation should be present")
	}
	if getOp["summary"] != "Get users" {
		t.Error("GET summary should match")
	}

	postOp, ok := usersPath["post"].(map[string]interface{})
	if !ok {
		t.Fatal("POST operation should be present")
	}
	if postOp["summary"] != "Create user" {
		t.Error("POST summary should match")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	config := RateLimiterConfig{
		RequestsPerSecond: 100,
		BurstSize:         10,
		KeyFunc: func(_ *Context) string {
			return "shared-key"
		},
	}
	middleware := RateLimiterWithConfig(config)
	handler := HandlerFunc(func(ctx *Context) error {
		return ctx.String(200, "ok")
	})
	wrappedHandler := middleware(handler)

	writeResponseFunc := func(_ uint32, _ int, _ [][2]string, _ []byte, _ bool) error {
		return nil
	}

	var wg sync.WaitGroup
	allowedCount := 0
	var mu sync.Mutex

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newTestStream(1, map[string]string{":method": "GET", ":path": "/test"})
			ctx := newContext(context.Background(), s, writeResponseFunc)
			if err := wrappedHandler.ServeHTTP2(ctx); err != nil {
				return
			}
			mu.Lock()
			if ctx.Status() != 429 {
				allowedCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()

	if allowedCount < 10 {
		t.Errorf("Expected at least 10 allowed requests (burst size), got %d", allowedCount)
	}
}
