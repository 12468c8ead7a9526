package h2

import (
	"testing"

	"github.com/kbergstrom/h2gate/internal/hpack"
)

func validRequestFields() []hpack.HeaderField {
	return []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
		{Name: "x-custom", Value: "bar"},
	}
}

func TestValidateRequestFields_Accepted(t *testing.T) {
	if err := validateRequestFields(validRequestFields()); err != nil {
		t.Fatalf("expected a well-formed request to be accepted, got %v", err)
	}
}

func TestValidateRequestFields_UppercaseName(t *testing.T) {
	fields := append(validRequestFields(), hpack.HeaderField{Name: "X-Custom", Value: "bar"})
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for an uppercase header name")
	}
}

func TestValidateRequestFields_ConnectionSpecificHeader(t *testing.T) {
	for _, name := range []string{"connection", "keep-alive", "proxy-connection", "transfer-encoding", "upgrade"} {
		fields := append(validRequestFields(), hpack.HeaderField{Name: name, Value: "x"})
		if err := validateRequestFields(fields); err == nil {
			t.Errorf("expected an error rejecting connection-specific header %q", name)
		}
	}
}

func TestValidateRequestFields_TENotTrailers(t *testing.T) {
	fields := append(validRequestFields(), hpack.HeaderField{Name: "te", Value: "gzip"})
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for a TE header value other than trailers")
	}
}

func TestValidateRequestFields_TETrailersAllowed(t *testing.T) {
	fields := append(validRequestFields(), hpack.HeaderField{Name: "te", Value: "trailers"})
	if err := validateRequestFields(fields); err != nil {
		t.Fatalf("expected TE: trailers to be accepted, got %v", err)
	}
}

func TestValidateRequestFields_PseudoHeaderAfterRegular(t *testing.T) {
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: "x-custom", Value: "bar"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
	}
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for a pseudo-header following a regular header")
	}
}

func TestValidateRequestFields_DuplicatePseudoHeader(t *testing.T) {
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":method", Value: "POST"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
	}
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for a duplicate pseudo-header")
	}
}

func TestValidateRequestFields_RejectsResponsePseudoHeader(t *testing.T) {
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/"},
		{Name: ":status", Value: "200"},
	}
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for a :status pseudo-header on a request")
	}
}

func TestValidateRequestFields_MissingRequiredPseudoHeader(t *testing.T) {
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
	}
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for a missing :path pseudo-header")
	}
}

func TestValidateRequestFields_EmptyPath(t *testing.T) {
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: ""},
	}
	if err := validateRequestFields(fields); err == nil {
		t.Fatal("expected an error for an empty :path pseudo-header")
	}
}

func TestValidateTrailerFields_RejectsPseudoHeader(t *testing.T) {
	fields := []hpack.HeaderField{{Name: ":path", Value: "/"}}
	if err := validateTrailerFields(fields); err == nil {
		t.Fatal("expected an error for a pseudo-header in a trailer block")
	}
}

func TestValidateTrailerFields_AcceptsRegularHeaders(t *testing.T) {
	fields := []hpack.HeaderField{{Name: "x-checksum", Value: "abc123"}}
	if err := validateTrailerFields(fields); err != nil {
		t.Fatalf("expected regular trailer headers to be accepted, got %v", err)
	}
}

func TestValidateTrailerFields_RejectsConnectionSpecificHeader(t *testing.T) {
	fields := []hpack.HeaderField{{Name: "transfer-encoding", Value: "chunked"}}
	if err := validateTrailerFields(fields); err == nil {
		t.Fatal("expected an error for a connection-specific header in a trailer block")
	}
}
