package metrics

import (
	"errors"
	"fmt"
	"testing"
)

// TestClassifyStatus_TransportErrors feeds the classifier the error
// strings the net/http client actually produces when the ingest
// endpoint is slow, absent, or misconfigured.
func TestClassifyStatus_TransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"client timeout", errors.New(`Post "https://ingest.example.com/engagement/events": context deadline exceeded`), StatusClassTimeout},
		{"response header timeout", errors.New("net/http: timeout awaiting response headers"), StatusClassTimeout},
		{"uppercase timeout", errors.New("request TIMEOUT after 10s"), StatusClassTimeout},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9099: connect: connection refused"), StatusClassConnectionError},
		{"unknown host", errors.New("lookup ingest.wrong.example.com: no such host"), StatusClassConnectionError},
		{"unreachable network", errors.New("connect: network is unreachable"), StatusClassConnectionError},
		{"wrapped dial error", fmt.Errorf("send batch: %w", errors.New("dial tcp: i/o failure")), StatusClassConnectionError},
		{"tls failure", errors.New("x509: certificate signed by unknown authority"), StatusClassOtherError},
		{"truncated body", errors.New("unexpected EOF"), StatusClassOtherError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStatus(0, tt.err); got != tt.want {
				t.Errorf("ClassifyStatus(0, %v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

// TestClassifyStatus_ErrorBeatsStatusCode: a transport error means no
// trustworthy status code, even if one was captured.
func TestClassifyStatus_ErrorBeatsStatusCode(t *testing.T) {
	err := errors.New("context deadline exceeded (Client.Timeout exceeded while awaiting headers)")
	if got := ClassifyStatus(200, err); got != StatusClassTimeout {
		t.Errorf("ClassifyStatus(200, deadline error) = %q, want %q", got, StatusClassTimeout)
	}
}

func TestClassifyStatus_Codes(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, StatusClass2xx},
		{202, StatusClass2xx},
		{299, StatusClass2xx},
		{301, StatusClassOtherError},
		{400, StatusClass4xx},
		{429, StatusClass4xx},
		{499, StatusClass4xx},
		{500, StatusClass5xx},
		{503, StatusClass5xx},
		{0, StatusClassOtherError},
	}

	for _, tt := range tests {
		if got := ClassifyStatus(tt.code, nil); got != tt.want {
			t.Errorf("ClassifyStatus(%d, nil) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestContains_CaseInsensitive(t *testing.T) {
	if !contains("Connection Refused by upstream", "connection refused") {
		t.Error("mixed-case haystack not matched")
	}
	if !contains("deadline exceeded", "deadline exceeded") {
		t.Error("exact match not found")
	}
	if contains("conn reset", "connection") {
		t.Error("matched a substring that is not present")
	}
	if contains("eof", "unexpected eof") {
		t.Error("matched a needle longer than the haystack")
	}
}
