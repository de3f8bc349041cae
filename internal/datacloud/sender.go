package datacloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// ingestPath is appended to the configured endpoint for batch submission.
const ingestPath = "/engagement/events"

// IngestURL joins a configured endpoint with the ingestion path.
func IngestURL(endpoint string) string {
	return strings.TrimSuffix(endpoint, "/") + ingestPath
}

type IngestRequest struct {
	URL       string
	AppID     string
	RequestID string
	Timeout   time.Duration
	Payload   IngestPayload
}

type IngestPayload struct {
	Events []EventRecord `json:"events"`
	SentAt string        `json:"sent_at"`
}

// EventRecord is the wire form of a single event.
type EventRecord struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt string            `json:"occurred_at"`
}

type IngestResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r IngestResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r IngestResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == 429 {
		return true
	}
	return r.StatusCode >= 500
}

// Sender performs one ingestion POST.
type Sender interface {
	Send(ctx context.Context, req IngestRequest) IngestResult
}

type HTTPSender struct {
	client *http.Client
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{
		client: &http.Client{},
	}
}

// Send posts the event batch.
// Headers: X-App-Id (credential), X-Request-Id (per-batch, for upstream dedupe).
func (s *HTTPSender) Send(ctx context.Context, req IngestRequest) IngestResult {
	start := time.Now()

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return IngestResult{Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, req.URL, bytes.NewReader(body))
	if err != nil {
		return IngestResult{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-App-Id", req.AppID)
	httpReq.Header.Set("X-Request-Id", req.RequestID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return IngestResult{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return IngestResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

// NewEventRecord converts a domain event to its wire form.
func NewEventRecord(ev domain.Event) EventRecord {
	return EventRecord{
		ID:         ev.ID.String(),
		Name:       ev.Name,
		Attributes: ev.Attributes,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
	}
}
