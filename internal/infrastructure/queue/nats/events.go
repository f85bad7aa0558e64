package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

const (
	EventSource        = "prn-reconciler"
	SnapshotEventType  = "prn.batch.snapshot"
	RequestedEventType = "prn.batch.requested"
)

// BatchRequest asks a worker to load identifiers and run them.
type BatchRequest struct {
	RequestID   string   `json:"request_id,omitempty"`
	Source      string   `json:"source,omitempty"`
	Identifiers []string `json:"identifiers"`
}

func encodeSnapshot(snap domain.Snapshot, at time.Time) ([]byte, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(EventSource)
	event.SetType(SnapshotEventType)
	event.SetTime(at)
	if snap.Progress.RunID != "" {
		event.SetSubject(snap.Progress.RunID)
	}
	if err := event.SetData(cloudevents.ApplicationJSON, snap); err != nil {
		return nil, fmt.Errorf("encode snapshot event: %w", err)
	}
	return json.Marshal(event)
}

func encodeRequest(req BatchRequest, at time.Time) ([]byte, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	event := cloudevents.NewEvent()
	event.SetID(req.RequestID)
	event.SetSource(EventSource)
	event.SetType(RequestedEventType)
	event.SetTime(at)
	if err := event.SetData(cloudevents.ApplicationJSON, req); err != nil {
		return nil, fmt.Errorf("encode batch request: %w", err)
	}
	return json.Marshal(event)
}

// decodeRequest accepts a CloudEvents envelope or a bare
// {"identifiers": [...]} body.
func decodeRequest(data []byte) (BatchRequest, error) {
	var peek struct {
		SpecVersion string `json:"specversion"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", err)
	}

	var req BatchRequest
	if peek.SpecVersion != "" {
		var event cloudevents.Event
		if err := json.Unmarshal(data, &event); err != nil {
			return BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", err)
		}
		if event.Type() != RequestedEventType {
			return BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", fmt.Errorf("unexpected event type %q", event.Type()))
		}
		if err := event.DataAs(&req); err != nil {
			return BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", err)
		}
		if req.RequestID == "" {
			req.RequestID = event.ID()
		}
	} else if err := json.Unmarshal(data, &req); err != nil {
		return BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", err)
	}

	cleaned := req.Identifiers[:0]
	for _, id := range req.Identifiers {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	req.Identifiers = cleaned
	if len(req.Identifiers) == 0 {
		return BatchRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode batch request", errors.New("request carries no identifiers"))
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	return req, nil
}
