// Package loki provides a client to push log entries to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"soc-website/backend/internal/telemetry"
)

// jobLabel is the job label attached to every stream pushed by this package.
const jobLabel = "soc-migrate"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label values we emit.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// Emitter pushes each telemetry event as one JSON log line.
type Emitter struct {
	baseURL string
	client  *http.Client
}

// NewEmitter returns an Emitter for baseURL (e.g. http://localhost:3100).
// client may be nil; http.DefaultClient is used then.
func NewEmitter(baseURL string, client *http.Client) *Emitter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Emitter{baseURL: baseURL, client: client}
}

// Emit pushes the event with event_type, source, env and script labels.
func (e *Emitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("loki: encode event: %w", err)
	}
	labels := map[string]string{
		"event_type": event.EventType,
		"source":     event.Source,
		"env":        event.Env,
		"script":     event.Script,
	}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return pushEvent(ctx, e.client, e.baseURL, ts, string(line), labels)
}

// pushEvent sends a single log line to Loki at baseURL. timestamp is the event time; labels are
// added to the stream next to job. Returns an error if the request fails or Loki returns non-2xx.
func pushEvent(ctx context.Context, client *http.Client, baseURL string, timestamp time.Time, line string, labels map[string]string) error {
	if baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = jobLabel
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{fmt.Sprintf("%d", timestamp.UnixNano()), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := strings.TrimSuffix(baseURL, "/") + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
