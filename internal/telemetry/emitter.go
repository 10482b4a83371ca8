package telemetry

import (
	"context"
	"time"
)

// Event types emitted once per run.
const (
	EventApplied = "migration.applied"
	EventFailed  = "migration.failed"
)

// Event describes the outcome of one migration run. Target is the redacted identity, never the DSN.
type Event struct {
	ID        string        `json:"id"`
	RunID     string        `json:"runId"`
	EventType string        `json:"eventType"`
	Source    string        `json:"source"`
	Env       string        `json:"env,omitempty"`
	Script    string        `json:"script"`
	Target    string        `json:"target,omitempty"`
	ErrorKind string        `json:"errorKind,omitempty"`
	ErrorCode string        `json:"errorCode,omitempty"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"durationNs"`
	CreatedAt time.Time     `json:"createdAt"`
}

// EventEmitter emits telemetry events (e.g. to OTel Logs or Loki). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
