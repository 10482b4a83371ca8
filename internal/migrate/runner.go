package migrate

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"soc-website/backend/internal/db"
	"soc-website/backend/internal/telemetry"
)

// DefaultTimeout bounds script execution when Request.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

const instrumentationName = "soc-website/backend/internal/migrate"

// Status is the outcome of a run.
type Status string

const (
	StatusApplied Status = "applied"
	StatusFailed  Status = "failed"
)

// Request names what to apply and where.
type Request struct {
	// DatabaseURL is the connection string; required.
	DatabaseURL string
	// Script is the file name, resolved against the runner's ScriptSource.
	Script string
	// Timeout bounds execution of the script; zero means DefaultTimeout.
	Timeout time.Duration
}

// Report describes a finished run. Err is the same error Run returned.
type Report struct {
	RunID    string
	Script   string // resolved path once known, otherwise the requested name
	Target   string // redacted target identity; empty if the target was invalid
	Status   Status
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Applied reports whether the script ran to completion.
func (r *Report) Applied() bool { return r != nil && r.Status == StatusApplied }

// Runner applies one script per Run call. It holds no per-run state and is safe to reuse sequentially.
type Runner struct {
	provider db.Provider
	scripts  *ScriptSource
	emitter  telemetry.EventEmitter
	logger   *log.Logger
	source   string
	env      string
	now      func() time.Time

	tracer   trace.Tracer
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Runner.
type Option func(*Runner)

// WithEmitter sets where the per-run telemetry event goes.
func WithEmitter(e telemetry.EventEmitter) Option { return func(r *Runner) { r.emitter = e } }

// WithLogger replaces the standard logger used for phase output.
func WithLogger(l *log.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithEnv records the application environment on telemetry events.
func WithEnv(env string) Option { return func(r *Runner) { r.env = env } }

// WithSource sets the telemetry source name (default "soc-migrate").
func WithSource(source string) Option { return func(r *Runner) { r.source = source } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// New returns a Runner that leases connections from provider and reads scripts from scripts.
// Spans and instruments come from the global OTel providers.
func New(provider db.Provider, scripts *ScriptSource, opts ...Option) *Runner {
	r := &Runner{
		provider: provider,
		scripts:  scripts,
		logger:   log.Default(),
		source:   "soc-migrate",
		now:      time.Now,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, o := range opts {
		o(r)
	}

	meter := otel.Meter(instrumentationName)
	runs, err := meter.Int64Counter("migrate.runs",
		metric.WithDescription("Migration runs by outcome."))
	if err != nil {
		r.logger.Printf("migrate: counter migrate.runs: %v", err)
		runs = noop.Int64Counter{}
	}
	duration, err := meter.Float64Histogram("migrate.duration",
		metric.WithDescription("Wall time of a migration run."), metric.WithUnit("s"))
	if err != nil {
		r.logger.Printf("migrate: histogram migrate.duration: %v", err)
		duration = noop.Float64Histogram{}
	}
	r.runs, r.duration = runs, duration
	return r
}

// Run validates req, acquires a handle, reads the script, executes it and releases the handle.
// The returned Report is never nil. The error, when non-nil, is a *ConfigurationError,
// *ScriptReadError or *ExecutionError.
func (r *Runner) Run(ctx context.Context, req Request) (report *Report, err error) {
	report = &Report{
		RunID:   uuid.NewString(),
		Script:  req.Script,
		Status:  StatusFailed,
		Started: r.now(),
	}
	ctx, span := r.tracer.Start(ctx, "migrate.run",
		trace.WithAttributes(attribute.String("migrate.run_id", report.RunID)))
	defer func() {
		report.Duration = r.now().Sub(report.Started)
		report.Err = err
		if err == nil {
			report.Status = StatusApplied
		}
		r.finish(ctx, span, report)
		span.End()
	}()

	target, err := r.validate(req)
	if err != nil {
		return report, err
	}
	report.Target = target.String()
	report.Script = r.scripts.Resolve(req.Script)
	span.SetAttributes(
		attribute.String("db.system", string(target.Engine)),
		attribute.String("db.namespace", target.Database),
		attribute.String("migrate.script", report.Script),
	)

	r.logger.Printf("migrate: connecting to %s", target)
	handle, err := r.acquire(ctx, target, report.Script)
	if err != nil {
		return report, err
	}
	// Deferred after the report defer, so it runs first: the handle is gone before the outcome is reported.
	defer r.release(handle)

	r.logger.Printf("migrate: reading script %s", report.Script)
	script, err := r.read(ctx, req.Script)
	if err != nil {
		return report, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	r.logger.Printf("migrate: executing %s (%d bytes, timeout %s)", script.Path, len(script.Contents), timeout)
	if err = r.exec(ctx, handle, script, timeout); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Runner) validate(req Request) (db.Target, error) {
	target, err := db.ParseTarget(req.DatabaseURL)
	if errors.Is(err, db.ErrMissingTarget) {
		return db.Target{}, &ConfigurationError{Field: "DATABASE_URL", Reason: "is required", Err: err}
	}
	if err != nil {
		return db.Target{}, &ConfigurationError{Field: "DATABASE_URL", Reason: "is malformed", Err: err}
	}
	if strings.TrimSpace(req.Script) == "" {
		return db.Target{}, &ConfigurationError{Field: "MIGRATION_FILE", Reason: "is empty"}
	}
	if req.Timeout < 0 {
		return db.Target{}, &ConfigurationError{Field: "MIGRATION_TIMEOUT", Reason: "must not be negative"}
	}
	return target, nil
}

func (r *Runner) acquire(ctx context.Context, target db.Target, path string) (db.Handle, error) {
	ctx, span := r.tracer.Start(ctx, "migrate.acquire")
	defer span.End()

	handle, err := r.provider.Acquire(ctx, target)
	if err != nil {
		phase := "connect"
		if errors.Is(err, db.ErrLock) {
			phase = "lock"
		}
		code, msg := db.EngineError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, phase)
		return nil, &ExecutionError{
			Path:    path,
			Phase:   phase,
			Code:    code,
			Message: msg,
			Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:     err,
		}
	}
	return handle, nil
}

func (r *Runner) read(ctx context.Context, name string) (*Script, error) {
	_, span := r.tracer.Start(ctx, "migrate.read")
	defer span.End()

	script, err := r.scripts.Read(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, KindScriptRead)
		return nil, err
	}
	span.SetAttributes(attribute.Int("migrate.script_bytes", len(script.Contents)))
	return script, nil
}

func (r *Runner) exec(ctx context.Context, handle db.Handle, script *Script, timeout time.Duration) error {
	ctx, span := r.tracer.Start(ctx, "migrate.exec")
	defer span.End()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := handle.Exec(execCtx, script.Contents)
	if err == nil {
		return nil
	}
	code, msg := db.EngineError(err)
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	if timedOut && code == "" {
		msg = "no response within " + timeout.String() + ": " + msg
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, KindExecution)
	if code != "" {
		span.SetAttributes(attribute.String("db.response.status_code", code))
	}
	return &ExecutionError{
		Path:    script.Path,
		Phase:   "exec",
		Code:    code,
		Message: msg,
		Timeout: timedOut,
		Err:     err,
	}
}

// release returns the handle. A release failure is logged; it does not change the run's outcome.
func (r *Runner) release(handle db.Handle) {
	if err := handle.Release(); err != nil {
		r.logger.Printf("migrate: release connection: %v", err)
		return
	}
	r.logger.Printf("migrate: connection released")
}

func (r *Runner) finish(ctx context.Context, span trace.Span, report *Report) {
	kind := Kind(report.Err)
	attrs := metric.WithAttributes(
		attribute.String("status", string(report.Status)),
		attribute.String("error_kind", kind),
	)
	r.runs.Add(ctx, 1, attrs)
	r.duration.Record(ctx, report.Duration.Seconds(), attrs)

	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, kind)
		r.logger.Printf("migrate: failed: %v", report.Err)
	} else {
		span.SetStatus(codes.Ok, "")
		r.logger.Printf("migrate: applied %s in %s", report.Script, report.Duration.Round(time.Millisecond))
	}

	telemetry.Deliver(r.emitter, r.event(report))
}

func (r *Runner) event(report *Report) *telemetry.Event {
	ev := &telemetry.Event{
		ID:        uuid.NewString(),
		RunID:     report.RunID,
		EventType: telemetry.EventApplied,
		Source:    r.source,
		Env:       r.env,
		Script:    report.Script,
		Target:    report.Target,
		Duration:  report.Duration,
		CreatedAt: report.Started.Add(report.Duration).UTC(),
	}
	if report.Err != nil {
		ev.EventType = telemetry.EventFailed
		ev.ErrorKind = Kind(report.Err)
		ev.Message = report.Err.Error()
		var execErr *ExecutionError
		if errors.As(report.Err, &execErr) {
			ev.ErrorCode = execErr.Code
		}
	}
	return ev
}
