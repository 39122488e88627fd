package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Callbacks for steps inside Map iterations and Parallel branches arrive
// concurrently. Implementations must be safe for concurrent use and should
// not block.
type Observer interface {
	// OnExecutionStart is called once before the first step runs.
	OnExecutionStart(ctx context.Context, exec *Execution)

	// OnExecutionSucceeded is called when the execution reaches a success
	// terminal.
	OnExecutionSucceeded(ctx context.Context, exec *Execution)

	// OnExecutionFailed is called when the execution ends in failure.
	OnExecutionFailed(ctx context.Context, exec *Execution, err error)

	// OnStepStart is called when a node is entered.
	OnStepStart(ctx context.Context, exec *Execution, step string, kind StepKind)

	// OnStepCompleted is called when a node finishes, for both successes and
	// failures (err != nil).
	OnStepCompleted(ctx context.Context, exec *Execution, step string, kind StepKind, err error, d time.Duration)

	// OnTaskRetry is called before a failed task is invoked again. attempt is
	// the 1-based number of the invocation about to happen.
	OnTaskRetry(ctx context.Context, exec *Execution, step string, attempt int, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnExecutionStart(ctx context.Context, exec *Execution)                {}
func (NoopObserver) OnExecutionSucceeded(ctx context.Context, exec *Execution)            {}
func (NoopObserver) OnExecutionFailed(ctx context.Context, exec *Execution, err error)    {}
func (NoopObserver) OnStepStart(ctx context.Context, exec *Execution, step string, k StepKind) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, exec *Execution, step string, k StepKind, err error, d time.Duration) {
}
func (NoopObserver) OnTaskRetry(ctx context.Context, exec *Execution, step string, attempt int, err error) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	for _, o := range c.observers {
		o.OnExecutionStart(ctx, exec)
	}
}

func (c *CompositeObserver) OnExecutionSucceeded(ctx context.Context, exec *Execution) {
	for _, o := range c.observers {
		o.OnExecutionSucceeded(ctx, exec)
	}
}

func (c *CompositeObserver) OnExecutionFailed(ctx context.Context, exec *Execution, err error) {
	for _, o := range c.observers {
		o.OnExecutionFailed(ctx, exec, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, exec *Execution, step string, k StepKind) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, exec, step, k)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, exec *Execution, step string, k StepKind, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, exec, step, k, err, d)
	}
}

func (c *CompositeObserver) OnTaskRetry(ctx context.Context, exec *Execution, step string, attempt int, err error) {
	for _, o := range c.observers {
		o.OnTaskRetry(ctx, exec, step, attempt, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs execution and step
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnExecutionStart(ctx context.Context, exec *Execution) {
	o.Logger.InfoContext(ctx, "execution_start",
		slog.String("journey", exec.Journey),
		slog.String("execution_id", exec.ID),
	)
}

func (o *LoggingObserver) OnExecutionSucceeded(ctx context.Context, exec *Execution) {
	o.Logger.InfoContext(ctx, "execution_succeeded",
		slog.String("journey", exec.Journey),
		slog.String("execution_id", exec.ID),
	)
}

func (o *LoggingObserver) OnExecutionFailed(ctx context.Context, exec *Execution, err error) {
	o.Logger.ErrorContext(ctx, "execution_failed",
		slog.String("journey", exec.Journey),
		slog.String("execution_id", exec.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, exec *Execution, step string, k StepKind) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("journey", exec.Journey),
		slog.String("execution_id", exec.ID),
		slog.String("step", step),
		slog.String("kind", string(k)),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, exec *Execution, step string, k StepKind, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("journey", exec.Journey),
		slog.String("execution_id", exec.ID),
		slog.String("step", step),
		slog.String("kind", string(k)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnTaskRetry(ctx context.Context, exec *Execution, step string, attempt int, err error) {
	o.Logger.WarnContext(ctx, "task_retry",
		slog.String("journey", exec.Journey),
		slog.String("execution_id", exec.ID),
		slog.String("step", step),
		slog.Int("attempt", attempt),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	executionsStarted   atomic.Int64
	executionsSucceeded atomic.Int64
	executionsFailed    atomic.Int64
	stepsCompleted      atomic.Int64
	stepsFailed         atomic.Int64
	taskRetries         atomic.Int64
	totalStepDuration   atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	ExecutionsStarted   int64
	ExecutionsSucceeded int64
	ExecutionsFailed    int64
	RunningExecutions   int64

	StepsCompleted  int64
	StepsFailed     int64
	TaskRetries     int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnExecutionStart(ctx context.Context, exec *Execution) {
	m.executionsStarted.Add(1)
}

func (m *BasicMetrics) OnExecutionSucceeded(ctx context.Context, exec *Execution) {
	m.executionsSucceeded.Add(1)
}

func (m *BasicMetrics) OnExecutionFailed(ctx context.Context, exec *Execution, err error) {
	m.executionsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, exec *Execution, step string, k StepKind, err error, d time.Duration) {
	// Only successful steps count towards the average duration.
	if err != nil {
		m.stepsFailed.Add(1)
		return
	}
	m.stepsCompleted.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnTaskRetry(ctx context.Context, exec *Execution, step string, attempt int, err error) {
	m.taskRetries.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.executionsStarted.Load()
	succeeded := m.executionsSucceeded.Load()
	failed := m.executionsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		ExecutionsStarted:   started,
		ExecutionsSucceeded: succeeded,
		ExecutionsFailed:    failed,
		RunningExecutions:   started - succeeded - failed,
		StepsCompleted:      steps,
		StepsFailed:         m.stepsFailed.Load(),
		TaskRetries:         m.taskRetries.Load(),
		AvgStepDuration:     avg,
	}
}
