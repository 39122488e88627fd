package journeys

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dataproduct/journeys/internal/engine"
	"github.com/dataproduct/journeys/internal/persistence"
	"github.com/dataproduct/journeys/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Payload              = api.Payload
	Step                 = api.Step
	Stepper              = api.Stepper
	Chain                = api.Chain
	Condition            = api.Condition
	Definition           = api.Definition
	Document             = api.Document
	CompileOption        = api.CompileOption
	Execution            = api.Execution
	Event                = api.Event
	Status               = api.Status
	StepKind             = api.StepKind
	RetryPolicy          = api.RetryPolicy
	ErrorDetail          = api.ErrorDetail
	TaskFunc             = api.TaskFunc
	Invoker              = api.Invoker
	InvokerFunc          = api.InvokerFunc
	Targets              = api.Targets
	BuildError           = api.BuildError
	TaskError            = api.TaskError
	ExecutionError       = api.ExecutionError
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	NewTaskError         = api.NewTaskError
	CloneValue           = api.CloneValue

	Compile     = api.Compile
	WithVersion = api.WithVersion
	WithInputs  = api.WithInputs
	Export      = api.Export

	StringEquals  = api.StringEquals
	BooleanEquals = api.BooleanEquals
	NumericEquals = api.NumericEquals
	IsPresent     = api.IsPresent
	Not           = api.Not
	And           = api.And
	Or            = api.Or
)

// Re-export sentinel errors so callers can use errors.Is without importing
// pkg/api.

var (
	ErrJourneyNotFound       = api.ErrJourneyNotFound
	ErrJourneyAlreadyDefined = api.ErrJourneyAlreadyDefined
	ErrDefinitionMismatch    = api.ErrDefinitionMismatch
	ErrUnknownTarget         = api.ErrUnknownTarget
	ErrExecutionFailed       = api.ErrExecutionFailed
	ErrNonExhaustiveChoice   = api.ErrNonExhaustiveChoice
	ErrUnknownVariant        = api.ErrUnknownVariant
	ErrConflictingWrites     = api.ErrConflictingWrites
	ErrUnguardedCycle        = api.ErrUnguardedCycle
)

// Re-export status values and the error field for convenience.

const (
	StatusRunning   = api.StatusRunning
	StatusSucceeded = api.StatusSucceeded
	StatusFailed    = api.StatusFailed

	ErrorField = api.ErrorField
)

// Start begins a chain with s.
func Start(s Stepper) Chain {
	return api.Start(s)
}

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewEngine returns an Engine that keeps definitions in memory.
func NewEngine(invoker Invoker) Engine {
	return engine.NewEngine(invoker)
}

// NewEngineWithObserver returns an in-memory Engine with the given Observer.
func NewEngineWithObserver(invoker Invoker, obs Observer) Engine {
	return engine.NewEngineWithConfig(engine.Config{Invoker: invoker, Observer: obs})
}

// NewSQLiteEngine returns an Engine that exports registered definitions to
// a SQLite database.
func NewSQLiteEngine(db *sql.DB, invoker Invoker) (Engine, error) {
	return engine.NewSQLiteEngine(db, invoker)
}

// NewPostgresEngine returns an Engine that exports registered definitions to
// PostgreSQL.
func NewPostgresEngine(db *sql.DB, invoker Invoker) (Engine, error) {
	return engine.NewPostgresEngine(db, invoker)
}

// NewRedisEngine returns an Engine that exports registered definitions to
// Redis.
func NewRedisEngine(client *redis.Client, invoker Invoker) Engine {
	return engine.NewRedisEngine(client, invoker)
}

// NewMongoEngine returns an Engine that exports registered definitions to
// MongoDB.
func NewMongoEngine(client *mongo.Client, invoker Invoker) Engine {
	return engine.NewMongoEngine(client, invoker)
}

// EngineConfig selects the definition store and execution limits of an
// engine built by OpenEngine.
type EngineConfig struct {
	// Backend is "memory" (the default), "sqlite", "postgres", "redis" or
	// "mongo".
	Backend string
	DSN     string

	Observer Observer
	// Timeout bounds every execution. Zero leaves it to the caller's context.
	Timeout time.Duration
}

// OpenEngine connects to the configured definition store and returns an
// Engine using it, together with a function that closes the connection.
func OpenEngine(ctx context.Context, cfg EngineConfig, invoker Invoker) (Engine, func() error, error) {
	b, err := persistence.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, nil, err
	}
	store, closeFn, err := persistence.Open(ctx, b, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	eng := engine.NewEngineWithConfig(engine.Config{
		Invoker:  invoker,
		Observer: cfg.Observer,
		Store:    store,
		Timeout:  cfg.Timeout,
	})
	return eng, closeFn, nil
}

// Convenience helpers that just forward to the underlying Engine.

// Run runs the latest version of a registered journey synchronously.
func Run(ctx context.Context, eng Engine, name string, input Payload) (*Execution, error) {
	return eng.Run(ctx, name, input)
}
