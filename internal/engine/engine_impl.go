package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dataproduct/journeys/internal/persistence"
	"github.com/dataproduct/journeys/pkg/api"
)

// Sleeper blocks for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// engineImpl is a synchronous, in-process engine. Each Run interprets a
// compiled definition to completion on the calling goroutine, fanning out to
// worker goroutines for Map and Parallel nodes.
type engineImpl struct {
	registry *journeyRegistry
	store    persistence.DefinitionStore

	invoker  api.Invoker
	observer api.Observer
	sleep    Sleeper
	timeout  time.Duration
}

// Config describes how to construct an engineImpl.
type Config struct {
	// Invoker calls the collaborators named by task targets.
	Invoker api.Invoker
	// Observer receives execution and step callbacks. Nil means NoopObserver.
	Observer api.Observer
	// Store, when set, receives the exported document of every registered
	// definition.
	Store persistence.DefinitionStore
	// Sleep is used by Wait nodes and retry backoff. Nil means a timer.
	Sleep Sleeper
	// Timeout bounds every execution. Zero leaves it to the caller's context.
	Timeout time.Duration
}

// NewEngine returns an Engine that keeps definitions in memory only.
func NewEngine(invoker api.Invoker) api.Engine {
	return NewEngineWithConfig(Config{Invoker: invoker})
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	inv := cfg.Invoker
	if inv == nil {
		inv = api.Targets{}
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &engineImpl{
		registry: newJourneyRegistry(),
		store:    cfg.Store,
		invoker:  inv,
		observer: obs,
		sleep:    sleep,
		timeout:  cfg.Timeout,
	}
}

// NewSQLiteEngine creates an engine that exports registered definitions to
// SQLite.
func NewSQLiteEngine(db *sql.DB, invoker api.Invoker) (api.Engine, error) {
	store, err := persistence.NewSQLiteDefinitionStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Invoker: invoker, Store: store}), nil
}

// NewPostgresEngine creates an engine that exports registered definitions to
// Postgres.
func NewPostgresEngine(db *sql.DB, invoker api.Invoker) (api.Engine, error) {
	store, err := persistence.NewPostgresDefinitionStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Invoker: invoker, Store: store}), nil
}

// NewRedisEngine creates an engine that exports registered definitions to
// Redis under the "journeys:" prefix.
func NewRedisEngine(client *redis.Client, invoker api.Invoker) api.Engine {
	return NewEngineWithConfig(Config{
		Invoker: invoker,
		Store:   persistence.NewRedisDefinitionStore(client, "journeys:"),
	})
}

// NewMongoEngine creates an engine that exports registered definitions to
// MongoDB using the default database and collection.
func NewMongoEngine(client *mongo.Client, invoker api.Invoker) api.Engine {
	return NewEngineWithConfig(Config{
		Invoker: invoker,
		Store:   persistence.NewMongoDefinitionStore(client, "", ""),
	})
}

func (e *engineImpl) Register(def *api.Definition) error {
	if def == nil {
		return errors.New("definition is required")
	}
	if def.Name == "" {
		return errors.New("journey name is required")
	}
	if err := api.Validate(def); err != nil {
		return err
	}
	if err := e.checkTargets(def.Name, def); err != nil {
		return err
	}
	if def.Version == "" {
		def.Version = api.DefaultVersion
	}
	if def.Fingerprint == "" {
		def.Fingerprint = api.ComputeFingerprint(def)
	}

	if e.store != nil {
		stored, err := e.store.GetDefinition(def.Name, def.Version)
		switch {
		case err == nil:
			if stored.Fingerprint != def.Fingerprint {
				return fmt.Errorf("%w: %q version %q is stored with fingerprint %s",
					api.ErrDefinitionMismatch, def.Name, def.Version, stored.Fingerprint)
			}
		case errors.Is(err, persistence.ErrDefinitionNotFound):
		default:
			return err
		}
	}

	if err := e.registry.Register(def); err != nil {
		return err
	}

	if e.store != nil {
		if err := e.store.SaveDefinition(api.Export(def)); err != nil {
			return fmt.Errorf("save definition %q: %w", def.Name, err)
		}
	}
	return nil
}

// checkTargets rejects task targets the invoker reports it cannot serve.
func (e *engineImpl) checkTargets(journey string, def *api.Definition) error {
	resolver, ok := e.invoker.(api.TargetResolver)
	if !ok {
		return nil
	}
	for _, name := range def.Order {
		n := def.Nodes[name]
		switch n.Kind() {
		case api.KindTask:
			if !resolver.HasTarget(n.Step.Task.Target) {
				return &api.BuildError{
					Journey: journey,
					Step:    name,
					Err:     fmt.Errorf("%w: %q", api.ErrUnknownTarget, n.Step.Task.Target),
				}
			}
		case api.KindMap:
			if err := e.checkTargets(journey, n.Iterator); err != nil {
				return err
			}
		case api.KindParallel:
			for _, b := range n.Branches {
				if err := e.checkTargets(journey, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *engineImpl) Run(ctx context.Context, name string, input api.Payload) (*api.Execution, error) {
	def, err := e.registry.Latest(name)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, def, input)
}

func (e *engineImpl) RunVersion(ctx context.Context, name, version string, input api.Payload) (*api.Execution, error) {
	def, err := e.registry.Get(name, version)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, def, input)
}

func (e *engineImpl) Definition(name string) (*api.Definition, error) {
	return e.registry.Latest(name)
}

func (e *engineImpl) Journeys() []string {
	return e.registry.Names()
}

func (e *engineImpl) Export(name string) (api.Document, error) {
	def, err := e.registry.Latest(name)
	if err != nil {
		return api.Document{}, err
	}
	return api.Export(def), nil
}

func (e *engineImpl) execute(ctx context.Context, def *api.Definition, input api.Payload) (*api.Execution, error) {
	if input == nil {
		input = api.Payload{}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	exec := &api.Execution{
		ID:        uuid.NewString(),
		Journey:   def.Name,
		Version:   def.Version,
		Status:    api.StatusRunning,
		Input:     input.Clone(),
		StartedAt: time.Now().UTC(),
	}
	r := &run{engine: e, exec: exec}

	r.record(api.Event{Type: api.EventExecutionStarted})
	e.observer.OnExecutionStart(ctx, exec)

	out, fail := r.runScope(ctx, def, "", input.Clone())

	exec.Output = out
	exec.FinishedAt = time.Now().UTC()

	if fail != nil {
		detail := fail.detail
		exec.Status = api.StatusFailed
		exec.Error = &detail
		r.record(api.Event{Type: api.EventExecutionFailed, Step: fail.step, Detail: detail.Error})
		e.observer.OnExecutionFailed(ctx, exec, fail)
		return exec, &api.ExecutionError{
			Journey: def.Name,
			Step:    fail.step,
			Detail:  detail,
			Err:     fail.err,
		}
	}

	exec.Status = api.StatusSucceeded
	r.record(api.Event{Type: api.EventExecutionSucceeded})
	e.observer.OnExecutionSucceeded(ctx, exec)
	return exec, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
