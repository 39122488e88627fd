package journeys

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenEngine_Memory(t *testing.T) {
	eng, closeFn, err := OpenEngine(context.Background(), EngineConfig{}, Targets{
		"visibility.assignTags": func(context.Context, Payload) (any, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer closeFn()

	visibilityJourney("visibility.assignTags").MustRegister(eng)
	if got := eng.Journeys(); len(got) != 1 || got[0] != "visibility" {
		t.Fatalf("Journeys() = %v", got)
	}
}

func TestOpenEngine_SQLiteExportsDefinitions(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "definitions.db")
	ctx := context.Background()
	invoker := InvokerFunc(func(context.Context, string, Payload) (any, error) { return nil, nil })

	eng, closeFn, err := OpenEngine(ctx, EngineConfig{Backend: "sqlite", DSN: dsn, Observer: NewLoggingObserver(nil)}, invoker)
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	visibilityJourney("visibility.assignTags").MustRegister(eng)
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A second engine on the same file sees the stored definition and
	// rejects a different structure under the same version.
	eng, closeFn, err = OpenEngine(ctx, EngineConfig{Backend: "sqlite", DSN: dsn}, invoker)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeFn()

	err = visibilityJourney("visibility.publishTags").Register(eng)
	if !errors.Is(err, ErrDefinitionMismatch) {
		t.Fatalf("expected ErrDefinitionMismatch, got %v", err)
	}
}

func TestOpenEngine_UnknownBackend(t *testing.T) {
	if _, _, err := OpenEngine(context.Background(), EngineConfig{Backend: "dynamo"}, Targets{}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestRun_UnknownJourney(t *testing.T) {
	eng := NewEngine(Targets{})
	_, err := Run(context.Background(), eng, "missing", nil)
	if !errors.Is(err, ErrJourneyNotFound) {
		t.Fatalf("expected ErrJourneyNotFound, got %v", err)
	}
}

func TestNewEngineWithObserver_RecordsMetrics(t *testing.T) {
	metrics := &BasicMetrics{}
	eng := NewEngineWithObserver(Targets{
		"visibility.assignTags": func(context.Context, Payload) (any, error) { return nil, nil },
	}, metrics)
	visibilityJourney("visibility.assignTags").MustRegister(eng)

	if _, err := Run(context.Background(), eng, "visibility", Payload{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := metrics.Snapshot()
	if snap.ExecutionsStarted != 1 || snap.ExecutionsSucceeded != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestOpenEngine_Timeout(t *testing.T) {
	eng, closeFn, err := OpenEngine(context.Background(), EngineConfig{Timeout: 20 * time.Millisecond}, Targets{
		"visibility.assignTags": func(ctx context.Context, _ Payload) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("OpenEngine: %v", err)
	}
	defer closeFn()
	visibilityJourney("visibility.assignTags").MustRegister(eng)

	exec, err := Run(context.Background(), eng, "visibility", Payload{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if exec.Error == nil || exec.Error.Error != "States.Timeout" {
		t.Fatalf("unexpected error detail %+v", exec.Error)
	}
}
