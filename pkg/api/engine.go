package api

import "context"

// Engine registers compiled journeys and runs them.
type Engine interface {
	// Register adds a compiled definition. Registering the same name and
	// version twice is an error.
	Register(def *Definition) error

	// Run executes the latest registered version of a journey to completion.
	// A failed execution returns both the Execution and an *ExecutionError.
	Run(ctx context.Context, name string, input Payload) (*Execution, error)

	// RunVersion executes a specific version of a journey.
	RunVersion(ctx context.Context, name, version string, input Payload) (*Execution, error)

	// Definition returns the latest registered version of a journey.
	Definition(name string) (*Definition, error)

	// Journeys lists the registered journey names in sorted order.
	Journeys() []string

	// Export returns the document of the latest registered version.
	Export(name string) (Document, error)
}
