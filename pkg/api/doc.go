// Package api contains the core building blocks of the journeys engine. It
// provides the primitives for declaring journeys, compiling them into
// validated graphs and observing engine behavior.
//
// Most users interact with the higher-level journeys package, which
// re-exports selected types and adds fluent builders. The api package is
// intended for custom integrations and for contributors extending the engine.
//
// # Chains and Steps
//
// A Step is one node of a journey: Task, Wait, Choice, Map, Parallel,
// Succeed or Fail, plus the Ref pseudo-step that points at a node declared
// elsewhere in the same scope. Steps are plain data. A Chain is an immutable
// sequence of steps built with Start and Next; every call returns a new value
// so a chain can be reused as the tail of several branches.
//
// # Compilation
//
// Compile flattens a chain into a Definition: a graph of named nodes with
// resolved successors, catch targets and nested scopes for Map iterators and
// Parallel branches. Compile validates the graph before returning it:
//
//   - every successor exists and every node is reachable
//   - closed-set Choices cover every variant or have a default
//   - Map and Parallel nodes have a failure target
//   - every cycle passes through a Wait node
//   - Parallel branches never write the same payload field
//   - declared task reads are written upstream (when inputs are declared)
//
// Any defect is reported as a *BuildError and no definition is produced.
//
// # Payload
//
// Payload is the document passed between steps. Tasks declare the path they
// read from and the path their result is written to; the engine hands each
// Map item and Parallel branch its own deep copy.
//
// # Observability
//
// The Observer interface is used by engines to report execution and step
// lifecycle events. LoggingObserver and BasicMetrics are ready-made
// implementations; NewCompositeObserver combines several.
package api
