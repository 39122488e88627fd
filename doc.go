// Package journeys provides an embeddable engine for data-product journeys:
// long-running workflows that provision, share and publish a data product by
// calling external collaborators in a fixed order.
//
// # Core Concepts
//
// The programming model is small:
//
//  1. Step and Chain
//  2. Stage and JourneyBuilder
//  3. Engine
//  4. Invoker and Targets
//  5. LocalRunner
//
// # Step and Chain
//
// A Step is one node of a journey: a Task calling a collaborator, a Wait, a
// Choice, a Map over a list, a Parallel fan-out, or a terminal Succeed or
// Fail. Steps are produced by value builders and never change once built:
//
//	register := journeys.Task("Register Tag", "producer.registerTag").
//	    Result("tag").
//	    Retry(journeys.Retry(1)).
//	    Catch(jobFailed)
//
// A Chain is an immutable sequence of steps with one entry. Start and Next
// return new chains, so a chain can be reused as the successor of several
// stages without any of them observing the others.
//
// # Stage and JourneyBuilder
//
// A journey is assembled from stages in reverse: each Stage receives the
// chain built for everything after it (success) and the shared failure
// chain, and returns its own chain wired to both. JourneyBuilder and
// Assemble perform that fold and compile the result into a Definition.
// Compilation rejects malformed graphs before anything runs: dangling
// references, unreachable steps, cycles that never wait, Choices that do not
// cover every variant of a closed set, Map and Parallel steps without a
// failure target, and Parallel branches that write the same field.
//
// PollUntilReady builds the one sanctioned cycle, a readiness poll:
//
//	journeys.PollUntilReady(journeys.Poll{
//	    Execute: journeys.Task("Run Crawler", "producer.runCrawler"),
//	    Check:   journeys.Task("Check Crawler", "producer.checkCrawler").Result("crawler"),
//	    Ready:   journeys.StringEquals("crawler.state", "READY"),
//	}, next)
//
// # Engine
//
// The Engine registers compiled definitions and runs them to completion.
// Every task is invoked through an Invoker, retried according to its policy
// and, once retries are exhausted, routed to its catch chain with the failure
// stored under the "error" field. Map iterations run on a bounded worker
// pool; Parallel branches run concurrently on copies of the payload and
// their declared writes are merged back once all of them succeeded.
//
// Engines can export registered definitions to a store:
//
//   - In-memory
//   - SQLite
//   - Postgres
//   - Redis
//   - MongoDB
//
// # Invoker and Targets
//
// Tasks name their collaborator by an opaque target string. Targets maps
// target names to TaskFuncs; QueueTarget turns an Outbox into a collaborator
// that publishes messages.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, run-request queue and worker for
// development and tests. It is not crash-durable; NewSQLiteBundle gives the
// same shape backed by SQLite.
//
// For the three data-product journeys, see package pkg/journey.
package journeys
