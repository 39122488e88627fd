// Package journey builds the three data-product journeys on top of package
// journeys:
//
//   - producer registers a data product, provisions its IAM and Lake
//     Formation access paths in parallel and records it in the catalog.
//   - consumer shares a data product with each of its consumers, routing
//     every consumer on its ConsumerKind.
//   - visibility publishes a data product's visibility tags.
//
// Every journey ends in one "Job Succeeded" and one "Job Failed" step. Every
// top-level task retries once and then routes to "Job Failed".
//
// Simulator provides deterministic in-process collaborators for all
// targets, for examples, tests and the journeyctl simulate command.
package journey
