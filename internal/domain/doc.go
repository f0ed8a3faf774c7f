// Package domain defines the core business types for the mailblast delivery
// engine.
//
// Types in this package are pure value objects with no behavior beyond small
// pure helpers. They are the shared language between the queue, the engine,
// the store, and the HTTP layer.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Constants and enums belong here
package domain
