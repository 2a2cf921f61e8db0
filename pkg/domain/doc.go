package domain

// domain package contains the domain models and interfaces of modelflow.
//
// `domain/ENTITY` directory has the entity types and the client interface to
// handle them. Their database expressions are in `pkg/db/postgres/ENTITY`.
//
// # Entities
//
// - `model`: A served machine-learning model. Its status follows workflows
// working on it: creating -> active (or failed), and active -> updating -> active.
//
// - `workflow`: Definition of workflows as state graphs, and the Context document
// passed between states. Engines interpreting graphs are in `pkg/engine`, and
// the concrete graphs are in `pkg/workflows/...`.
//
// - `instance`: A running (or finished) workflow for a model.
// It is persisted after every step, so the orchestrator can resume it after restart.
// At most one instance runs for a model at a time.
//
// `domain/errors.go` has sentinel errors shared by the stores.
