// Package core provides the foundational domain types and interfaces used by
// WealthMesh. It defines:
//
//   - Pending events (the closed union of inputs a session can receive)
//   - Chat interactions and status updates (the externally persisted record)
//   - Transcript messages (the model-facing accepted-message history)
//   - Session snapshots and checkpoint records (restart-with-carryover)
//   - Pluggable stores for persisted history and checkpoints
//
// The package intentionally keeps implementation concerns (persistence,
// dispatch, routing, concrete roles) out of scope, exposing small interfaces
// to enable custom backends and extensions.
package core
