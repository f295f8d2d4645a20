// Package store implements the Redis-backed session backend: session record
// persistence, atomic refresh-token rotation, the per-user handle index,
// signing-key storage with rotation, and the persisted handshake snapshot.
//
// # Key layout
//
//	<prefix>:s:<handle>   JSON session record, TTL = refresh-token validity
//	<prefix>:u:<userId>   set of session handles per user
//	<prefix>:keys         JSON signing-key list, newest first
//	<prefix>:handshake    JSON handshake snapshot
//
// # Architecture boundaries
//
// This package owns persistence and the atomicity of rotation. It does NOT
// interpret tokens, evaluate grants, or decide theft semantics — the recipe
// maps ErrRefreshReuse to its own error model.
package store
