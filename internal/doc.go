// Package internal contains helper utilities that are intentionally private to
// goSession, including secure random generation and the opaque refresh-token
// wire format.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
