// Package internal contains helper utilities that are intentionally private to
// sessionguard, including session ID generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed fixed-window throttle for session creation
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionguard API.
//   - Be imported by any package outside the sessionguard module.
package internal
