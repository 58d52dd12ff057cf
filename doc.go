// Package sessionguard binds a per-user symmetric key to each browser
// session and refuses to serve a request whose session is incomplete.
//
// A session is complete when it carries the four required fields: uuid,
// config, key and auth. Presence is what counts; values may be empty or
// false. Anything less is treated like no session at all and replaced
// with a fresh one, with a new ID and a new key.
//
// # Architecture boundaries
//
// sessionguard is the public surface. It exposes [Guard], [Builder],
// [Config] and value types ([Resolution], [MetricsSnapshot]). Key
// generation lives in keys, authenticated encryption in seal, the data
// model and Redis store in session, and the signed cookie in cookie.
// Audit dispatch and the creation throttle live under internal/.
//
// # What this package must NOT do
//
//   - Log, audit or return key material outside the session values.
//   - Persist a session that has no key.
//   - Regenerate the key of a live, complete session.
//   - Fall back to a weaker random source when the OS source fails.
//
// # Concurrency
//
// Guard methods are safe to call from multiple goroutines after
// [Builder.Build]. Session values are owned by the request that resumed
// them; the Guard never shares a Values map across calls.
package sessionguard
