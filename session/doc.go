// Package session provides the session model, the completeness validator,
// a versioned CBOR codec and a Redis-backed session store.
//
// # Validity
//
// A session is valid when every name in [RequiredFields] is present as a
// key in its [Values]. Presence is all that is checked: an empty config or
// auth=false still counts. [IsValid] is a pure predicate and never fails.
//
// # Encoding
//
// Sessions are stored in Redis as a version byte followed by a
// deterministic CBOR document. Unknown versions are rejected on read.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// It does NOT generate keys, issue cookies, or decide when a session must be
// regenerated; those responsibilities belong to the Guard.
//
// # What this package must NOT do
//
//   - Import sessionguard, cookie or middleware (no upward imports).
//   - Log or expose the contents of the "key" field.
package session
