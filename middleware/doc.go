// Package middleware exposes HTTP adapters that attach a complete
// sessionguard session to each request.
//
// # Guards
//
//   - [Ensure]: resumes the session from its cookie, replacing missing or
//     incomplete sessions and setting the new cookie.
//   - [Require]: admits only requests that already carry a complete
//     session; never creates one.
//
// Handlers read the session with [SessionFromContext], call
// [MarkModified] after changing values, and end it with [DestroySession].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Guard calls. Validation,
// key handling and storage are delegated to sessionguard.Guard.
//
// # What this package must NOT do
//
//   - Parse or sign cookies directly (delegates to Guard).
//   - Access Redis (Guard handles I/O).
//   - Trust forwarded headers for the client address.
package middleware
