// Package seal encrypts session-protected state under a session [keys.Key].
//
// Search queries and result element URLs that round-trip through the
// browser are sealed with XChaCha20-Poly1305. Each [Purpose] derives its own
// subkey from the session key with HKDF-SHA256, so a token sealed for one
// purpose never opens under another. Tokens are URL-safe base64 and carry a
// version byte that is authenticated as additional data.
//
// [Reference] derives an opaque, per-session name for server-side artifacts
// (cached queries, for example) with a BLAKE3 keyed hash.
//
// # What this package must NOT do
//
//   - Generate or store session keys (package keys owns generation).
//   - Distinguish failure causes to callers: every rejected token is
//     [ErrSealInvalid].
package seal
