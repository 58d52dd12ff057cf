// Package keys generates and encodes the per-session symmetric key.
//
// A [Key] is 32 bytes read from the operating system CSPRNG. It is the unit
// of confidentiality for everything a session encrypts (see package seal)
// and is stored in the session under the "key" field as its URL-safe
// base64 form ([Key.Encode]).
//
// # What this package must NOT do
//
//   - Fall back to a non-cryptographic random source.
//   - Log, format with %v, or otherwise expose key bytes outside Encode.
//   - Cache or pool keys between sessions.
package keys
