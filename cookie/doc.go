// Package cookie issues and verifies the signed token that carries a session
// ID in the browser cookie.
//
// The token is a compact JWT with a single private claim, "sid". It never
// carries the session key or any session value; those stay in the store.
// Tokens are signed with Ed25519 (default) or HS256.
package cookie
