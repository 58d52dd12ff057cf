// Package rate provides the Redis-backed fixed-window limiter that caps how
// many new sessions a single client may mint.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys live
// under the session store's prefix:
//   - <prefix>:c:<ip> counts session creations per client IP
//
// # What this package must NOT do
//
//   - Decide what happens to a throttled request (the Guard does).
//   - Be imported outside the sessionguard module.
package rate
