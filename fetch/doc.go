// Package fetch wraps data producers with cache-aside reads, request
// deduplication, per-attempt timeouts and bounded retries.
//
// A request moves through CHECK_DEDUP, CHECK_CACHE, IN_FLIGHT and
// RETRY_WAIT before it settles. Identical concurrent requests share one
// flight; a caller that gives up does not cancel a flight other callers are
// still waiting on.
//
// Fetch issues HTTP requests. Do runs any Producer under the same rules.
// Failures are reported in Response.Err unless WithThrowOnError is set, in
// which case the same error is also returned.
package fetch
