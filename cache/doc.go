// Package cache provides a tiered cache: a volatile in-process LRU, a
// client-durable store, and a shared remote store, coordinated by Manager.
//
// Reads fall through the tiers from cheapest to most expensive and promote
// hits into the cheaper tiers. A promoted copy never outlives the entry it
// was copied from. Writes go to every tier at or below the
// declared Priority. Failures in the durable tiers are logged and degrade to
// misses; they never reach the caller.
//
// Durable tiers hold JSON, so a value read back from them is a
// json.RawMessage. Use Decode or GetAs to recover a typed value regardless
// of which tier answered.
package cache
