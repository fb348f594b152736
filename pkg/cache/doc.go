// Package cache provides the advisory blocked-email cache.
//
// The cache only absorbs repeated public blocked-email probes; the
// database stays authoritative and every security decision re-checks it.
// Entries carry a short TTL and any Redis failure degrades to a miss.
package cache
