// Package library persists the series catalog and episode state in SQLite.
//
// The store is the single durable source of truth: the daemon reads
// identity, airdates, and statuses from it and writes back status,
// filename, and resume information as acquisition side effects.
package library
