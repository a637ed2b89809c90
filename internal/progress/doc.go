// Package progress tracks the advancement of a single transfer and
// broadcasts throttled snapshots to any number of subscribers.
//
// Retriever plugins publish raw byte positions as often as they like; the
// State coalesces updates so observers see at most one snapshot per
// reporting interval, plus a final snapshot when the transfer ends.
package progress
