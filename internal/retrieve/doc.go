// Package retrieve drives transfer plugins through the per-episode
// escalation protocol.
//
// For each ranked candidate, dispatch walks eligible transfer plugins in
// priority order. A soft failure abandons the candidate; a hard failure
// abandons only the plugin; external cancellation aborts the whole episode.
// When everything is exhausted with only soft failures the episode is
// reported unretrieved without an error, so the caller can tell a handled
// miss from a crash.
package retrieve
