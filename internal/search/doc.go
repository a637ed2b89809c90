// Package search drives discovery plugins and turns their raw results into
// ranked candidates per episode.
//
// Plugins implement Searcher and register in priority order. Dispatch walks
// enabled plugins until one returns usable results, matches unassigned
// entries to episodes by release name, then ranks and filters each
// episode's candidates.
package search
