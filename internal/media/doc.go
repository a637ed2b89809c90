// Package media defines the core domain types shared across aerial.
//
// A Series describes a tracked show; an Episode is a single installment with
// a lifecycle status that drives acquisition. The package also owns the
// on-disk naming policy for retrieved files.
package media
