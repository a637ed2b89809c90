// Package candidate defines proposed sources for an episode and the total
// ordering used to pick among them.
//
// Discovery plugins produce Candidates; Rank orders competitors for one
// episode by a fixed priority chain (name match, container, codec tags,
// size proximity, resolution and release modifiers, publish date) and drops
// disqualified or implausibly small entries outright.
package candidate
