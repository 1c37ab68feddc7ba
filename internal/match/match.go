// Package match implements Component F (Matcher): turning a batch of
// stored fingerprint hits into a ranked list of song candidates via
// offset-delta histogram voting, the same technique
// original_source/backend/fingerprint.py's find_match uses.
package match

import (
	"sort"

	"musica/internal/config"
	"musica/internal/fingerprint"
	"musica/internal/store"
)

// Candidate is one song's match result: how many query fingerprints
// aligned at its best-scoring offset, and a 0-100 confidence derived
// from that count.
type Candidate struct {
	SongID     int64
	Offset     int // stored_anchor_time - query_anchor_time at the winning bucket
	Count      int
	Confidence int
}

// Rank buckets query fingerprints against stored matches by
// (song_id, offset) and returns candidates whose winning bucket count
// reaches MinMatchThreshold, ordered by descending count.
//
// query must be keyed the same way fingerprint.Generate returns it:
// one Fingerprint per (hash, anchor_time) pair extracted from the
// sample being identified.
func Rank(query []fingerprint.Fingerprint, hits []store.Match) []Candidate {
	queryAnchor := make(map[string][]int, len(query))
	for _, fp := range query {
		queryAnchor[fp.Hash] = append(queryAnchor[fp.Hash], fp.AnchorTime)
	}

	type bucketKey struct {
		songID int64
		offset int
	}
	counts := make(map[bucketKey]int)

	for _, hit := range hits {
		for _, qAnchor := range queryAnchor[hit.Hash] {
			offset := hit.AnchorTime - qAnchor
			counts[bucketKey{hit.SongID, offset}]++
		}
	}

	best := make(map[int64]bucketKey)
	bestCount := make(map[int64]int)
	for key, count := range counts {
		if count > bestCount[key.songID] {
			bestCount[key.songID] = count
			best[key.songID] = key
		}
	}

	var out []Candidate
	for songID, count := range bestCount {
		if count < config.MinMatchThreshold {
			continue
		}
		out = append(out, Candidate{
			SongID:     songID,
			Offset:     best[songID].offset,
			Count:      count,
			Confidence: confidence(count),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}

// confidence maps a raw aligned-peak count to a 0-100 heuristic score.
// This is not a statistical probability: it is a monotonic, saturating
// function of count chosen so MinMatchThreshold lands well below 100.
func confidence(count int) int {
	c := count * 2
	if c > 100 {
		c = 100
	}
	return c
}
