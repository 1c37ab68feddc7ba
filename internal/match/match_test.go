package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musica/internal/config"
	"musica/internal/fingerprint"
	"musica/internal/store"
)

func TestRankPicksWinningOffset(t *testing.T) {
	query := []fingerprint.Fingerprint{
		{Hash: "h1", AnchorTime: 0},
		{Hash: "h2", AnchorTime: 1},
		{Hash: "h3", AnchorTime: 2},
		{Hash: "h4", AnchorTime: 3},
		{Hash: "h5", AnchorTime: 4},
		{Hash: "h6", AnchorTime: 5},
		{Hash: "h7", AnchorTime: 6},
		{Hash: "h8", AnchorTime: 7},
	}
	// All eight hashes (MinMatchThreshold) hit song 1 at a consistent
	// +100 offset, plus a handful of incoherent noise hits on song 2.
	hits := []store.Match{
		{Hash: "h1", SongID: 1, AnchorTime: 100},
		{Hash: "h2", SongID: 1, AnchorTime: 101},
		{Hash: "h3", SongID: 1, AnchorTime: 102},
		{Hash: "h4", SongID: 1, AnchorTime: 103},
		{Hash: "h5", SongID: 1, AnchorTime: 104},
		{Hash: "h6", SongID: 1, AnchorTime: 105},
		{Hash: "h7", SongID: 1, AnchorTime: 106},
		{Hash: "h8", SongID: 1, AnchorTime: 107},
		{Hash: "h1", SongID: 2, AnchorTime: 5},
		{Hash: "h2", SongID: 2, AnchorTime: 900},
	}

	candidates := Rank(query, hits)
	require.NotEmpty(t, candidates)
	assert.Equal(t, int64(1), candidates[0].SongID)
	assert.Equal(t, 100, candidates[0].Offset)
	assert.Equal(t, 8, candidates[0].Count)
}

func TestRankFiltersBelowMinMatchThreshold(t *testing.T) {
	query := []fingerprint.Fingerprint{{Hash: "h1", AnchorTime: 0}}
	hits := []store.Match{{Hash: "h1", SongID: 1, AnchorTime: 50}}

	require.Less(t, 1, config.MinMatchThreshold)
	assert.Empty(t, Rank(query, hits))
}

func TestRankOrdersByDescendingCount(t *testing.T) {
	query := []fingerprint.Fingerprint{
		{Hash: "a", AnchorTime: 0}, {Hash: "b", AnchorTime: 1}, {Hash: "c", AnchorTime: 2},
		{Hash: "d", AnchorTime: 3}, {Hash: "e", AnchorTime: 4}, {Hash: "f", AnchorTime: 5},
		{Hash: "g", AnchorTime: 6}, {Hash: "i", AnchorTime: 7}, {Hash: "j", AnchorTime: 8},
	}
	var hits []store.Match
	// song 10 gets all 9 aligned at offset 0, song 20 gets 8 aligned at offset 0.
	for i, fp := range query {
		hits = append(hits, store.Match{Hash: fp.Hash, SongID: 10, AnchorTime: fp.AnchorTime})
		if i < 8 {
			hits = append(hits, store.Match{Hash: fp.Hash, SongID: 20, AnchorTime: fp.AnchorTime})
		}
	}

	candidates := Rank(query, hits)
	require.Len(t, candidates, 2)
	assert.Equal(t, int64(10), candidates[0].SongID)
	assert.Equal(t, int64(20), candidates[1].SongID)
	assert.Equal(t, 18, candidates[0].Confidence)
}

func TestConfidenceSaturatesAt100(t *testing.T) {
	assert.Equal(t, 16, confidence(8))
	assert.Equal(t, 100, confidence(75))
}
