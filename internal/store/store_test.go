package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddSongIsIdempotentByFileHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.AddSong(ctx, "Song A", "Artist", "Album", 123.4, "hash-1", "")
	require.NoError(t, err)
	assert.NotZero(t, id1)

	id2, err := s.AddSong(ctx, "Song A Dup", "Someone Else", "", 999, "hash-1", "")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	songs, err := s.GetAllSongs(ctx)
	require.NoError(t, err)
	assert.Len(t, songs, 1)
}

func TestSongExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.SongExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.AddSong(ctx, "Song", "Artist", "", 1, "the-hash", "")
	require.NoError(t, err)

	ok, err = s.SongExists(ctx, "the-hash")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteSongCascadesFingerprints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddSong(ctx, "Song", "Artist", "", 1, "hash-x", "")
	require.NoError(t, err)
	require.NoError(t, s.AddFingerprints(ctx, id, []string{"aaa", "bbb"}, []int{0, 1}))

	_, fpCount, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fpCount)

	require.NoError(t, s.DeleteSong(ctx, id))

	songCount, fpCount, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, songCount)
	assert.Zero(t, fpCount)
}

func TestGetMatchesBatchesAcrossManyHashes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddSong(ctx, "Song", "Artist", "", 1, "hash-y", "")
	require.NoError(t, err)

	const n = 1500 // spans more than one MatchBatchSize chunk
	hashes := make([]string, n)
	anchors := make([]int, n)
	for i := range hashes {
		hashes[i] = fakeHash(i)
		anchors[i] = i
	}
	require.NoError(t, s.AddFingerprints(ctx, id, hashes, anchors))

	matches, err := s.GetMatches(ctx, hashes)
	require.NoError(t, err)
	assert.Len(t, matches, n)
}

func TestEraseAllClearsBothTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.AddSong(ctx, "Song", "Artist", "", 1, "hash-z", "")
	require.NoError(t, err)
	require.NoError(t, s.AddFingerprints(ctx, id, []string{"aaa"}, []int{0}))

	require.NoError(t, s.EraseAll(ctx))

	songCount, fpCount, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, songCount)
	assert.Zero(t, fpCount)
}

func fakeHash(i int) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 20)
	for j := len(b) - 1; j >= 0; j-- {
		b[j] = hexDigits[i%16]
		i /= 16
	}
	return string(b)
}
