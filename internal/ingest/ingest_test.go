package ingest

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musica/internal/config"
	"musica/internal/store"
)

func writeTestWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	const sr = config.SampleRate
	n := seconds * sr

	dataSize := n * 2
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = appendU32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = appendU32(buf, 16)
	buf = appendU16(buf, 1)
	buf = appendU16(buf, 1)
	buf = appendU32(buf, uint32(sr))
	buf = appendU32(buf, uint32(sr*2))
	buf = appendU16(buf, 2)
	buf = appendU16(buf, 16)
	buf = append(buf, "data"...)
	buf = appendU32(buf, uint32(dataSize))

	for i := 0; i < n; i++ {
		// A sawtooth (200-sample period) so peak detection has something
		// to latch onto.
		v := int16((i % 200) * 100 - 10000)
		buf = appendU16(buf, uint16(v))
	}

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func appendU32(b []byte, v uint32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, v)
	return append(b, tmp...)
}

func appendU16(b []byte, v uint16) []byte {
	tmp := make([]byte, 2)
	binary.LittleEndian.PutUint16(tmp, v)
	return append(b, tmp...)
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ingest-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileIndexesAndIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	path := filepath.Join(t.TempDir(), "Artist - Title.wav")
	writeTestWAV(t, path, 3)

	ctx := context.Background()
	first := File(ctx, s, path, Override{})
	require.NoError(t, first.Err)
	assert.False(t, first.Skipped)
	assert.NotZero(t, first.SongID)

	second := File(ctx, s, path, Override{})
	require.NoError(t, second.Err)
	assert.True(t, second.Skipped)

	songCount, _, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, songCount)
}

func TestFileUsesOverrideMetadata(t *testing.T) {
	s := openTestStore(t)
	path := filepath.Join(t.TempDir(), "Artist - Title.wav")
	writeTestWAV(t, path, 2)

	res := File(context.Background(), s, path, Override{Title: "Custom Title", Artist: "Custom Artist"})
	require.NoError(t, res.Err)

	song, ok, err := s.GetSong(context.Background(), res.SongID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Custom Title", song.Title)
	assert.Equal(t, "Custom Artist", song.Artist)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
	assert.Equal(t, "", firstNonEmpty("", "", ""))
}

func TestWalkDirectoryProcessesEveryFile(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "One - First.wav"), 2)
	writeTestWAV(t, filepath.Join(dir, "Two - Second.wav"), 3) // different length, so a different MD5
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("not audio"), 0o644))

	results, err := Walk(context.Background(), s, dir, Override{})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	songCount, _, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, songCount)
}
