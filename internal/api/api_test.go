package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musica/internal/config"
	"musica/internal/store"
	"musica/internal/workpool"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	pool := workpool.NewPool(2, 4)
	t.Cleanup(pool.Close)
	return NewServer(st, pool, nil)
}

func writeTestWAVBytes(seconds int) []byte {
	sr := config.SampleRate
	n := seconds * sr
	dataSize := n * 2

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sr))
	binary.Write(buf, binary.LittleEndian, uint32(sr*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	for i := 0; i < n; i++ {
		binary.Write(buf, binary.LittleEndian, int16((i%200)*100-10000))
	}
	return buf.Bytes()
}

func multipartSongUpload(t *testing.T, filename string, body []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestHealthAndStats(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats["songs"])
}

func TestAddSongThenDuplicateConflicts(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	body, contentType := multipartSongUpload(t, "Artist - Title.wav", writeTestWAVBytes(3), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/songs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body2, contentType2 := multipartSongUpload(t, "Artist - Title.wav", writeTestWAVBytes(3), nil)
	req2 := httptest.NewRequest(http.MethodPost, "/api/songs", body2)
	req2.Header.Set("Content-Type", contentType2)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestListAndDeleteSong(t *testing.T) {
	s := newTestServer(t)
	handler := s.Routes()

	body, contentType := multipartSongUpload(t, "A - B.wav", writeTestWAVBytes(3), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/songs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := int64(created["id"].(float64))

	listReq := httptest.NewRequest(http.MethodGet, "/api/songs", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)
	var songs []songView
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &songs))
	assert.Len(t, songs, 1)

	delReq := httptest.NewRequest(http.MethodDelete, "/api/songs/"+strconv.FormatInt(id, 10), nil)
	delRec := httptest.NewRecorder()
	handler.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusNoContent, delRec.Code)

	listRec2 := httptest.NewRecorder()
	handler.ServeHTTP(listRec2, httptest.NewRequest(http.MethodGet, "/api/songs", nil))
	var songsAfter []songView
	require.NoError(t, json.Unmarshal(listRec2.Body.Bytes(), &songsAfter))
	assert.Empty(t, songsAfter)
}
