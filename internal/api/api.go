// Package api adapts the teacher's handlers.go/cmdHandlers.go HTTP
// surface (writeJSON/writeError, requestLogger, corsMiddleware,
// saveUploadedFile) onto SPEC_FULL.md's REST endpoints, plus the
// WebSocket streaming endpoint in ws.go.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"musica/internal/audio"
	"musica/internal/ingest"
	"musica/internal/stream"
	"musica/internal/store"
	"musica/internal/workpool"
	"musica/internal/xerr"
)

const maxUploadSize = 200 << 20 // 200 MB; reference clips, not audiobooks

// Server wires the store and worker pool into the HTTP surface.
type Server struct {
	store       *store.Store
	pool        *workpool.Pool
	corsOrigins []string
}

// NewServer builds a Server. corsOrigins, when non-empty, restricts
// Access-Control-Allow-Origin to those values instead of "*".
func NewServer(st *store.Store, pool *workpool.Pool, corsOrigins []string) *Server {
	return &Server{store: st, pool: pool, corsOrigins: corsOrigins}
}

// Routes returns the fully wrapped handler: CORS, then request
// logging, then the route mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/songs", s.handleListSongs)
	mux.HandleFunc("POST /api/songs", s.handleAddSong)
	mux.HandleFunc("DELETE /api/songs/{id}", s.handleDeleteSong)
	mux.HandleFunc("POST /api/recognize", s.handleRecognize)
	mux.HandleFunc("GET /ws/recognize", s.handleStreamWS)

	return s.corsMiddleware(requestLogger(mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		xerr.Logger().Info("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.corsOrigins) > 0 {
			origin = strings.Join(s.corsOrigins, ", ")
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	songs, fingerprints, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"songs": songs, "fingerprints": fingerprints})
}

type songView struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	Duration   float64 `json:"duration"`
	ArtworkURL string  `json:"artwork_url"`
}

func toSongView(s store.Song) songView {
	return songView{ID: s.ID, Title: s.Title, Artist: s.Artist, Album: s.Album, Duration: s.Duration, ArtworkURL: s.ArtworkURL}
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.store.GetAllSongs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	views := make([]songView, len(songs))
	for i, song := range songs {
		views[i] = toSongView(song)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	tmpPath, cleanup, err := saveUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	override := ingest.Override{
		Title:  r.FormValue("title"),
		Artist: r.FormValue("artist"),
		Album:  r.FormValue("album"),
	}

	result := ingest.File(r.Context(), s.store, tmpPath, override)
	switch {
	case result.Err != nil:
		writeError(w, http.StatusInternalServerError, result.Err.Error())
	case result.Skipped:
		writeError(w, http.StatusConflict, "file already indexed")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":           result.SongID,
			"fingerprints": result.Fingerprints,
		})
	}
}

func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid song id")
		return
	}
	if err := s.store.DeleteSong(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	tmpPath, cleanup, err := saveUploadedFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	wf, err := audio.Decode(tmpPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not decode audio")
		return
	}

	song, confidence, err := stream.Recognize(r.Context(), s.store, wf.Samples, wf.SampleRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	if song == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_match", "message": "no matching track found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "match_found",
		"song":       toSongView(*song),
		"confidence": confidence,
		"source":     "fingerprint",
	})
}

// saveUploadedFile copies the multipart "file" field to a temp file
// and returns its path plus a cleanup func that removes it.
func saveUploadedFile(r *http.Request) (path string, cleanup func(), err error) {
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("no file provided: %w", err)
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "musica-upload-*-"+filepath.Base(header.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, file); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}

	name := tmp.Name()
	renamed := name
	if ext := filepath.Ext(header.Filename); ext != "" && filepath.Ext(name) != ext {
		renamed = name + ext
		if err := os.Rename(name, renamed); err != nil {
			renamed = name
		}
	}

	return renamed, func() { os.Remove(renamed) }, nil
}
