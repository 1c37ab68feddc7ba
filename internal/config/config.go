// Package config loads Musica's environment-driven configuration, the
// way the distilled Python original keeps every tunable in one place.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DSP and matching constants. These mirror backend/config.py exactly;
// they are not environment-configurable because changing them silently
// invalidates every hash already persisted in the store.
const (
	SampleRate         = 22050 // canonical sample rate fingerprinting runs at
	FFTSize            = 4096
	HopLength          = 2048
	PeakNeighborhood   = 20
	AmplitudeThreshold = -60.0 // dB, relative to the clip's own maximum

	FanOut       = 15
	MinTimeDelta = 0
	MaxTimeDelta = 200

	RecognitionWindow   = 8.0 // seconds
	RecognitionInterval = 3.0 // seconds
	MinMatchThreshold   = 8
	MaxListenDuration   = 35.0 // seconds

	MatchBatchSize = 900 // chunk size for IN(...) queries
)

// AudioExtensions lists the file extensions the ingest CLI recognizes.
var AudioExtensions = []string{".mp3", ".wav", ".flac", ".ogg", ".m4a", ".aac", ".wma", ".opus"}

// IsAudioFile reports whether path's extension is one AudioExtensions
// lists, case-insensitively.
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range AudioExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Config holds the process-wide, environment-derived settings.
type Config struct {
	DBPath      string
	SongsDir    string
	Host        string
	Port        string
	CORSOrigins []string
}

// Load reads a .env file if present (never an error if missing) and
// then env vars, falling back to sane defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DBPath:      GetEnv("MUSICA_DB", "musica.db"),
		SongsDir:    GetEnv("MUSICA_SONGS_DIR", "songs"),
		Host:        GetEnv("MUSICA_HOST", "0.0.0.0"),
		Port:        GetEnv("MUSICA_PORT", "8000"),
		CORSOrigins: splitCSV(GetEnv("MUSICA_CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}
}

// GetEnv returns the environment variable named by key, or fallback
// if it is unset or empty.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvInt is GetEnv parsed as an integer, falling back on parse error.
func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
