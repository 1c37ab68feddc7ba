// Package stream implements Component G (Stream Orchestrator): the
// sliding-window session state machine that drives A→D→F repeatedly
// over a growing live buffer, handing fingerprinting off to a worker
// pool so the caller's I/O loop never blocks on it.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"musica/internal/config"
	"musica/internal/fingerprint"
	"musica/internal/match"
	"musica/internal/peaks"
	"musica/internal/spectral"
	"musica/internal/store"
	"musica/internal/waveform"
	"musica/internal/workpool"
	"musica/internal/xerr"
)

var (
	// ErrProtocolViolation is returned by FeedAudio for a frame whose
	// length isn't a multiple of 4 bytes (not a valid run of float32
	// samples).
	ErrProtocolViolation = errors.New("stream: malformed binary frame")
	// ErrSessionTerminal is returned by FeedAudio when called after the
	// session has already reached StateTerminal (e.g. a match was found,
	// or the session was stopped) — a benign race with the async
	// analysis result, not a client error.
	ErrSessionTerminal = errors.New("stream: session already terminated")
)

// State names the stream session state machine's positions (spec.md
// §4.G): waiting_config → buffering → analyzing ↔ buffering →
// terminal.
type State int

const (
	StateWaitingConfig State = iota
	StateBuffering
	StateAnalyzing
	StateTerminal
)

// Status is the discriminator of a server→client stream event.
type Status string

const (
	StatusListening  Status = "listening"
	StatusAnalyzing  Status = "analyzing"
	StatusMatchFound Status = "match_found"
	StatusNoMatch    Status = "no_match"
	StatusError      Status = "error"
)

// Event is one server→client status update. Only the fields relevant
// to Status are populated.
type Event struct {
	Status     Status
	Duration   float64
	Song       *store.Song
	Confidence int
	Message    string
}

// Session drives one live recognition attempt. It owns no socket:
// callers feed it decoded frames and drain Events(); this keeps the
// orchestrator transport-agnostic; the WebSocket handler owns
// encoding/decoding.
type Session struct {
	store *store.Store
	pool  *workpool.Pool

	mu          sync.Mutex
	state       State
	sampleRate  int
	buffer      []float32
	totalFed    int // samples received over the whole session, untouched by trimming
	lastAttempt time.Time
	analyzing   bool

	events chan Event
}

// NewSession starts a session in waiting_config, defaulting to 44100
// Hz until a config frame says otherwise (spec.md §6).
func NewSession(st *store.Store, pool *workpool.Pool) *Session {
	return &Session{
		store:      st,
		pool:       pool,
		state:      StateWaitingConfig,
		sampleRate: 44100,
		events:     make(chan Event, 16),
	}
}

// Events returns the channel of asynchronous status updates
// (analyzing, match_found, no_match, error). "listening" events are
// returned synchronously from FeedAudio instead, since they are
// produced on the caller's own I/O path.
func (s *Session) Events() <-chan Event { return s.events }

// State reports the session's current position in the state machine.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure applies a "config" control frame. It only has effect
// before any audio frame has arrived; received later it is a no-op,
// matching the "malformed control frames are ignored silently" policy
// of spec.md §7 (a stale config is treated the same as a malformed one).
func (s *Session) Configure(sampleRate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaitingConfig || sampleRate <= 0 {
		return
	}
	s.sampleRate = sampleRate
}

// FeedAudio appends a frame of little-endian float32 PCM mono samples
// to the buffer and returns the resulting "listening" event. If the
// session is due for a match attempt, fingerprinting work is handed to
// the worker pool; its result later arrives on Events(), never on this
// return value, keeping this call non-blocking.
func (s *Session) FeedAudio(ctx context.Context, frame []byte) (Event, error) {
	if len(frame)%4 != 0 {
		return Event{}, ErrProtocolViolation
	}
	samples := make([]float32, len(frame)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(frame[i*4:])
		samples[i] = math.Float32frombits(bits)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminal {
		return Event{}, ErrSessionTerminal
	}
	if s.state == StateWaitingConfig {
		s.state = StateBuffering
	}

	s.buffer = append(s.buffer, samples...)
	s.totalFed += len(samples)
	duration := float64(s.totalFed) / float64(s.sampleRate)
	s.maybeTriggerAnalysis(ctx, duration)

	return Event{Status: StatusListening, Duration: duration}, nil
}

// Stop terminates the session; no further events are emitted.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTerminal
}

// maybeTriggerAnalysis must be called with s.mu held.
func (s *Session) maybeTriggerAnalysis(ctx context.Context, duration float64) {
	if s.analyzing {
		return
	}
	if duration < config.RecognitionWindow {
		return
	}
	if !s.lastAttempt.IsZero() {
		interval := time.Duration(config.RecognitionInterval * float64(time.Second))
		if time.Since(s.lastAttempt) < interval {
			return
		}
	}

	snapshot := make([]float32, len(s.buffer))
	copy(snapshot, s.buffer)
	sr := s.sampleRate

	s.analyzing = true
	s.state = StateAnalyzing
	s.lastAttempt = time.Now()

	submitted := s.pool.TrySubmit(func() {
		s.runAnalysis(ctx, snapshot, sr, duration)
	})
	if !submitted {
		// Backpressure policy (spec.md §5): drop the newest analysis
		// trigger, never the audio. Retry on a later frame.
		s.analyzing = false
		s.state = StateBuffering
		s.lastAttempt = time.Time{}
		return
	}
	s.events <- Event{Status: StatusAnalyzing}
}

func (s *Session) runAnalysis(ctx context.Context, samples []float32, sr int, duration float64) {
	song, confidence, err := Recognize(ctx, s.store, samples, sr)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzing = false

	if s.state == StateTerminal {
		return // client disconnected mid-analysis; discard the result
	}

	if err != nil {
		xerr.LogError(ctx, "stream analysis failed", err)
		s.state = StateTerminal
		s.events <- Event{Status: StatusError, Message: "store unavailable"}
		return
	}

	if song != nil {
		s.state = StateTerminal
		s.events <- Event{Status: StatusMatchFound, Song: song, Confidence: confidence}
		return
	}

	if duration >= config.MaxListenDuration {
		s.state = StateTerminal
		s.events <- Event{Status: StatusNoMatch, Message: "no match within listen window"}
		return
	}

	s.trimBuffer()
	s.state = StateBuffering
}

// trimBuffer must be called with s.mu held. Only once the buffer
// exceeds twice the keep window does it get trimmed back down to it,
// per the sliding-window rule in spec.md §4.G.
func (s *Session) trimBuffer() {
	keepSeconds := config.RecognitionWindow - config.RecognitionInterval
	keepSamples := int(keepSeconds * float64(s.sampleRate))
	if keepSamples <= 0 || len(s.buffer) <= 2*keepSamples {
		return
	}
	s.buffer = append([]float32(nil), s.buffer[len(s.buffer)-keepSamples:]...)
}

// Recognize runs the full A→D→F query pipeline against st for samples
// at sample rate sr, returning the matched song (nil if none cleared
// MinMatchThreshold) and its confidence. It is shared by the streaming
// orchestrator and the REST recognize endpoint so both report
// identically-shaped decisions (spec.md §6).
func Recognize(ctx context.Context, st *store.Store, samples []float32, sr int) (*store.Song, int, error) {
	wf, err := waveform.Normalize(samples, 1, sr)
	if err != nil {
		return nil, 0, err
	}
	if wf.Duration() < 1.0 {
		return nil, 0, nil // input-too-short: "no match", not an error
	}

	spec := spectral.STFT(wf.Samples)
	pts := peaks.Extract(spec)
	fps := fingerprint.Generate(pts)
	if len(fps) == 0 {
		return nil, 0, nil
	}

	hashes := make([]string, len(fps))
	for i, fp := range fps {
		hashes[i] = fp.Hash
	}

	hits, err := st.GetMatches(ctx, hashes)
	if err != nil {
		return nil, 0, err
	}

	candidates := match.Rank(fps, hits)
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	top := candidates[0]
	song, ok, err := st.GetSong(ctx, top.SongID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	return &song, top.Confidence, nil
}
