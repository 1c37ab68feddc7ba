package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"musica/internal/stream"
	"musica/internal/xerr"
)

// handleStreamWS serves the bidirectional /ws/recognize session
// described in spec.md §6: binary PCM frames drive the sliding-window
// matcher, text JSON frames carry config/stop control messages.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	session := stream.NewSession(s.store, s.pool)

	relayDone := make(chan struct{})
	stopRelay := make(chan struct{})
	go relayEvents(ctx, conn, session, relayDone, stopRelay)

	closeCode := websocket.StatusNormalClosure
	closeReason := "session ended"

readLoop:
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			session.Stop()
			break readLoop
		}

		switch msgType {
		case websocket.MessageText:
			stop := handleControlFrame(session, data)
			if stop {
				closeReason = "client requested stop"
				break readLoop
			}
		case websocket.MessageBinary:
			ev, err := session.FeedAudio(ctx, data)
			if errors.Is(err, stream.ErrSessionTerminal) {
				// The async analysis goroutine already finished the
				// session (e.g. found a match) while this frame was
				// in flight — not a client error, just stop reading.
				break readLoop
			}
			if err != nil {
				writeWSEvent(ctx, conn, stream.Event{Status: stream.StatusError, Message: "malformed audio frame"})
				session.Stop()
				closeCode = websocket.StatusUnsupportedData
				closeReason = "malformed frame"
				break readLoop
			}
			writeWSEvent(ctx, conn, ev)
		}

		if session.State() == stream.StateTerminal {
			break readLoop
		}
	}

	close(stopRelay)
	<-relayDone
	conn.Close(closeCode, closeReason)
}

// handleControlFrame applies a text control frame and reports whether
// it was a "stop" request. Anything that doesn't parse as a
// recognized {"type": ...} shape is ignored silently, per spec.md §7's
// protocol-violation policy.
func handleControlFrame(session *stream.Session, data []byte) (stop bool) {
	if !gjson.ValidBytes(data) {
		return false
	}
	switch gjson.GetBytes(data, "type").String() {
	case "config":
		if sr := gjson.GetBytes(data, "sampleRate"); sr.Exists() {
			session.Configure(int(sr.Int()))
		}
	case "stop":
		session.Stop()
		return true
	}
	return false
}

// relayEvents drains the session's async Events() channel onto the
// wire until the session reaches a terminal state or stopRelay closes
// (the read loop exited some other way, e.g. client disconnect).
func relayEvents(ctx context.Context, conn *websocket.Conn, session *stream.Session, done chan<- struct{}, stopRelay <-chan struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-session.Events():
			writeWSEvent(ctx, conn, ev)
			if ev.Status == stream.StatusMatchFound || ev.Status == stream.StatusNoMatch || ev.Status == stream.StatusError {
				return
			}
		case <-stopRelay:
			return
		}
	}
}

type wsEventPayload struct {
	Status     string   `json:"status"`
	Duration   *float64 `json:"duration,omitempty"`
	Song       any      `json:"song,omitempty"`
	Confidence *int     `json:"confidence,omitempty"`
	Source     string   `json:"source,omitempty"`
	Message    string   `json:"message,omitempty"`
}

func writeWSEvent(ctx context.Context, conn *websocket.Conn, ev stream.Event) {
	payload := wsEventPayload{Status: string(ev.Status), Message: ev.Message}
	if ev.Status == stream.StatusListening {
		d := ev.Duration
		payload.Duration = &d
	}
	if ev.Song != nil {
		payload.Song = toSongView(*ev.Song)
		c := ev.Confidence
		payload.Confidence = &c
		payload.Source = "fingerprint"
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, encoded); err != nil {
		xerr.LogError(ctx, "ws write failed", err)
	}
}
