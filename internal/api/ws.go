package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-translator/internal/clone"
	"github.com/lexiqai/voice-translator/internal/errorsx"
	"github.com/lexiqai/voice-translator/internal/observability"
	"github.com/lexiqai/voice-translator/internal/tts"
)

var upgrader = websocket.Upgrader{
	// The browser client is served from another origin
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

const writeWait = 10 * time.Second

// Event is one progress message on the clone WebSocket
type Event struct {
	Type      string             `json:"type"` // state, segment, complete, error
	ID        string             `json:"id"`
	State     string             `json:"state,omitempty"`
	Index     int                `json:"index,omitempty"`
	CallID    string             `json:"callId,omitempty"`
	Size      int                `json:"size,omitempty"`
	Status    string             `json:"status,omitempty"`
	URL       string             `json:"transcriptURL,omitempty"`
	ExpiresIn int                `json:"expiresIn,omitempty"`
	Error     string             `json:"error,omitempty"`
	Reason    errorsx.ReasonCode `json:"reason,omitempty"`
}

// wsSession streams one clone request's progress to a WebSocket client
type wsSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger zerolog.Logger
}

func (s *wsSession) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Debug().Err(err).Str("type", ev.Type).Msg("WebSocket write failed")
	}
}

func (s *wsSession) StateChanged(id string, state tts.State, err error) {
	if state == tts.StateFailed {
		// the error event carries the failure
		return
	}
	s.send(Event{Type: "state", ID: id, State: state.String()})
}

func (s *wsSession) SegmentResolved(id string, seg tts.SegmentEvent) {
	s.send(Event{Type: "segment", ID: id, Index: seg.Index, CallID: seg.CallID, Size: seg.Size})
}

// handleCloneWS accepts one clone request per connection and streams
// progress events until the request finishes. Closing the socket cancels
// the request.
func (s *Server) handleCloneWS(w http.ResponseWriter, r *http.Request) {
	id := observability.CorrelationIDFrom(r.Header.Get(CorrelationHeader))
	logger := observability.WithCorrelationID(id)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()

	session := &wsSession{conn: conn, logger: logger}

	var req clone.Request
	if err := conn.ReadJSON(&req); err != nil {
		session.send(Event{Type: "error", ID: id, Error: "malformed clone request", Reason: errorsx.ReasonInvalidRequest})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Any further read means the client closed or misbehaved
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("WebSocket read error")
				}
				cancel()
				return
			}
		}
	}()

	resp, err := s.deps.Cloner.Clone(ctx, id, req, session)
	switch {
	case err != nil:
		session.send(Event{Type: "error", ID: id, Error: err.Error(), Reason: errorsx.Reason(err)})
	case resp.Warmup:
		session.send(Event{Type: "complete", ID: resp.ID, Status: "warming"})
	default:
		session.send(Event{Type: "complete", ID: resp.ID, URL: resp.URL, ExpiresIn: resp.ExpiresIn})
	}

	session.mu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	session.mu.Unlock()
}
