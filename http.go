package mcpd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tmaxmax/go-sse"
)

// Header and query-parameter names for session correlation. The synchronous
// mode correlates by header; the push mode embeds the token in the endpoint
// URL because the stream URL must be self-contained.
const (
	headerSessionID       = "Mcp-Session-Id"
	headerProtocolVersion = "MCP-Protocol-Version"
	queryParamSessionID   = "sessionID"
)

// httpTransport binds the dispatcher and session manager to HTTP verbs. It is
// a thin delivery layer: all method routing lives in the dispatcher, shared
// between the synchronous and push modes.
type httpTransport struct {
	endpoint   string
	dispatcher *dispatcher
	sessions   *SessionManager
	logger     *slog.Logger
}

// handlePost processes one JSON-RPC request. A sessionID query parameter
// selects the push mode (response delivered over the open event stream);
// otherwise the response travels back in the HTTP body.
func (t *httpTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	if sessID := r.URL.Query().Get(queryParamSessionID); sessID != "" {
		t.handleStreamPost(w, r, sessID)
		return
	}

	var msg JSONRPCMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		// HTTP transport success and protocol-level failure are orthogonal:
		// a malformed body still yields a 200 carrying a parse-error envelope.
		t.logger.Warn("failed to decode message", slog.String("err", err.Error()))
		t.writeMessage(w, http.StatusOK, errorMessage("", jsonRPCParseErrorCode, "parse error"))
		return
	}

	// Initialize is special: it requires no existing session and mints one,
	// returned out-of-band in the session header.
	if msg.Method == methodInitialize {
		resp := t.dispatcher.dispatch(r.Context(), msg)
		w.Header().Set(headerSessionID, t.sessions.Create())
		if resp == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		t.writeMessage(w, http.StatusOK, resp)
		return
	}

	sessID := r.Header.Get(headerSessionID)
	if sessID == "" {
		http.Error(w, "missing Mcp-Session-Id header", http.StatusBadRequest)
		return
	}
	if !t.sessions.Validate(sessID) {
		http.Error(w, "session not found or expired", http.StatusNotFound)
		return
	}

	if v := r.Header.Get(headerProtocolVersion); v != "" && v != ProtocolVersion {
		http.Error(w, fmt.Sprintf("unsupported protocol version: %s", v), http.StatusBadRequest)
		return
	}

	resp := t.dispatcher.dispatch(r.Context(), msg)
	if resp == nil {
		// Notification: acknowledge receipt without a payload.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	t.writeMessage(w, http.StatusOK, resp)
}

// handleStreamPost accepts a push-mode request. The POST is acknowledged
// immediately; the JSON-RPC response, if any, is delivered asynchronously as
// a labeled event on the session's stream.
func (t *httpTransport) handleStreamPost(w http.ResponseWriter, r *http.Request, sessID string) {
	if !t.sessions.Validate(sessID) {
		http.Error(w, "session not found or expired", http.StatusNotFound)
		return
	}

	var msg JSONRPCMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		// A parse failure leaves nothing to correlate an async response with.
		t.logger.Warn("failed to decode message", slog.String("err", err.Error()))
		http.Error(w, "failed to decode message", http.StatusBadRequest)
		return
	}

	stream := t.sessions.lookupStream(sessID)
	if stream == nil {
		http.Error(w, "no open event stream for session", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	// The request context ends with this POST; dispatch outlives it.
	go func() {
		resp := t.dispatcher.dispatch(context.Background(), msg)
		if resp == nil {
			return
		}
		if err := stream.sendMessage(resp); err != nil {
			// Client is gone: abandon delivery and tear the session down.
			t.logger.Warn("failed to deliver response, removing session",
				slog.String("sessionID", sessID),
				slog.String("err", err.Error()))
			t.sessions.Remove(sessID)
		}
	}()
}

// handleSSE opens the push-mode event stream. The connection stays open until
// the client disconnects or the session is removed.
func (t *httpTransport) handleSSE(w http.ResponseWriter, r *http.Request) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		t.logger.Error("failed to upgrade session", slog.String("err", err.Error()))
		http.Error(w, fmt.Sprintf("failed to upgrade session: %s", err), http.StatusInternalServerError)
		return
	}

	sessID := t.sessions.Create()
	stream := newEventStream(sess)
	if !t.sessions.attach(sessID, stream) {
		return
	}

	// Tell the client where to POST subsequent requests, before any message
	// event can be emitted.
	url := fmt.Sprintf("%s?%s=%s", t.endpoint, queryParamSessionID, sessID)
	if err := stream.send("endpoint", url); err != nil {
		t.logger.Error("failed to write endpoint event", slog.String("err", err.Error()))
		t.sessions.Remove(sessID)
		return
	}

	t.logger.Debug("event stream opened", slog.String("sessionID", sessID))

	// Keep the connection open. Removal (DELETE, expiry, shutdown) closes the
	// stream; a client disconnect cancels the request context.
	select {
	case <-r.Context().Done():
		t.sessions.Remove(sessID)
	case <-stream.closed:
	}
}

// handleDelete terminates the named session immediately and acknowledges with
// an empty success regardless of prior existence.
func (t *httpTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessID := r.Header.Get(headerSessionID)
	if sessID == "" {
		sessID = r.URL.Query().Get(queryParamSessionID)
	}
	if sessID != "" {
		t.sessions.Remove(sessID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *httpTransport) writeMessage(w http.ResponseWriter, status int, msg *JSONRPCMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		t.logger.Error("failed to write response", slog.String("err", err.Error()))
	}
}

// eventStream wraps one upgraded SSE session. Writes are serialized so
// concurrent response deliveries never interleave partial frames, and close
// is idempotent so removal, expiry, and shutdown can race safely.
type eventStream struct {
	sess *sse.Session

	mu     sync.Mutex
	once   sync.Once
	closed chan struct{}
}

func newEventStream(sess *sse.Session) *eventStream {
	return &eventStream{
		sess:   sess,
		closed: make(chan struct{}),
	}
}

var errStreamClosed = errors.New("event stream is closed")

func (s *eventStream) send(eventType, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return errStreamClosed
	default:
	}

	msg := &sse.Message{Type: sse.Type(eventType)}
	msg.AppendData(data)

	if err := s.sess.Send(msg); err != nil {
		return err
	}
	return s.sess.Flush()
}

func (s *eventStream) sendMessage(msg *JSONRPCMessage) error {
	bs, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.send("message", string(bs))
}

func (s *eventStream) close() {
	s.once.Do(func() {
		close(s.closed)
	})
}
