package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cjeanneret/camsrv/internal/command"
	"github.com/cjeanneret/camsrv/internal/debug"
	"github.com/cjeanneret/camsrv/internal/device"
)

// Dispatcher runs a named command.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string) command.Reply
}

// StatusSource reports the controller state for GET /status.
type StatusSource interface {
	State() device.State
	Stats() device.Stats
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State  string       `json:"state"`
	Reason string       `json:"reason,omitempty"`
	Stats  device.Stats `json:"stats"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Dispatcher  Dispatcher
	Status      StatusSource
	Broadcaster *StatusBroadcaster

	heartbeat time.Duration
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(dispatcher Dispatcher, status StatusSource, broadcaster *StatusBroadcaster) *Handlers {
	return &Handlers{
		Dispatcher:  dispatcher,
		Status:      status,
		Broadcaster: broadcaster,
		heartbeat:   30 * time.Second,
		stop:        make(chan struct{}),
	}
}

// Command returns a handler that dispatches name and writes its reply.
func (h *Handlers) Command(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		debug.Request("http", name)
		reply := h.Dispatcher.Dispatch(r.Context(), name)
		writeJSON(w, statusFor(reply.Kind), reply.Body)
	}
}

// HandleStatus returns the controller phase and counters.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.Status.State()
	resp := StatusResponse{State: st.Phase.String(), Stats: h.Status.Stats()}
	if st.Reason != nil {
		resp.Reason = st.Reason.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleNotFound answers unknown routes.
func (h *Handlers) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// HandleMethodNotAllowed answers known routes called with the wrong method.
func (h *Handlers) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	debug.Live("SSE client connected (%s, id=%s)", r.RemoteAddr, middleware.GetReqID(r.Context()))

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("event: " + msg.Event + "\ndata: " + msg.Data + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-h.stop:
			return

		case <-r.Context().Done():
			return
		}
	}
}

// closeStreams ends every open SSE stream so shutdown is not held up by them.
func (h *Handlers) closeStreams() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func statusFor(kind command.Kind) int {
	switch kind {
	case command.OK:
		return http.StatusOK
	case command.Unavailable:
		return http.StatusServiceUnavailable
	case command.Timeout:
		return http.StatusGatewayTimeout
	case command.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			debug.Verbose("web: write response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
