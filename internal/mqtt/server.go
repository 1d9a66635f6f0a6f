package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cjeanneret/camsrv/internal/command"
	"github.com/cjeanneret/camsrv/internal/debug"
	"github.com/cjeanneret/camsrv/internal/device"
)

// Broker is the part of Client the server needs.
type Broker interface {
	Subscribe(topic string, handler MessageHandler) error
	Publish(topic string, payload []byte, retained bool) error
}

// Dispatcher runs a named command.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string) command.Reply
}

// Request is the optional payload of a command message.
type Request struct {
	ID string `json:"id"`
}

// Reply is published on <prefix>/reply/<command>.
type Reply struct {
	ID   string      `json:"id"`
	Code string      `json:"code"`
	Body interface{} `json:"body"`
}

// codeBadRequest marks a payload that could not be decoded.
const codeBadRequest = "bad_request"

// stateMessage is the retained payload on <prefix>/state.
type stateMessage struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Server serves commands received on <prefix>/command/+ and publishes
// controller events. It implements device.Observer.
type Server struct {
	broker     Broker
	dispatcher Dispatcher
	topics     Topics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopping bool
	wg       sync.WaitGroup
}

// NewServer creates an MQTT command server.
func NewServer(broker Broker, dispatcher Dispatcher, prefix string) *Server {
	return &Server{
		broker:     broker,
		dispatcher: dispatcher,
		topics:     Topics{Prefix: prefix},
	}
}

// Start subscribes to the command topics. Commands run under ctx.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.broker.Subscribe(s.topics.CommandFilter(), s.handleMessage); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	debug.Info("MQTT: serving commands on %s", s.topics.CommandFilter())
	return nil
}

// Stop cancels in-flight commands and waits for their replies. Commands
// delivered after Stop are dropped.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// handleMessage is called by the client; every command gets its own goroutine
// so a slow capture never blocks message delivery.
func (s *Server) handleMessage(topic string, payload []byte) {
	name, ok := s.topics.CommandName(topic)
	if !ok {
		debug.Verbose("MQTT: ignoring message on %s", topic)
		return
	}

	var req Request
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			s.reply(name, Reply{
				ID:   uuid.NewString(),
				Code: codeBadRequest,
				Body: map[string]string{"error": "invalid request payload"},
			})
			return
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		debug.Verbose("MQTT: server stopping, dropping %s (%s)", name, req.ID)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		debug.Request("mqtt", name)
		r := s.dispatcher.Dispatch(s.ctx, name)
		s.reply(name, Reply{ID: req.ID, Code: r.Kind.String(), Body: r.Body})
	}()
}

func (s *Server) reply(name string, r Reply) {
	data, err := json.Marshal(r)
	if err != nil {
		debug.Error(fmt.Errorf("MQTT: encode reply for %s: %w", name, err))
		return
	}
	if err := s.broker.Publish(s.topics.Reply(name), data, false); err != nil {
		debug.Error(fmt.Errorf("MQTT: reply %s (%s): %w", name, r.ID, err))
	}
}

// OnEvent publishes a controller event and refreshes the retained state.
func (s *Server) OnEvent(ev device.Event) {
	data, err := json.Marshal(ev)
	if err == nil {
		if err := s.broker.Publish(s.topics.Events(), data, false); err != nil {
			debug.Verbose("MQTT: publish event: %v", err)
		}
	}

	st := stateMessage{State: ev.Phase.String()}
	if ev.Phase == device.Failed {
		st.Reason = ev.Message
	}
	data, err = json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.broker.Publish(s.topics.State(), data, true); err != nil {
		debug.Verbose("MQTT: publish state: %v", err)
	}
}
