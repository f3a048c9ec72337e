package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

const (
	eventBufferSize = 64
	writeWait       = 10 * time.Second
)

// session is one live gateway socket. Its event channel is closed once the
// read loop exits; a session is never reused after that.
type session struct {
	ws      *websocket.Conn
	timeout time.Duration
	logger  *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan frame // nil once the read loop has exited

	events    chan model.Event
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	open      atomic.Bool
}

func newSession(ws *websocket.Conn, timeout time.Duration, logger *slog.Logger) *session {
	return &session{
		ws:      ws,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan frame),
		events:  make(chan model.Event, eventBufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// readLoop dispatches result frames to waiting requests and event frames to
// the events channel until the socket ends.
func (s *session) readLoop() {
	defer func() {
		s.open.Store(false)
		s.failPending()
		close(s.events)
		close(s.done)
	}()

	for {
		var f frame
		if err := s.ws.ReadJSON(&f); err != nil {
			if s.isClosing() {
				return
			}
			s.logger.Warn("gateway connection lost", "error", err)
			s.emit(model.EventConnection{
				Phase:  model.PhaseClose,
				Reason: model.ReasonConnectionLost,
				Detail: err.Error(),
			})
			_ = s.ws.Close()
			return
		}

		switch f.Type {
		case frameResult:
			s.deliverResult(f)

		case frameEvent:
			ev, terminal, err := decodeEvent(f)
			if err != nil {
				s.logger.Warn("dropping malformed gateway event", "event", f.Event, "error", err)
				continue
			}
			if ev == nil {
				s.logger.Debug("ignoring gateway event", "event", f.Event)
				continue
			}
			if conn, ok := ev.(model.EventConnection); ok {
				switch conn.Phase {
				case model.PhaseOpen:
					s.open.Store(true)
				case model.PhaseClose:
					s.open.Store(false)
				}
			}
			if !s.emit(ev) || terminal {
				_ = s.ws.Close()
				return
			}

		default:
			s.logger.Debug("ignoring unknown gateway frame", "type", f.Type)
		}
	}
}

// emit hands ev to the consumer, giving up if the session is being closed.
func (s *session) emit(ev model.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closing:
		return false
	}
}

func (s *session) deliverResult(f frame) {
	s.pendingMu.Lock()
	ch, ok := s.pending[f.ID]
	delete(s.pending, f.ID)
	s.pendingMu.Unlock()

	if !ok {
		s.logger.Debug("result for unknown request", "id", f.ID)
		return
	}
	ch <- f
}

func (s *session) failPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for _, ch := range s.pending {
		close(ch)
	}
	s.pending = nil
}

// request sends a frame and waits for its correlated result.
func (s *session) request(ctx context.Context, typ string, payload any) (frame, error) {
	id := uuid.NewString()
	ch := make(chan frame, 1)

	s.pendingMu.Lock()
	if s.pending == nil {
		s.pendingMu.Unlock()
		return frame{}, driven.ErrNotConnected
	}
	s.pending[id] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		if s.pending != nil {
			delete(s.pending, id)
		}
		s.pendingMu.Unlock()
	}()

	if err := s.write(request{Type: typ, ID: id, Payload: payload}); err != nil {
		return frame{}, fmt.Errorf("write %s request: %w", typ, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case f, ok := <-ch:
		if !ok {
			return frame{}, driven.ErrNotConnected
		}
		return f, nil
	case <-ctx.Done():
		return frame{}, fmt.Errorf("%s request: %w", typ, ctx.Err())
	}
}

func (s *session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.ws.WriteJSON(v)
}

func (s *session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// close shuts the socket and waits for the read loop to finish.
func (s *session) close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)

		s.writeMu.Lock()
		_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
		msgErr := s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		err = s.ws.Close()
		if errors.Is(msgErr, websocket.ErrCloseSent) || errors.Is(err, websocket.ErrCloseSent) {
			err = nil
		}
	})
	<-s.done
	return err
}
