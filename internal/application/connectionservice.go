package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// groupListTimeout bounds the diagnostic group listing run after each open.
const groupListTimeout = 30 * time.Second

// logoutRequest represents an explicit logout handed to the state loop.
type logoutRequest struct {
	ctx  context.Context
	done chan error
}

// ConnectionService owns the connection lifecycle. All state transitions
// happen on the goroutine running Start; other goroutines read the latest
// published snapshot through State.
type ConnectionService struct {
	client   driven.MessagingClient
	store    driven.CredentialStore
	notifier *Notifier
	inbound  *InboundHandler
	logger   *slog.Logger

	state    atomic.Pointer[model.ConnectionState]
	creds    model.CredentialBlob // written only by the Start goroutine
	logoutCh chan logoutRequest
	backOff  func() backoff.BackOff
}

// NewConnectionService creates a ConnectionService that connects with the
// credentials loaded at startup. The initial state is disconnected.
func NewConnectionService(
	client driven.MessagingClient,
	store driven.CredentialStore,
	notifier *Notifier,
	inbound *InboundHandler,
	creds model.CredentialBlob,
	logger *slog.Logger,
) *ConnectionService {
	if creds == nil {
		creds = model.CredentialBlob{}
	}
	s := &ConnectionService{
		client:   client,
		store:    store,
		notifier: notifier,
		inbound:  inbound,
		logger:   logger,
		creds:    creds,
		logoutCh: make(chan logoutRequest),
		backOff:  defaultBackOff,
	}
	initial := model.Disconnected("", model.ReasonNone)
	s.state.Store(&initial)
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// SetBackOff replaces the retry policy used when dialing fails. It must be
// called before Start.
func (s *ConnectionService) SetBackOff(newBackOff func() backoff.BackOff) {
	s.backOff = newBackOff
}

// State returns the latest published connection state.
func (s *ConnectionService) State() model.ConnectionState {
	return *s.state.Load()
}

// Start connects and then processes client events until ctx is canceled.
func (s *ConnectionService) Start(ctx context.Context) {
	events := s.connect(ctx)

	for {
		select {
		case <-ctx.Done():
			if err := s.client.Close(); err != nil {
				s.logger.Warn("error closing messaging client", "error", err)
			}
			s.publish(model.Disconnected("Shutting down", model.ReasonNone))
			s.logger.Info("connection service stopped")
			return

		case req := <-s.logoutCh:
			req.done <- s.handleLogout(req.ctx)
			events = nil

		case ev, ok := <-events:
			if !ok {
				// The stream ended without a close event.
				events = s.handleClose(ctx, model.EventConnection{
					Phase:  model.PhaseClose,
					Reason: model.ReasonConnectionLost,
					Detail: "event stream ended",
				})
				continue
			}
			events = s.handleEvent(ctx, events, ev)
		}
	}
}

// Logout terminates the session, deletes the stored credentials, and leaves
// the service disconnected. It blocks until the state loop has handled it.
func (s *ConnectionService) Logout(ctx context.Context) error {
	done := make(chan error, 1)

	select {
	case s.logoutCh <- logoutRequest{ctx: ctx, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dialResult is the outcome of one retried dial.
type dialResult struct {
	events   <-chan model.Event
	attempts int
	err      error
}

// connect publishes connecting and dials, retrying dial failures with
// backoff. The retry runs on a helper goroutine so a logout can interrupt
// it. It returns nil when ctx ends or a logout arrives before a connection
// is made.
func (s *ConnectionService) connect(ctx context.Context) <-chan model.Event {
	s.publish(model.Connecting())

	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan dialResult, 1)
	go func() {
		result <- s.dial(dialCtx)
	}()

	select {
	case res := <-result:
		if res.err != nil {
			if ctx.Err() == nil {
				s.logger.Error("giving up connecting", "attempts", res.attempts, "error", res.err)
				s.publish(model.Disconnected("Unable to connect: "+res.err.Error(), model.ReasonNone))
			}
			return nil
		}
		s.logger.Info("connected to messaging gateway", "attempts", res.attempts, "paired", !s.creds.IsEmpty())
		return res.events

	case req := <-s.logoutCh:
		// Wait for the dial to stop so it never races the logout. A
		// connection made just before the cancel is closed by handleLogout.
		cancel()
		<-result
		req.done <- s.handleLogout(req.ctx)
		return nil
	}
}

// dial calls Connect until it succeeds or the backoff policy gives up. It
// only reads s.creds, which the state loop leaves alone until dial returns.
func (s *ConnectionService) dial(ctx context.Context) dialResult {
	var res dialResult
	op := func() error {
		res.attempts++
		ch, err := s.client.Connect(ctx, s.creds)
		if err != nil {
			s.logger.Warn("connect failed", "attempt", res.attempts, "error", err)
			s.notifier.Log(fmt.Sprintf("Connection attempt %d failed, retrying...", res.attempts))
			return err
		}
		res.events = ch
		return nil
	}

	res.err = backoff.Retry(op, backoff.WithContext(s.backOff(), ctx))
	return res
}

// handleEvent applies one client event and returns the channel to read next.
func (s *ConnectionService) handleEvent(ctx context.Context, events <-chan model.Event, ev model.Event) <-chan model.Event {
	switch ev := ev.(type) {
	case model.EventConnection:
		if ev.QR != "" {
			s.handleQR(ev.QR)
		}
		switch ev.Phase {
		case model.PhaseOpen:
			s.handleOpen(ctx)
		case model.PhaseClose:
			return s.handleClose(ctx, ev)
		}

	case model.EventCredentials:
		s.saveCredentials(ctx, ev.Update)

	case model.EventMessages:
		for _, msg := range ev.Messages {
			if msg.NotifyType == "" {
				msg.NotifyType = ev.NotifyType
			}
			go func() {
				if err := s.inbound.Handle(ctx, msg); err != nil {
					s.logger.Error("failed to reply to message", "sender", msg.Sender, "error", err)
				}
			}()
		}
	}

	return events
}

// handleQR surfaces a pairing code unless the session is already open. An
// open connection is the stronger signal and a late code is discarded.
func (s *ConnectionService) handleQR(code string) {
	if s.State().IsOpen() {
		s.logger.Debug("ignoring pairing code received while open")
		return
	}
	s.publish(model.QRPending(code))
	s.logger.Info("pairing code received, waiting for scan")
}

func (s *ConnectionService) handleOpen(ctx context.Context) {
	s.publish(model.Open())
	s.logger.Info("connection open")

	go s.logGroups(ctx)
}

// logGroups lists the session's group memberships for the operator log.
func (s *ConnectionService) logGroups(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, groupListTimeout)
	defer cancel()

	groups, err := s.client.JoinedGroups(ctx)
	if err != nil {
		s.logger.Warn("failed to list groups", "error", err)
		return
	}
	for _, g := range groups {
		s.logger.Info("group membership", "id", g.ID, "subject", g.Subject, "participants", g.Participants)
	}
	s.logger.Info("group listing complete", "count", len(groups))
}

// handleClose applies the disconnect classification table and returns the
// event channel of the replacement connection, or nil when the session ends.
func (s *ConnectionService) handleClose(ctx context.Context, ev model.EventConnection) <-chan model.Event {
	message := reasonMessage(ev.Reason, ev.Detail)
	class := ClassifyReason(ev.Reason)

	switch class {
	case model.ReasonClassTransient:
		s.logger.Warn("connection closed",
			"reason", ev.Reason.String(),
			"code", int(ev.Reason),
			"class", class.String(),
			"detail", ev.Detail,
		)
		s.publish(model.Closed(ev.Reason, message))
		return s.connect(ctx)

	case model.ReasonClassSessionInvalid:
		s.logger.Error("session invalid, delete stored credentials and scan again",
			"reason", ev.Reason.String(),
			"code", int(ev.Reason),
			"detail", ev.Detail,
		)
		// The gateway has already ended the session; only the socket is left.
		if err := s.client.Close(); err != nil {
			s.logger.Warn("error closing messaging client", "error", err)
		}
		s.publish(model.Disconnected(message, ev.Reason))
		return nil

	default:
		s.logger.Error("fatal: unrecognized disconnect reason, terminating connection",
			"code", int(ev.Reason),
			"detail", ev.Detail,
		)
		if err := s.client.Close(); err != nil {
			s.logger.Warn("error closing messaging client", "error", err)
		}
		s.publish(model.Disconnected(message, ev.Reason))
		return nil
	}
}

func (s *ConnectionService) handleLogout(ctx context.Context) error {
	if err := s.client.Logout(ctx); err != nil {
		s.logger.Warn("network logout failed", "error", err)
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("error closing messaging client", "error", err)
	}

	s.creds = model.CredentialBlob{}
	if err := s.store.Delete(ctx); err != nil {
		s.publish(model.Disconnected("Logged out, but deleting stored credentials failed: "+err.Error(), model.ReasonLoggedOut))
		s.logger.Error("logged out but failed to delete credentials", "error", err)
		return fmt.Errorf("delete credentials: %w", err)
	}

	s.publish(model.Disconnected("Logged out, restart to pair again", model.ReasonLoggedOut))
	s.logger.Info("logged out and credentials deleted")
	return nil
}

// saveCredentials merges update into the in-memory blob and persists it.
func (s *ConnectionService) saveCredentials(ctx context.Context, update model.CredentialBlob) {
	s.creds = s.creds.Merge(update)
	if err := s.store.Save(ctx, s.creds); err != nil {
		s.logger.Error("failed to persist credentials", "error", err)
		return
	}
	s.logger.Debug("credentials saved", "entries", len(s.creds))
}

func (s *ConnectionService) publish(state model.ConnectionState) {
	s.state.Store(&state)
	s.notifier.Publish(state)
}
