package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// StateReader exposes the latest published connection state.
type StateReader interface {
	State() model.ConnectionState
}

// SendService validates and executes outbound send requests.
type SendService struct {
	client      driven.MessagingClient
	state       StateReader
	token       string
	phonePrefix string
	logger      *slog.Logger
}

// NewSendService creates a SendService. token is the shared secret callers
// must present; an empty token rejects every request.
func NewSendService(client driven.MessagingClient, state StateReader, token, phonePrefix string, logger *slog.Logger) *SendService {
	return &SendService{
		client:      client,
		state:       state,
		token:       token,
		phonePrefix: phonePrefix,
		logger:      logger,
	}
}

// Send runs the checks in order, stopping at the first failure, and then
// delivers the message. Checks: required fields, phone prefix, token,
// connection open, recipient registered.
func (s *SendService) Send(ctx context.Context, req model.SendRequest) (model.DeliveryAck, error) {
	if req.Message == "" || req.Phone == "" {
		return model.DeliveryAck{}, &ValidationError{Message: "message and phone required"}
	}

	if !strings.HasPrefix(req.Phone, s.phonePrefix) {
		return model.DeliveryAck{}, &ValidationError{Message: "invalid phone prefix"}
	}

	if err := s.Authorize(req.Token); err != nil {
		return model.DeliveryAck{}, err
	}

	if !s.state.State().IsOpen() {
		return model.DeliveryAck{}, &StateError{Message: "not connected"}
	}

	recipient, err := s.client.ResolveRecipient(ctx, req.Phone)
	switch {
	case errors.Is(err, driven.ErrRecipientNotFound):
		return model.DeliveryAck{}, &NotFoundError{Message: "not registered"}
	case errors.Is(err, driven.ErrNotConnected):
		return model.DeliveryAck{}, &StateError{Message: "not connected"}
	case err != nil:
		return model.DeliveryAck{}, &DeliveryError{Err: err}
	}

	ack, err := s.client.Send(ctx, recipient, req.Message, nil)
	if err != nil {
		return model.DeliveryAck{}, &DeliveryError{Err: err}
	}

	s.logger.Info("message sent", "recipient", recipient, "id", ack.ID)
	return ack, nil
}

// Authorize checks token against the configured secret in constant time.
// An empty configured secret rejects every token.
func (s *SendService) Authorize(token string) error {
	if s.token == "" || token == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return &AuthError{Message: "unauthorized"}
	}
	return nil
}
