// Package gateway implements the MessagingClient port against a multi-device
// messaging gateway speaking a JSON frame protocol over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.MessagingClient = (*Client)(nil)

// LatestVersion asks the gateway to negotiate its newest protocol version.
const LatestVersion = "latest"

const handshakeTimeout = 15 * time.Second

// Client implements driven.MessagingClient. It owns at most one session.
type Client struct {
	url     string
	version string
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  *slog.Logger

	connectMu sync.Mutex // serializes Connect and Close

	mu   sync.Mutex
	conn *session
}

// NewClient creates a gateway client. version is the protocol version sent in
// the hello frame; timeout bounds every request/result round trip.
func NewClient(url, version string, timeout time.Duration, logger *slog.Logger) *Client {
	if version == "" {
		version = LatestVersion
	}
	return &Client{
		url:     url,
		version: version,
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}
}

// Connect dials the gateway and authenticates with creds. Any previous
// session is closed and its read loop drained before the new one starts. If
// the gateway rejects the configured version, the handshake is retried once
// with the version it reports as latest.
func (c *Client) Connect(ctx context.Context, creds model.CredentialBlob) (<-chan model.Event, error) {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if err := c.closeCurrent(); err != nil {
		c.logger.Warn("error closing previous gateway session", "error", err)
	}

	ws, err := c.handshake(ctx, c.version, creds)
	var ferr *frameError
	if errors.As(err, &ferr) && ferr.Code == codeVersionMismatch {
		retry := ferr.Latest
		if retry == "" {
			retry = LatestVersion
		}
		c.logger.Warn("gateway rejected protocol version, retrying",
			"version", c.version,
			"retry_version", retry,
		)
		ws, err = c.handshake(ctx, retry, creds)
	}
	if err != nil {
		return nil, err
	}

	s := newSession(ws, c.timeout, c.logger)
	c.mu.Lock()
	c.conn = s
	c.mu.Unlock()

	go s.readLoop()

	return s.events, nil
}

// handshake dials and exchanges hello frames. On success the returned socket
// has no read deadline set.
func (c *Client) handshake(ctx context.Context, version string, creds model.CredentialBlob) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	if creds == nil {
		creds = model.CredentialBlob{}
	}
	hello := request{Type: frameHello, Payload: helloPayload{Version: version, Creds: creds}}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetWriteDeadline(deadline)
	_ = ws.SetReadDeadline(deadline)

	if err := ws.WriteJSON(hello); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("write hello: %w", err)
	}

	var reply frame
	if err := ws.ReadJSON(&reply); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("read hello reply: %w", err)
	}
	if reply.Error != nil {
		_ = ws.Close()
		return nil, reply.Error
	}
	if reply.Type != frameHello || !reply.OK {
		_ = ws.Close()
		return nil, fmt.Errorf("unexpected hello reply %q", reply.Type)
	}

	_ = ws.SetReadDeadline(time.Time{})
	_ = ws.SetWriteDeadline(time.Time{})
	return ws, nil
}

// Send delivers text to recipient through the open session.
func (c *Client) Send(ctx context.Context, recipient model.RecipientID, text string, quoted *model.MessageRef) (model.DeliveryAck, error) {
	var res sendResult
	err := c.call(ctx, frameSend, sendPayload{To: string(recipient), Text: text, Quoted: quoted}, &res)
	if err != nil {
		return model.DeliveryAck{}, err
	}

	ack := model.DeliveryAck{
		ID:        res.ID,
		Recipient: recipient,
		Status:    res.Status,
		Timestamp: time.Now().UTC(),
	}
	if res.Timestamp > 0 {
		ack.Timestamp = time.Unix(res.Timestamp, 0).UTC()
	}
	return ack, nil
}

// ResolveRecipient asks the gateway whether phone is registered.
func (c *Client) ResolveRecipient(ctx context.Context, phone string) (model.RecipientID, error) {
	var res resolveResult
	if err := c.call(ctx, frameResolve, resolvePayload{Phone: phone}, &res); err != nil {
		return "", err
	}
	if !res.Exists || res.JID == "" {
		return "", driven.ErrRecipientNotFound
	}
	return model.RecipientID(res.JID), nil
}

// MarkRead sends a read receipt for ref.
func (c *Client) MarkRead(ctx context.Context, ref model.MessageRef) error {
	return c.call(ctx, frameRead, readPayload{Key: ref}, nil)
}

// JoinedGroups lists the groups the session participates in.
func (c *Client) JoinedGroups(ctx context.Context) ([]model.Group, error) {
	var res []groupResult
	if err := c.call(ctx, frameGroups, nil, &res); err != nil {
		return nil, err
	}

	groups := make([]model.Group, 0, len(res))
	for _, g := range res {
		groups = append(groups, model.Group{ID: g.ID, Subject: g.Subject, Participants: g.Size})
	}
	return groups, nil
}

// Logout ends the session on the network. The gateway follows up with a
// close update, after which the session's event channel is closed.
func (c *Client) Logout(ctx context.Context) error {
	s := c.current()
	if s == nil {
		return driven.ErrNotConnected
	}
	_, err := c.roundTrip(ctx, s, frameLogout, nil)
	return err
}

// Close tears down the current session and waits for its read loop to exit.
// It is a no-op without a session.
func (c *Client) Close() error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.closeCurrent()
}

func (c *Client) closeCurrent() error {
	c.mu.Lock()
	s := c.conn
	c.conn = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.close()
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// call performs a request that needs an open session and decodes the result
// data into out when out is non-nil.
func (c *Client) call(ctx context.Context, typ string, payload, out any) error {
	s := c.current()
	if s == nil || !s.open.Load() {
		return driven.ErrNotConnected
	}

	f, err := c.roundTrip(ctx, s, typ, payload)
	if err != nil {
		return err
	}
	if out == nil || len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, out); err != nil {
		return fmt.Errorf("decode %s result: %w", typ, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, s *session, typ string, payload any) (frame, error) {
	f, err := s.request(ctx, typ, payload)
	if err != nil {
		return frame{}, err
	}
	if f.Error != nil {
		return frame{}, mapError(f.Error)
	}
	return f, nil
}

func mapError(e *frameError) error {
	switch e.Code {
	case codeNotConnected:
		return fmt.Errorf("%w: %s", driven.ErrNotConnected, e.Message)
	case codeRecipientUnknown:
		return fmt.Errorf("%w: %s", driven.ErrRecipientUnknown, e.Message)
	default:
		return e
	}
}
