package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock implementations ---

type sendCall struct {
	Recipient model.RecipientID
	Text      string
	Quoted    *model.MessageRef
}

type mockMessagingClient struct {
	mu          sync.Mutex
	streams     []chan model.Event
	connectErrs []error
	connectErr  error // returned by every Connect once connectErrs is drained
	sends       []sendCall
	reads       []model.MessageRef
	logouts     int
	closes      int

	recipients map[string]model.RecipientID
	resolveErr error
	sendErr    error
	readErr    error
	groups     []model.Group

	connected chan chan model.Event
	sent      chan sendCall
}

func newMockMessagingClient() *mockMessagingClient {
	return &mockMessagingClient{
		recipients: map[string]model.RecipientID{},
		connected:  make(chan chan model.Event, 16),
		sent:       make(chan sendCall, 16),
	}
}

func (m *mockMessagingClient) Connect(_ context.Context, _ model.CredentialBlob) (<-chan model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.connectErrs) > 0 {
		err := m.connectErrs[0]
		m.connectErrs = m.connectErrs[1:]
		m.streams = append(m.streams, nil)
		return nil, err
	}
	if m.connectErr != nil {
		m.streams = append(m.streams, nil)
		return nil, m.connectErr
	}

	ch := make(chan model.Event, 16)
	m.streams = append(m.streams, ch)
	m.connected <- ch
	return ch, nil
}

func (m *mockMessagingClient) Send(_ context.Context, recipient model.RecipientID, text string, quoted *model.MessageRef) (model.DeliveryAck, error) {
	m.mu.Lock()
	call := sendCall{Recipient: recipient, Text: text, Quoted: quoted}
	m.sends = append(m.sends, call)
	err := m.sendErr
	m.mu.Unlock()

	m.sent <- call
	if err != nil {
		return model.DeliveryAck{}, err
	}
	return model.DeliveryAck{ID: "ACK-1", Recipient: recipient, Status: "sent", Timestamp: time.Unix(1700000000, 0).UTC()}, nil
}

func (m *mockMessagingClient) ResolveRecipient(_ context.Context, phone string) (model.RecipientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	id, ok := m.recipients[phone]
	if !ok {
		return "", driven.ErrRecipientNotFound
	}
	return id, nil
}

func (m *mockMessagingClient) MarkRead(_ context.Context, ref model.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, ref)
	return m.readErr
}

func (m *mockMessagingClient) JoinedGroups(_ context.Context) ([]model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups, nil
}

func (m *mockMessagingClient) Logout(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	return nil
}

func (m *mockMessagingClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockMessagingClient) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *mockMessagingClient) logoutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logouts
}

func (m *mockMessagingClient) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *mockMessagingClient) sendCalls() []sendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sendCall(nil), m.sends...)
}

// waitConnect returns the event channel of the next successful Connect.
func (m *mockMessagingClient) waitConnect(t *testing.T) chan model.Event {
	t.Helper()
	select {
	case ch := <-m.connected:
		return ch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Connect")
		return nil
	}
}

// waitSend returns the next Send call.
func (m *mockMessagingClient) waitSend(t *testing.T) sendCall {
	t.Helper()
	select {
	case call := <-m.sent:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Send")
		return sendCall{}
	}
}

type mockCredentialStore struct {
	mu      sync.Mutex
	saved   []model.CredentialBlob
	deletes   int
	saveErr   error
	deleteErr error
}

func (m *mockCredentialStore) Load(_ context.Context) (model.CredentialBlob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return model.CredentialBlob{}, nil
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *mockCredentialStore) Save(_ context.Context, blob model.CredentialBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, blob)
	return nil
}

func (m *mockCredentialStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.saved = nil
	return nil
}

func (m *mockCredentialStore) lastSaved() model.CredentialBlob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

func (m *mockCredentialStore) deleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) DataURI(code string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "data:image/png;base64," + code, nil
}

var errRender = errors.New("render failed")

type recordingSubscriber struct {
	mu     sync.Mutex
	events []model.PushEvent
}

func (s *recordingSubscriber) Deliver(ev model.PushEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSubscriber) received() []model.PushEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PushEvent(nil), s.events...)
}

func (s *recordingSubscriber) last(t *testing.T) model.PushEvent {
	t.Helper()
	events := s.received()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}
