package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/wabridge/internal/application"
	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type serviceHarness struct {
	svc      *application.ConnectionService
	client   *mockMessagingClient
	store    *mockCredentialStore
	notifier *application.Notifier
	cancel   context.CancelFunc
	done     chan struct{}
}

// startService runs a ConnectionService until the test ends.
func startService(t *testing.T, client *mockMessagingClient, creds model.CredentialBlob) *serviceHarness {
	t.Helper()

	store := &mockCredentialStore{}
	logger := discardLogger()
	notifier := application.NewNotifier(stubRenderer{}, logger)
	inbound := application.NewInboundHandler(client, logger)
	svc := application.NewConnectionService(client, store, notifier, inbound, creds, logger)
	svc.SetBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })

	ctx, cancel := context.WithCancel(context.Background())
	h := &serviceHarness{svc: svc, client: client, store: store, notifier: notifier, cancel: cancel, done: make(chan struct{})}

	go func() {
		svc.Start(ctx)
		close(h.done)
	}()

	t.Cleanup(h.stop)
	return h
}

func (h *serviceHarness) stop() {
	h.cancel()
	<-h.done
}

func (h *serviceHarness) waitStatus(t *testing.T, want model.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.svc.State().Status == want
	}, waitFor, tick, "status never became %s (last %s)", want, h.svc.State().Status)
}

func TestConnectionService_InitialStateDisconnected(t *testing.T) {
	client := newMockMessagingClient()
	logger := discardLogger()
	svc := application.NewConnectionService(client, &mockCredentialStore{}, application.NewNotifier(stubRenderer{}, logger), application.NewInboundHandler(client, logger), nil, logger)

	assert.Equal(t, model.StatusDisconnected, svc.State().Status)
	assert.Empty(t, svc.State().QR)
}

func TestConnectionService_QRThenOpen(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, nil)
	events := client.waitConnect(t)
	h.waitStatus(t, model.StatusConnecting)

	events <- model.EventConnection{QR: "2@pairing-code"}
	h.waitStatus(t, model.StatusQRPending)
	assert.Equal(t, "2@pairing-code", h.svc.State().QR)

	events <- model.EventConnection{Phase: model.PhaseOpen}
	h.waitStatus(t, model.StatusOpen)
	assert.Empty(t, h.svc.State().QR, "open must clear the pairing code")
}

func TestConnectionService_QRAfterOpenIsIgnored(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, nil)
	events := client.waitConnect(t)

	events <- model.EventConnection{Phase: model.PhaseOpen}
	events <- model.EventConnection{QR: "late-code"}
	events <- model.EventCredentials{Update: model.CredentialBlob{"creds": json.RawMessage(`{}`)}}

	// The credential save happens after the QR event is processed.
	require.Eventually(t, func() bool { return h.store.lastSaved() != nil }, waitFor, tick)

	state := h.svc.State()
	assert.Equal(t, model.StatusOpen, state.Status)
	assert.Empty(t, state.QR)
}

func TestConnectionService_TransientReasonsReconnectOnce(t *testing.T) {
	reasons := []model.DisconnectReason{
		model.ReasonConnectionClosed,
		model.ReasonConnectionLost,
		model.ReasonTimedOut,
		model.ReasonRestartRequired,
	}

	for _, reason := range reasons {
		t.Run(reason.String(), func(t *testing.T) {
			client := newMockMessagingClient()
			h := startService(t, client, nil)
			events := client.waitConnect(t)

			events <- model.EventConnection{Phase: model.PhaseOpen}
			h.waitStatus(t, model.StatusOpen)

			events <- model.EventConnection{Phase: model.PhaseClose, Reason: reason}
			close(events)

			client.waitConnect(t)
			h.waitStatus(t, model.StatusConnecting)

			assert.Never(t, func() bool { return client.connectCount() > 2 }, 100*time.Millisecond, tick,
				"a single close must trigger exactly one reconnect")
			assert.Equal(t, 0, client.logoutCount())
		})
	}
}

func TestConnectionService_SessionInvalidReasonsDoNotReconnect(t *testing.T) {
	reasons := []model.DisconnectReason{
		model.ReasonBadSession,
		model.ReasonLoggedOut,
		model.ReasonConnectionReplaced,
	}

	for _, reason := range reasons {
		t.Run(reason.String(), func(t *testing.T) {
			client := newMockMessagingClient()
			h := startService(t, client, nil)
			events := client.waitConnect(t)

			events <- model.EventConnection{Phase: model.PhaseOpen}
			events <- model.EventConnection{Phase: model.PhaseClose, Reason: reason}
			close(events)

			h.waitStatus(t, model.StatusDisconnected)
			assert.Equal(t, reason, h.svc.State().Reason)
			assert.Never(t, func() bool { return client.connectCount() > 1 }, 100*time.Millisecond, tick)
			assert.Equal(t, 1, client.closeCount())
			assert.Zero(t, client.logoutCount())
			assert.Equal(t, model.StatusDisconnected, h.svc.State().Status)
		})
	}
}

func TestConnectionService_UnrecognizedReasonTerminates(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, nil)
	events := client.waitConnect(t)

	events <- model.EventConnection{Phase: model.PhaseClose, Reason: model.ReasonMultideviceMismatch, Detail: "mismatch"}

	h.waitStatus(t, model.StatusDisconnected)
	assert.Contains(t, h.svc.State().Detail, "411")
	assert.Equal(t, 1, client.closeCount())
	assert.Never(t, func() bool { return client.connectCount() > 1 }, 100*time.Millisecond, tick)
}

func TestConnectionService_StreamEndWithoutCloseReconnects(t *testing.T) {
	client := newMockMessagingClient()
	startService(t, client, nil)
	events := client.waitConnect(t)

	close(events)

	client.waitConnect(t)
	assert.Equal(t, 2, client.connectCount())
}

func TestConnectionService_RetriesFailedDial(t *testing.T) {
	client := newMockMessagingClient()
	client.connectErrs = []error{errors.New("dial refused"), errors.New("dial refused")}

	h := startService(t, client, nil)
	client.waitConnect(t)

	assert.Equal(t, 3, client.connectCount())
	assert.Equal(t, model.StatusConnecting, h.svc.State().Status)
}

func TestConnectionService_PersistsMergedCredentials(t *testing.T) {
	client := newMockMessagingClient()
	initial := model.CredentialBlob{
		"creds":     json.RawMessage(`{"me":"old"}`),
		"pre-key-1": json.RawMessage(`{"k":1}`),
	}
	h := startService(t, client, initial)
	events := client.waitConnect(t)

	events <- model.EventCredentials{Update: model.CredentialBlob{
		"creds":     json.RawMessage(`{"me":"new"}`),
		"pre-key-1": json.RawMessage(`null`),
	}}

	require.Eventually(t, func() bool { return h.store.lastSaved() != nil }, waitFor, tick)

	saved := h.store.lastSaved()
	assert.JSONEq(t, `{"me":"new"}`, string(saved["creds"]))
	assert.NotContains(t, saved, "pre-key-1")
}

func TestConnectionService_RepliesToInboundMessages(t *testing.T) {
	client := newMockMessagingClient()
	startService(t, client, nil)
	events := client.waitConnect(t)

	events <- model.EventConnection{Phase: model.PhaseOpen}
	events <- model.EventMessages{
		NotifyType: model.NotifyTypeNotify,
		Messages: []model.InboundMessage{{
			Ref:     model.MessageRef{ID: "M1", Chat: "6281@s.whatsapp.net"},
			Sender:  "6281@s.whatsapp.net",
			Content: model.MessageContent{Conversation: "PING"},
		}},
	}

	call := client.waitSend(t)
	assert.Equal(t, application.ReplyPong, call.Text)
	assert.Equal(t, model.RecipientID("6281@s.whatsapp.net"), call.Recipient)
	require.NotNil(t, call.Quoted)
	assert.Equal(t, "M1", call.Quoted.ID)
}

func TestConnectionService_LogoutDeletesCredentials(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, model.CredentialBlob{"creds": json.RawMessage(`{}`)})
	events := client.waitConnect(t)
	events <- model.EventConnection{Phase: model.PhaseOpen}
	h.waitStatus(t, model.StatusOpen)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.svc.Logout(ctx))

	assert.Equal(t, model.StatusDisconnected, h.svc.State().Status)
	assert.Equal(t, 1, h.store.deleteCount())
	assert.Equal(t, 1, client.logoutCount())
	assert.Never(t, func() bool { return client.connectCount() > 1 }, 100*time.Millisecond, tick)
}

func TestConnectionService_LogoutWhileGatewayUnreachable(t *testing.T) {
	client := newMockMessagingClient()
	client.connectErr = errors.New("dial refused")
	h := startService(t, client, model.CredentialBlob{"creds": json.RawMessage(`{}`)})
	require.Eventually(t, func() bool { return client.connectCount() > 2 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.svc.Logout(ctx))

	assert.Equal(t, model.StatusDisconnected, h.svc.State().Status)
	assert.Equal(t, model.ReasonLoggedOut, h.svc.State().Reason)
	assert.Equal(t, 1, h.store.deleteCount())

	dials := client.connectCount()
	assert.Never(t, func() bool { return client.connectCount() > dials }, 100*time.Millisecond, tick)
}

func TestConnectionService_LogoutDeleteFailureStillDisconnects(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, model.CredentialBlob{"creds": json.RawMessage(`{}`)})
	h.store.deleteErr = errors.New("disk gone")
	events := client.waitConnect(t)
	events <- model.EventConnection{Phase: model.PhaseOpen}
	h.waitStatus(t, model.StatusOpen)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := h.svc.Logout(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, h.store.deleteErr)
	state := h.svc.State()
	assert.Equal(t, model.StatusDisconnected, state.Status)
	assert.Contains(t, state.Detail, "disk gone")
	assert.Equal(t, 1, client.closeCount())
	assert.Never(t, func() bool { return client.connectCount() > 1 }, 100*time.Millisecond, tick)
}

func TestConnectionService_ShutdownClosesClient(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, nil)
	client.waitConnect(t)

	h.stop()

	assert.Equal(t, model.StatusDisconnected, h.svc.State().Status)
	assert.GreaterOrEqual(t, client.closeCount(), 1)
}

func TestConnectionService_NotifiesSubscriber(t *testing.T) {
	client := newMockMessagingClient()
	h := startService(t, client, nil)
	sub := &recordingSubscriber{}
	h.notifier.Subscribe(sub)

	events := client.waitConnect(t)
	events <- model.EventConnection{QR: "code-1"}

	require.Eventually(t, func() bool {
		for _, ev := range sub.received() {
			if ev.Name == model.PushQR && ev.Data == "data:image/png;base64,code-1" {
				return true
			}
		}
		return false
	}, waitFor, tick)

	events <- model.EventConnection{Phase: model.PhaseOpen}
	require.Eventually(t, func() bool {
		for _, ev := range sub.received() {
			if ev.Name == model.PushQRStatus && ev.Data == model.IconConnected {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestClassifyReason(t *testing.T) {
	tests := []struct {
		reason model.DisconnectReason
		want   model.ReasonClass
	}{
		{model.ReasonConnectionClosed, model.ReasonClassTransient},
		{model.ReasonConnectionLost, model.ReasonClassTransient},
		{model.ReasonTimedOut, model.ReasonClassTransient},
		{model.ReasonRestartRequired, model.ReasonClassTransient},
		{model.ReasonBadSession, model.ReasonClassSessionInvalid},
		{model.ReasonLoggedOut, model.ReasonClassSessionInvalid},
		{model.ReasonConnectionReplaced, model.ReasonClassSessionInvalid},
		{model.ReasonMultideviceMismatch, model.ReasonClassUnrecognized},
		{model.ReasonForbidden, model.ReasonClassUnrecognized},
		{model.DisconnectReason(999), model.ReasonClassUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, application.ClassifyReason(tt.reason))
		})
	}
}
