package application

import (
	"log/slog"
	"sync"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// Status lines pushed as log events. The web shell renders the same text on
// first paint.
const (
	LogQRReceived = "QR Code received, please scan!"
	LogConnected  = "WhatsApp connected!"
	LogLoading    = "Registering QR Code, please wait!"
)

// Subscriber receives push events for a connected UI client. Deliver must
// not block; a subscriber that cannot keep up drops events.
type Subscriber interface {
	Deliver(event model.PushEvent)
}

// Notifier relays connection state to at most one UI subscriber. A new
// subscriber replaces the previous one, which silently stops receiving
// events. The notifier remembers the last published state so a subscriber
// that arrives late is brought up to date immediately.
type Notifier struct {
	mu       sync.Mutex
	sub      Subscriber
	state    model.ConnectionState
	renderer driven.QRRenderer
	logger   *slog.Logger
}

// NewNotifier creates a Notifier that renders pairing codes with renderer.
func NewNotifier(renderer driven.QRRenderer, logger *slog.Logger) *Notifier {
	return &Notifier{
		state:    model.Disconnected("", model.ReasonNone),
		renderer: renderer,
		logger:   logger,
	}
}

// Subscribe makes sub the active subscriber and pushes the notification
// derived from the current state.
func (n *Notifier) Subscribe(sub Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sub = sub
	for _, ev := range n.eventsFor(n.state) {
		sub.Deliver(ev)
	}
}

// Unsubscribe clears the active subscriber if it is still sub. A subscriber
// that has already been replaced is left alone.
func (n *Notifier) Unsubscribe(sub Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub == sub {
		n.sub = nil
	}
}

// Publish records state as current and pushes its notification.
func (n *Notifier) Publish(state model.ConnectionState) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.state = state
	n.deliverLocked(n.eventsFor(state)...)
}

// Log pushes a human-readable line to the subscriber.
func (n *Notifier) Log(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.deliverLocked(model.PushEvent{Name: model.PushLog, Data: message})
}

func (n *Notifier) deliverLocked(events ...model.PushEvent) {
	if n.sub == nil {
		return
	}
	for _, ev := range events {
		n.sub.Deliver(ev)
	}
}

// eventsFor maps a connection state to the push events describing it.
func (n *Notifier) eventsFor(state model.ConnectionState) []model.PushEvent {
	switch state.Status {
	case model.StatusOpen:
		return []model.PushEvent{
			{Name: model.PushQRStatus, Data: model.IconConnected},
			{Name: model.PushLog, Data: LogConnected},
		}
	case model.StatusQRPending:
		uri, err := n.renderer.DataURI(state.QR)
		if err != nil {
			n.logger.Error("failed to render pairing code", "error", err)
			return []model.PushEvent{{Name: model.PushLog, Data: "Failed to render QR Code: " + err.Error()}}
		}
		return []model.PushEvent{
			{Name: model.PushQR, Data: uri},
			{Name: model.PushLog, Data: LogQRReceived},
		}
	default:
		message := LogLoading
		if state.Detail != "" {
			message = state.Detail
		}
		return []model.PushEvent{
			{Name: model.PushQRStatus, Data: model.IconLoading},
			{Name: model.PushLog, Data: message},
		}
	}
}
