package model

// Event is a connection or message update emitted by the messaging client.
// Concrete types are EventConnection, EventCredentials, and EventMessages.
type Event interface {
	isEvent()
}

// ConnectionPhase is the phase reported by a connection update.
type ConnectionPhase string

const (
	PhaseConnecting ConnectionPhase = "connecting"
	PhaseOpen       ConnectionPhase = "open"
	PhaseClose      ConnectionPhase = "close"
)

// EventConnection reports a connection update. QR is set when the network
// issues a new pairing code; Phase may be empty in that case.
type EventConnection struct {
	Phase  ConnectionPhase
	QR     string
	Reason DisconnectReason
	Detail string
}

// EventCredentials carries credential entries that changed and must be persisted.
type EventCredentials struct {
	Update CredentialBlob
}

// EventMessages carries a batch of received messages.
type EventMessages struct {
	NotifyType string
	Messages   []InboundMessage
}

func (EventConnection) isEvent()  {}
func (EventCredentials) isEvent() {}
func (EventMessages) isEvent()    {}
