package model

import "time"

// ConnectionStatus represents the lifecycle state of the messaging session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusQRPending    ConnectionStatus = "qr-pending"
	StatusOpen         ConnectionStatus = "open"
	StatusClosed       ConnectionStatus = "closed"
)

// ConnectionState is an immutable snapshot of the session lifecycle. QR is
// non-empty only while Status is StatusQRPending; every other status carries
// an empty (absent) pairing code. Use the constructors below rather than
// building the struct by hand so the pairing invariant holds.
type ConnectionState struct {
	Status    ConnectionStatus
	QR        string
	Reason    DisconnectReason
	Detail    string
	UpdatedAt time.Time
}

// Disconnected returns a terminal state with an optional human-readable detail.
func Disconnected(detail string, reason DisconnectReason) ConnectionState {
	return ConnectionState{Status: StatusDisconnected, Reason: reason, Detail: detail, UpdatedAt: time.Now().UTC()}
}

// Connecting returns the state entered before every connect attempt.
func Connecting() ConnectionState {
	return ConnectionState{Status: StatusConnecting, UpdatedAt: time.Now().UTC()}
}

// QRPending returns the state that surfaces a pairing code. An empty code is
// not a valid pairing state and yields Connecting instead.
func QRPending(code string) ConnectionState {
	if code == "" {
		return Connecting()
	}
	return ConnectionState{Status: StatusQRPending, QR: code, UpdatedAt: time.Now().UTC()}
}

// Open returns the state of a usable session. The pairing code is always cleared.
func Open() ConnectionState {
	return ConnectionState{Status: StatusOpen, UpdatedAt: time.Now().UTC()}
}

// Closed returns the transient state between a lost connection and its reconnect.
func Closed(reason DisconnectReason, detail string) ConnectionState {
	return ConnectionState{Status: StatusClosed, Reason: reason, Detail: detail, UpdatedAt: time.Now().UTC()}
}

// IsOpen reports whether outbound sends are currently permitted.
func (s ConnectionState) IsOpen() bool {
	return s.Status == StatusOpen
}
