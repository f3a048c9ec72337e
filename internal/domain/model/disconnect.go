package model

import "strconv"

// DisconnectReason is the status code the gateway attaches to a closed connection.
type DisconnectReason int

const (
	ReasonNone                DisconnectReason = 0
	ReasonLoggedOut           DisconnectReason = 401
	ReasonForbidden           DisconnectReason = 403
	ReasonConnectionLost      DisconnectReason = 408
	ReasonTimedOut            DisconnectReason = 408
	ReasonMultideviceMismatch DisconnectReason = 411
	ReasonConnectionClosed    DisconnectReason = 428
	ReasonConnectionReplaced  DisconnectReason = 440
	ReasonBadSession          DisconnectReason = 500
	ReasonUnavailableService  DisconnectReason = 503
	ReasonRestartRequired     DisconnectReason = 515
)

// ReasonClass groups disconnect reasons by the recovery they require.
type ReasonClass int

const (
	// ReasonClassUnrecognized covers codes with no known recovery path.
	ReasonClassUnrecognized ReasonClass = iota
	// ReasonClassTransient is recovered by reconnecting.
	ReasonClassTransient
	// ReasonClassSessionInvalid requires the operator to re-pair the device.
	ReasonClassSessionInvalid
)

// String returns a human-readable name for the reason class.
func (c ReasonClass) String() string {
	switch c {
	case ReasonClassTransient:
		return "transient"
	case ReasonClassSessionInvalid:
		return "session-invalid"
	default:
		return "unrecognized"
	}
}

// String returns the symbolic name of the reason, or its numeric code.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLoggedOut:
		return "logged-out"
	case ReasonForbidden:
		return "forbidden"
	case ReasonConnectionLost:
		return "connection-lost"
	case ReasonMultideviceMismatch:
		return "multidevice-mismatch"
	case ReasonConnectionClosed:
		return "connection-closed"
	case ReasonConnectionReplaced:
		return "connection-replaced"
	case ReasonBadSession:
		return "bad-session"
	case ReasonUnavailableService:
		return "unavailable-service"
	case ReasonRestartRequired:
		return "restart-required"
	default:
		return strconv.Itoa(int(r))
	}
}
