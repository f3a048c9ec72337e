package application

import (
	"fmt"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

// reasonPolicy pairs a disconnect reason with its recovery class and the
// operator-facing message logged and pushed to the UI.
type reasonPolicy struct {
	class   model.ReasonClass
	message string
}

// reasonTable is the disconnect classification table. Reasons missing from
// the table are unrecognized. ReasonTimedOut shares its code with
// ReasonConnectionLost.
var reasonTable = map[model.DisconnectReason]reasonPolicy{
	model.ReasonConnectionClosed: {
		class:   model.ReasonClassTransient,
		message: "Connection closed, reconnecting...",
	},
	model.ReasonConnectionLost: {
		class:   model.ReasonClassTransient,
		message: "Connection lost from server, reconnecting...",
	},
	model.ReasonRestartRequired: {
		class:   model.ReasonClassTransient,
		message: "Restart required, restarting...",
	},
	model.ReasonBadSession: {
		class:   model.ReasonClassSessionInvalid,
		message: "Bad session file, please delete the session and scan again.",
	},
	model.ReasonLoggedOut: {
		class:   model.ReasonClassSessionInvalid,
		message: "Device logged out, please delete the session and scan again.",
	},
	model.ReasonConnectionReplaced: {
		class:   model.ReasonClassSessionInvalid,
		message: "Connection replaced, another session was opened. Close the other session first.",
	},
}

// ClassifyReason returns the recovery class for a disconnect reason.
func ClassifyReason(reason model.DisconnectReason) model.ReasonClass {
	if p, ok := reasonTable[reason]; ok {
		return p.class
	}
	return model.ReasonClassUnrecognized
}

// reasonMessage returns the operator-facing message for a disconnect reason.
func reasonMessage(reason model.DisconnectReason, detail string) string {
	if p, ok := reasonTable[reason]; ok {
		return p.message
	}
	if detail != "" {
		return fmt.Sprintf("Unknown disconnect reason %d: %s", int(reason), detail)
	}
	return fmt.Sprintf("Unknown disconnect reason %d", int(reason))
}
