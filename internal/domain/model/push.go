package model

// Push event names understood by the UI client.
const (
	PushQR       = "qr"
	PushQRStatus = "qrstatus"
	PushLog      = "log"
)

// Status icons referenced by qrstatus events.
const (
	IconConnected = "./assets/check.svg"
	IconLoading   = "./assets/loader.svg"
)

// PushEvent is a named notification relayed to the subscribed UI client.
type PushEvent struct {
	Name string `json:"event"`
	Data string `json:"data"`
}
