package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":false,"response":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a failed API response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIResponse{Status: false, Response: message})
}

// APIResponse is the envelope used by every mutating endpoint.
type APIResponse struct {
	Status   bool `json:"status"`
	Response any  `json:"response"`
}

// SendMessageRequest is the body accepted by POST /send-message, either as
// JSON or as a form.
type SendMessageRequest struct {
	Message string `json:"message"`
	Phone   string `json:"phone"`
}

// DeliveryResponse is the JSON representation of an accepted message.
type DeliveryResponse struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// StatusResponse is the JSON representation of the connection state.
type StatusResponse struct {
	Status     string `json:"status"`
	Connected  bool   `json:"connected"`
	PairingQR  bool   `json:"pairing_qr"`
	Reason     int    `json:"reason,omitempty"`
	ReasonName string `json:"reason_name,omitempty"`
	Detail     string `json:"detail,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

func toDeliveryResponse(ack model.DeliveryAck) DeliveryResponse {
	return DeliveryResponse{
		ID:        ack.ID,
		Recipient: string(ack.Recipient),
		Status:    ack.Status,
		Timestamp: ack.Timestamp.UTC().Format(time.RFC3339),
	}
}

// toStatusResponse converts a connection snapshot to its JSON representation.
// The pairing code itself is never exposed here; it is only pushed to the UI.
func toStatusResponse(state model.ConnectionState) StatusResponse {
	resp := StatusResponse{
		Status:    string(state.Status),
		Connected: state.IsOpen(),
		PairingQR: state.Status == model.StatusQRPending,
		Detail:    state.Detail,
		UpdatedAt: state.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if state.Reason != model.ReasonNone {
		resp.Reason = int(state.Reason)
		resp.ReasonName = state.Reason.String()
	}
	return resp
}
