package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/ericfisherdev/wabridge/internal/application"
	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

// tokenHeader carries the shared API secret.
const tokenHeader = "token"

// maxBodyBytes caps request bodies on mutating endpoints.
const maxBodyBytes = 1 << 20

// Session is the subset of the connection service the API needs.
type Session interface {
	State() model.ConnectionState
	Logout(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	sendSvc *application.SendService
	session Session
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(sendSvc *application.SendService, session Session, logger *slog.Logger) *Handler {
	return &Handler{
		sendSvc: sendSvc,
		session: session,
		logger:  logger,
	}
}

// RegisterAPIRoutes registers the API endpoints on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /send-message", h.SendMessage)
	mux.HandleFunc("POST /api/v1/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// SendMessage validates and delivers a text message to a phone number.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	body, err := decodeSendRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ack, err := h.sendSvc.Send(r.Context(), model.SendRequest{
		Message: body.Message,
		Phone:   body.Phone,
		Token:   r.Header.Get(tokenHeader),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Status: true, Response: toDeliveryResponse(ack)})
}

// Logout ends the messaging session and deletes stored credentials. The
// service stays disconnected until it is restarted.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sendSvc.Authorize(r.Header.Get(tokenHeader)); err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := h.session.Logout(r.Context()); err != nil {
		h.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Status: true, Response: "logged out"})
}

// Status returns the current connection state snapshot.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusResponse(h.session.State()))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps application errors to HTTP status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *application.ValidationError
		authErr       *application.AuthError
		stateErr      *application.StateError
		notFoundErr   *application.NotFoundError
		deliveryErr   *application.DeliveryError
	)

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &authErr):
		writeError(w, http.StatusUnauthorized, authErr.Message)
	case errors.As(err, &stateErr):
		writeError(w, http.StatusServiceUnavailable, stateErr.Message)
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Message)
	case errors.As(err, &deliveryErr):
		h.logger.Error("message delivery failed", "error", deliveryErr.Err)
		writeError(w, http.StatusInternalServerError, deliveryErr.Error())
	default:
		h.logger.Error("unexpected send error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeSendRequest reads a JSON body, or a form body for any other content type.
func decodeSendRequest(w http.ResponseWriter, r *http.Request) (SendMessageRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req SendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return SendMessageRequest{}, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return SendMessageRequest{}, err
	}
	return SendMessageRequest{
		Message: r.PostForm.Get("message"),
		Phone:   r.PostForm.Get("phone"),
	}, nil
}
