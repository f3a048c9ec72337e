package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// Reply texts sent by the inbound handler.
const (
	ReplyPong   = "Pong"
	ReplyOnline = "I'm online"
)

// InboundHandler answers live messages from other users.
type InboundHandler struct {
	client driven.MessagingClient
	logger *slog.Logger
}

// NewInboundHandler creates an InboundHandler that replies through client.
func NewInboundHandler(client driven.MessagingClient, logger *slog.Logger) *InboundHandler {
	return &InboundHandler{client: client, logger: logger}
}

// Handle marks msg read and sends exactly one quoted reply. Messages sent by
// this session, and messages not delivered live, are ignored.
func (h *InboundHandler) Handle(ctx context.Context, msg model.InboundMessage) error {
	if msg.NotifyType != model.NotifyTypeNotify || msg.FromMe || msg.Ref.FromMe {
		return nil
	}

	text := ExtractText(msg.Content)
	h.logger.Info("message received", "sender", msg.Sender, "push_name", msg.PushName, "id", msg.Ref.ID)

	if err := h.client.MarkRead(ctx, msg.Ref); err != nil {
		h.logger.Warn("failed to mark message read", "id", msg.Ref.ID, "error", err)
	}

	ref := msg.Ref
	if _, err := h.client.Send(ctx, model.RecipientID(ref.Chat), ReplyFor(text), &ref); err != nil {
		return fmt.Errorf("reply to %s: %w", ref.Chat, err)
	}
	return nil
}

// ExtractText returns the first populated text-carrying field of content.
func ExtractText(content model.MessageContent) string {
	switch {
	case content.Conversation != "":
		return content.Conversation
	case content.ExtendedText != "":
		return content.ExtendedText
	default:
		return content.Caption
	}
}

// ReplyFor applies the single reply rule: "ping" in any case gets "Pong",
// anything else gets "I'm online".
func ReplyFor(text string) string {
	if strings.EqualFold(strings.TrimSpace(text), "ping") {
		return ReplyPong
	}
	return ReplyOnline
}
