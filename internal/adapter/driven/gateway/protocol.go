package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

// Frame types exchanged with the gateway.
const (
	frameHello   = "hello"
	frameSend    = "send"
	frameResolve = "resolve"
	frameRead    = "read"
	frameGroups  = "groups"
	frameLogout  = "logout"
	frameResult  = "result"
	frameEvent   = "event"
)

// Gateway event names.
const (
	eventConnectionUpdate = "connection.update"
	eventCredsUpdate      = "creds.update"
	eventMessagesUpsert   = "messages.upsert"
)

// Gateway error codes.
const (
	codeVersionMismatch  = "version_mismatch"
	codeNotConnected     = "not_connected"
	codeRecipientUnknown = "recipient_unknown"
)

// request is a client-to-gateway frame. ID correlates the result frame.
type request struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Payload any    `json:"payload,omitempty"`
}

// frame is a gateway-to-client frame: either a result or an event.
type frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	OK    bool            `json:"ok,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *frameError     `json:"error,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Latest  string `json:"latest,omitempty"`
}

func (e *frameError) Error() string {
	if e.Message == "" {
		return "gateway error: " + e.Code
	}
	return fmt.Sprintf("gateway error: %s: %s", e.Code, e.Message)
}

type helloPayload struct {
	Version string               `json:"version"`
	Creds   model.CredentialBlob `json:"creds"`
}

type sendPayload struct {
	To     string            `json:"to"`
	Text   string            `json:"text"`
	Quoted *model.MessageRef `json:"quoted,omitempty"`
}

type resolvePayload struct {
	Phone string `json:"phone"`
}

type readPayload struct {
	Key model.MessageRef `json:"key"`
}

type sendResult struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type resolveResult struct {
	Exists bool   `json:"exists"`
	JID    string `json:"jid"`
}

type groupResult struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Size    int    `json:"size"`
}

type connectionUpdate struct {
	Connection     string          `json:"connection,omitempty"`
	QR             string          `json:"qr,omitempty"`
	LastDisconnect *lastDisconnect `json:"lastDisconnect,omitempty"`
}

type lastDisconnect struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
}

type messagesUpsert struct {
	Type     string        `json:"type"`
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	Key              model.MessageRef `json:"key"`
	PushName         string           `json:"pushName,omitempty"`
	MessageTimestamp int64            `json:"messageTimestamp,omitempty"`
	Message          *wireContent     `json:"message,omitempty"`
}

type wireContent struct {
	Conversation        string `json:"conversation,omitempty"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage,omitempty"`
	ImageMessage *struct {
		Caption string `json:"caption"`
	} `json:"imageMessage,omitempty"`
	VideoMessage *struct {
		Caption string `json:"caption"`
	} `json:"videoMessage,omitempty"`
}

// decodeEvent maps a gateway event frame to a domain event. terminal is true
// for the close update that ends the connection. Unknown events return nil.
func decodeEvent(f frame) (ev model.Event, terminal bool, err error) {
	switch f.Event {
	case eventConnectionUpdate:
		var u connectionUpdate
		if err := json.Unmarshal(f.Data, &u); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		conn := model.EventConnection{Phase: model.ConnectionPhase(u.Connection), QR: u.QR}
		if conn.Phase == model.PhaseClose {
			if u.LastDisconnect != nil {
				conn.Reason = model.DisconnectReason(u.LastDisconnect.StatusCode)
				conn.Detail = u.LastDisconnect.Message
			}
			return conn, true, nil
		}
		return conn, false, nil

	case eventCredsUpdate:
		var update model.CredentialBlob
		if err := json.Unmarshal(f.Data, &update); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return model.EventCredentials{Update: update}, false, nil

	case eventMessagesUpsert:
		var u messagesUpsert
		if err := json.Unmarshal(f.Data, &u); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		msgs := make([]model.InboundMessage, 0, len(u.Messages))
		for _, m := range u.Messages {
			msgs = append(msgs, toInboundMessage(m, u.Type))
		}
		return model.EventMessages{NotifyType: u.Type, Messages: msgs}, false, nil

	default:
		return nil, false, nil
	}
}

func toInboundMessage(m wireMessage, notifyType string) model.InboundMessage {
	sender := m.Key.Participant
	if sender == "" {
		sender = m.Key.Chat
	}

	msg := model.InboundMessage{
		Ref:        m.Key,
		Sender:     sender,
		PushName:   m.PushName,
		FromMe:     m.Key.FromMe,
		NotifyType: notifyType,
	}
	if m.MessageTimestamp > 0 {
		msg.Timestamp = time.Unix(m.MessageTimestamp, 0).UTC()
	}

	if c := m.Message; c != nil {
		msg.Content.Conversation = c.Conversation
		if c.ExtendedTextMessage != nil {
			msg.Content.ExtendedText = c.ExtendedTextMessage.Text
		}
		switch {
		case c.ImageMessage != nil:
			msg.Content.Caption = c.ImageMessage.Caption
		case c.VideoMessage != nil:
			msg.Content.Caption = c.VideoMessage.Caption
		}
	}

	return msg
}
