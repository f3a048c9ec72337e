package model

import "time"

// NotifyTypeNotify marks a message delivered live, as opposed to history sync.
const NotifyTypeNotify = "notify"

// RecipientID is the network address of a resolved destination.
type RecipientID string

// MessageRef identifies a message on the network so it can be quoted or marked read.
type MessageRef struct {
	ID          string `json:"id"`
	Chat        string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant,omitempty"`
}

// MessageContent holds the text-carrying fields a message may populate.
type MessageContent struct {
	Conversation string
	ExtendedText string
	Caption      string
}

// InboundMessage is a transient record of a message received from the network.
type InboundMessage struct {
	Ref        MessageRef
	Sender     string
	PushName   string
	FromMe     bool
	NotifyType string
	Content    MessageContent
	Timestamp  time.Time
}

// SendRequest is an outbound send as received at the API boundary.
type SendRequest struct {
	Message string
	Phone   string
	Token   string
}

// DeliveryAck is the gateway's acknowledgment of an accepted outbound message.
type DeliveryAck struct {
	ID        string      `json:"id"`
	Recipient RecipientID `json:"recipient"`
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
}

// Group is a group membership visible to the session.
type Group struct {
	ID           string
	Subject      string
	Participants int
}
