package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

var (
	// ErrNotConnected is returned when an operation needs an open connection and none exists.
	ErrNotConnected = errors.New("not connected")

	// ErrRecipientUnknown is returned by Send when the destination is not resolvable.
	ErrRecipientUnknown = errors.New("recipient unknown")

	// ErrRecipientNotFound is returned by ResolveRecipient when the phone is not on the network.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// MessagingClient defines the driven port for the single live connection to
// the messaging network. Implementations own at most one connection at a time.
type MessagingClient interface {
	// Connect establishes a new connection authenticated with creds, closing
	// and waiting out any previous one first. The returned channel yields
	// events in network order and is closed after the connection ends.
	Connect(ctx context.Context, creds model.CredentialBlob) (<-chan model.Event, error)

	// Send delivers text to recipient, optionally quoting another message.
	Send(ctx context.Context, recipient model.RecipientID, text string, quoted *model.MessageRef) (model.DeliveryAck, error)

	// ResolveRecipient checks that phone is reachable on the network.
	ResolveRecipient(ctx context.Context, phone string) (model.RecipientID, error)

	// MarkRead sends a read receipt for ref.
	MarkRead(ctx context.Context, ref model.MessageRef) error

	// JoinedGroups lists the groups the session is a member of.
	JoinedGroups(ctx context.Context) ([]model.Group, error)

	// Logout terminates the session on the network. The credentials used to
	// connect are no longer valid afterwards.
	Logout(ctx context.Context) error

	// Close tears down the live connection, if any.
	Close() error
}
