/*
Package messaging implements the message relay: persisting direct messages
between mentors and mentees, enforcing who may start a conversation, and fanning
the results out to every live connection of both parties.

This file defines the persisted Message, the derived PartnerSummary and the Store
contract that the postgres, mongo and in-memory backends implement.
*/
package messaging

import (
	"context"
	"time"

	"mentorlink/internal/app/user"
)

// Message is a persisted direct message. Read only ever goes from false to true.
type Message struct {
	ID          string    `json:"_id" bson:"_id"`
	SenderID    string    `json:"sender" bson:"sender"`
	RecipientID string    `json:"recipient" bson:"recipient"`
	Content     string    `json:"content" bson:"content"`
	Read        bool      `json:"read" bson:"read"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// PartnerSummary is one entry of a user's conversation list.
type PartnerSummary struct {
	ID           string    `json:"_id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Role         user.Role `json:"role" bson:"role"`
	Field        string    `json:"field,omitempty" bson:"field,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty" bson:"profileImage,omitempty"`

	LastMessage     string    `json:"lastMessage" bson:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime" bson:"lastMessageTime"`
	MessageCount    int64     `json:"messageCount" bson:"messageCount"`

	// UnreadCount counts messages from the partner the user has not read yet.
	UnreadCount int64 `json:"unreadCount" bson:"unreadCount"`

	// Online is set only when a presence mirror is configured.
	Online *bool `json:"online,omitempty" bson:"-"`
}

// Store persists messages. Implementations must be safe for concurrent use.
type Store interface {
	// SaveMessage inserts m. m.ID and m.CreatedAt are set by the caller.
	SaveMessage(ctx context.Context, m Message) error

	// HasConversation reports whether any message exists between a and b in either direction.
	HasConversation(ctx context.Context, a, b string) (bool, error)

	// ListConversation returns every message between a and b, oldest first.
	ListConversation(ctx context.Context, a, b string) ([]Message, error)

	// ListPartners returns one summary per counterpart of userID whose role is
	// partnerRole and who exchanged at least one non-empty message, most recent first.
	ListPartners(ctx context.Context, userID string, partnerRole user.Role) ([]PartnerSummary, error)

	// MarkRead flips read on every unread message from senderID to readerID and
	// returns how many changed.
	MarkRead(ctx context.Context, readerID, senderID string) (int64, error)
}
