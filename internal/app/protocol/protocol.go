/*
Package protocol defines the realtime wire format: every frame is a JSON envelope
`{"event": <name>, "data": {...}}`.

Client frames decode into one Command variant each; server frames are built from
one Event variant each. Both sets are closed: Decode rejects unknown names and the
dispatcher switches over the concrete command types.
*/
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"mentorlink/internal/pkg/errs"
)

// Name is the value of the envelope's "event" field.
type Name string

// Client -> server events.
const (
	CmdJoinPersonal Name = "join_room"
	CmdNewMessage   Name = "new_message"
	CmdTyping       Name = "typing"
	CmdMarkRead     Name = "mark_read"
	CmdJoinCall     Name = "join-room"
	CmdOffer        Name = "offer"
	CmdAnswer       Name = "answer"
	CmdICECandidate Name = "ice-candidate"
	CmdLeaveCall    Name = "leave-room"
)

// Server -> client events.
const (
	EvConnected      Name = "connected"
	EvNewMessage     Name = "new_message"
	EvUpdateChatList Name = "update_chat_list"
	EvTyping         Name = "typing"
	EvMessagesRead   Name = "messages_read"
	EvRoomJoined     Name = "room-joined"
	EvUserJoined     Name = "user-joined"
	EvOffer          Name = "offer"
	EvAnswer         Name = "answer"
	EvICECandidate   Name = "ice-candidate"
	EvUserLeft       Name = "user-left"
	EvRoomExpired    Name = "room-expired"
	EvError          Name = "error"
)

// Envelope is the frame shape in both directions.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Command is an inbound client request.
type Command interface {
	CommandName() Name
}

// Event is an outbound server notification.
type Event interface {
	EventName() Name
}

// --- Commands ---

// JoinPersonal asks to (re)join the caller's personal room.
type JoinPersonal struct {
	UserID string `json:"userId"`
}

// SendMessage submits a chat message. Sender and CreatedAt are advisory; the
// server uses the authenticated identity and its own clock.
type SendMessage struct {
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
	TempID    string `json:"tempId,omitempty"`
}

// Typing relays a typing indicator to RecipientID.
type Typing struct {
	RecipientID string `json:"recipientId"`
	IsTyping    bool   `json:"isTyping"`
}

// MarkRead marks every unread message from SenderID to the caller as read.
type MarkRead struct {
	SenderID string `json:"senderId"`
}

// JoinCall joins or creates the call room RoomID.
type JoinCall struct {
	RoomID string `json:"roomId"`
}

// LeaveCall leaves the call room RoomID.
type LeaveCall struct {
	RoomID string `json:"roomId"`
}

// Offer carries an opaque SDP offer to TargetID.
type Offer struct {
	RoomID   string          `json:"roomId"`
	Offer    json.RawMessage `json:"offer"`
	SenderID string          `json:"senderId,omitempty"`
	TargetID string          `json:"targetId"`
}

// Answer carries an opaque SDP answer to TargetID.
type Answer struct {
	RoomID   string          `json:"roomId"`
	Answer   json.RawMessage `json:"answer"`
	SenderID string          `json:"senderId,omitempty"`
	TargetID string          `json:"targetId"`
}

// ICECandidate carries an opaque ICE candidate to TargetID.
type ICECandidate struct {
	RoomID    string          `json:"roomId"`
	Candidate json.RawMessage `json:"candidate"`
	SenderID  string          `json:"senderId,omitempty"`
	TargetID  string          `json:"targetId"`
}

func (JoinPersonal) CommandName() Name { return CmdJoinPersonal }
func (SendMessage) CommandName() Name  { return CmdNewMessage }
func (Typing) CommandName() Name       { return CmdTyping }
func (MarkRead) CommandName() Name     { return CmdMarkRead }
func (JoinCall) CommandName() Name     { return CmdJoinCall }
func (LeaveCall) CommandName() Name    { return CmdLeaveCall }
func (Offer) CommandName() Name        { return CmdOffer }
func (Answer) CommandName() Name       { return CmdAnswer }
func (ICECandidate) CommandName() Name { return CmdICECandidate }

// --- Events ---

// Party is a message participant with its display name.
type Party struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Connected is sent once after a successful handshake.
type Connected struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Role         string `json:"role"`
}

// NewMessage is a persisted message with both parties resolved.
type NewMessage struct {
	ID        string    `json:"_id"`
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Content   string    `json:"content"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
	TempID    string    `json:"tempId,omitempty"`
}

// UpdateChatList tells a client to refresh its conversation list. MentorID is
// the counterpart whose entry changed.
type UpdateChatList struct {
	MentorID    string `json:"mentorId"`
	LastMessage string `json:"lastMessage"`
}

// TypingNotice relays a typing indicator.
type TypingNotice struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

// MessagesRead tells the original sender that SenderID has read their messages.
type MessagesRead struct {
	SenderID string `json:"senderId"`
}

// RoomJoined acknowledges a call-room join to the joiner.
type RoomJoined struct {
	RoomID       string   `json:"roomId"`
	IsCreator    bool     `json:"isCreator"`
	Participants []string `json:"participants"`
}

// UserJoined tells existing participants that UserID (a connection id) joined.
type UserJoined struct {
	RoomID       string   `json:"roomId"`
	UserID       string   `json:"userId"`
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants"`
}

// RelayedOffer is an SDP offer from UserID.
type RelayedOffer struct {
	RoomID string          `json:"roomId"`
	Offer  json.RawMessage `json:"offer"`
	UserID string          `json:"userId"`
}

// RelayedAnswer is an SDP answer from SenderID.
type RelayedAnswer struct {
	RoomID   string          `json:"roomId"`
	Answer   json.RawMessage `json:"answer"`
	SenderID string          `json:"senderId"`
}

// RelayedCandidate is an ICE candidate from SenderID.
type RelayedCandidate struct {
	RoomID    string          `json:"roomId"`
	Candidate json.RawMessage `json:"candidate"`
	SenderID  string          `json:"senderId"`
}

// UserLeft tells the remaining participant that UserID left the call.
type UserLeft struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// RoomExpired tells a waiting participant the call room was reaped.
type RoomExpired struct {
	RoomID string `json:"roomId"`
}

// Error reports a connection-scoped failure. The connection stays open.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Event   Name   `json:"event,omitempty"`
	TempID  string `json:"tempId,omitempty"`
}

func (Connected) EventName() Name        { return EvConnected }
func (NewMessage) EventName() Name       { return EvNewMessage }
func (UpdateChatList) EventName() Name   { return EvUpdateChatList }
func (TypingNotice) EventName() Name     { return EvTyping }
func (MessagesRead) EventName() Name     { return EvMessagesRead }
func (RoomJoined) EventName() Name       { return EvRoomJoined }
func (UserJoined) EventName() Name       { return EvUserJoined }
func (RelayedOffer) EventName() Name     { return EvOffer }
func (RelayedAnswer) EventName() Name    { return EvAnswer }
func (RelayedCandidate) EventName() Name { return EvICECandidate }
func (UserLeft) EventName() Name         { return EvUserLeft }
func (RoomExpired) EventName() Name      { return EvRoomExpired }
func (Error) EventName() Name            { return EvError }

// ErrorFrom builds an Error event from any error.
func ErrorFrom(err error, cause Name, tempID string) Error {
	customErr := errs.From(err)
	return Error{
		Code:    customErr.Code,
		Message: customErr.Message,
		Event:   cause,
		TempID:  tempID,
	}
}

// Encode marshals ev into an envelope.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Data: data})
}

// Decode parses a client frame into its Command variant. It returns the event
// name even when decoding the data fails so errors can reference it.
func Decode(raw []byte) (Name, Command, error) {
	if !gjson.ValidBytes(raw) {
		return "", nil, errs.NewError(errs.ErrInvalidJSONFormat)
	}

	name := Name(gjson.GetBytes(raw, "event").String())
	data := gjson.GetBytes(raw, "data")

	var cmd Command
	switch name {
	case CmdJoinPersonal:
		cmd = &JoinPersonal{}
	case CmdNewMessage:
		cmd = &SendMessage{}
	case CmdTyping:
		cmd = &Typing{}
	case CmdMarkRead:
		cmd = &MarkRead{}
	case CmdJoinCall:
		cmd = &JoinCall{}
	case CmdLeaveCall:
		cmd = &LeaveCall{}
	case CmdOffer:
		cmd = &Offer{}
	case CmdAnswer:
		cmd = &Answer{}
	case CmdICECandidate:
		cmd = &ICECandidate{}
	default:
		return name, nil, errs.NewError(errs.ErrUnknownEvent, string(name))
	}

	if data.Exists() && data.Type != gjson.Null {
		if err := json.Unmarshal([]byte(data.Raw), cmd); err != nil {
			return name, nil, errs.Wrap(errs.ErrInvalidParams, err)
		}
	}

	return name, cmd, nil
}
