package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/app/protocol"
	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/randx"
)

// DefaultMaxContentBytes bounds message content when no limit is configured.
const DefaultMaxContentBytes = 5000

const (
	reasonSelfMessage     = "You cannot message yourself"
	reasonMentorsOnly     = "You can only start conversations with mentors"
	reasonMenteesInitiate = "Only mentees can initiate conversations"
)

// Notifier delivers events to live connections.
type Notifier interface {
	// NotifyUser delivers ev to every connection of userID except exceptConn.
	NotifyUser(userID string, ev protocol.Event, exceptConn string)

	// NotifyConn delivers ev to a single connection.
	NotifyConn(connID string, ev protocol.Event)
}

// OnlineLookup reports which users currently have a live connection.
type OnlineLookup interface {
	Online(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// AssetSigner turns an object-storage key into a time-limited URL.
type AssetSigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
}

// SendRequest is a message submission from an authenticated sender.
type SendRequest struct {
	RecipientID string
	Content     string

	// TempID is the client's correlation id, echoed on the originating connection.
	TempID string

	// OriginConn is the submitting connection, empty for HTTP submissions.
	OriginConn string
}

// Option configures a Service.
type Option func(*Service)

// WithMaxContentBytes overrides DefaultMaxContentBytes.
func WithMaxContentBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithOnlineLookup annotates partner summaries with online status.
func WithOnlineLookup(l OnlineLookup) Option {
	return func(s *Service) { s.online = l }
}

// WithAssetSigner presigns partner profile image keys.
func WithAssetSigner(a AssetSigner) Option {
	return func(s *Service) { s.assets = a }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock replaces time.Now as the source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the message relay.
type Service struct {
	store    Store
	users    user.Directory
	notifier Notifier

	maxBytes int
	online   OnlineLookup
	assets   AssetSigner
	tracer   trace.Tracer
	now      func() time.Time

	logger zerolog.Logger
}

// NewService returns a relay persisting to store, resolving users through users
// and delivering through notifier.
func NewService(store Store, users user.Directory, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		store:    store,
		users:    users,
		notifier: notifier,
		maxBytes: DefaultMaxContentBytes,
		tracer:   otel.Tracer("mentorlink/messaging"),
		now:      time.Now,
		logger:   logx.Component("messaging"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send validates and persists a message from sender, then delivers new_message
// and update_chat_list to every connection of both parties. A conversation can
// only be started by a mentee writing to a mentor; once it exists either side
// may continue it.
func (s *Service) Send(ctx context.Context, sender identity.Identity, req SendRequest) (msg Message, err error) {
	ctx, span := s.tracer.Start(ctx, "messaging.Send", trace.WithAttributes(
		attribute.String("sender.id", sender.UserID),
		attribute.String("recipient.id", req.RecipientID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errs.From(err).Message)
		}
		span.End()
	}()

	if err := s.validateContent(req.Content); err != nil {
		return Message{}, err
	}

	if req.RecipientID == "" {
		return Message{}, errs.NewError(errs.ErrInvalidParams)
	}

	if req.RecipientID == sender.UserID {
		return Message{}, errs.Policy(reasonSelfMessage)
	}

	recipient, err := s.users.FindUser(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Message{}, errs.Wrap(errs.ErrRecipientNotFound, err)
		}
		return Message{}, errs.Wrap(errs.ErrUnknown, err)
	}

	exists, err := s.store.HasConversation(ctx, sender.UserID, recipient.ID)
	if err != nil {
		return Message{}, errs.Wrap(errs.ErrMessagePersistFailed, err)
	}

	if !exists {
		if recipient.Role != user.RoleMentor {
			return Message{}, errs.Policy(reasonMentorsOnly)
		}
		if sender.Role != user.RoleMentee {
			return Message{}, errs.Policy(reasonMenteesInitiate)
		}
	}

	msg = Message{
		ID:          randx.MessageID(),
		SenderID:    sender.UserID,
		RecipientID: recipient.ID,
		Content:     req.Content,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).
			Str("user_id", sender.UserID).
			Str("recipient_id", recipient.ID).
			Msg("Failed to persist message.")
		return Message{}, errs.Wrap(errs.ErrMessagePersistFailed, err)
	}

	span.SetAttributes(attribute.String("message.id", msg.ID), attribute.Bool("conversation.new", !exists))

	s.fanOut(msg, sender, recipient, req)

	return msg, nil
}

func (s *Service) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errs.NewError(errs.ErrMessageContentEmpty)
	}
	if strings.ContainsRune(content, 0) {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if len(content) > s.maxBytes {
		return errs.NewError(errs.ErrMessageContentTooLong, s.maxBytes)
	}
	return nil
}

func (s *Service) fanOut(msg Message, sender identity.Identity, recipient user.User, req SendRequest) {
	if s.notifier == nil {
		return
	}

	ev := protocol.NewMessage{
		ID:        msg.ID,
		Sender:    protocol.Party{ID: sender.UserID, Name: sender.Name},
		Recipient: protocol.Party{ID: recipient.ID, Name: recipient.Name},
		Content:   msg.Content,
		Read:      msg.Read,
		CreatedAt: msg.CreatedAt,
	}

	s.notifier.NotifyUser(recipient.ID, ev, "")

	if req.OriginConn != "" {
		s.notifier.NotifyUser(sender.UserID, ev, req.OriginConn)

		acked := ev
		acked.TempID = req.TempID
		s.notifier.NotifyConn(req.OriginConn, acked)
	} else {
		s.notifier.NotifyUser(sender.UserID, ev, "")
	}

	s.notifier.NotifyUser(recipient.ID, protocol.UpdateChatList{MentorID: sender.UserID, LastMessage: msg.Content}, "")
	s.notifier.NotifyUser(sender.UserID, protocol.UpdateChatList{MentorID: recipient.ID, LastMessage: msg.Content}, "")
}

// ListConversation returns every message between a and b in non-decreasing
// creation order. The result does not depend on argument order.
func (s *Service) ListConversation(ctx context.Context, a, b string) ([]Message, error) {
	if a == "" || b == "" {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	messages, err := s.store.ListConversation(ctx, a, b)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnknown, err)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})

	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// Partners lists the conversation partners of userID whose role complements
// role, most recent conversation first.
func (s *Service) Partners(ctx context.Context, userID string, role user.Role) ([]PartnerSummary, error) {
	ctx, span := s.tracer.Start(ctx, "messaging.Partners", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("user.role", string(role)),
	))
	defer span.End()

	if userID == "" || !role.Valid() {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	partners, err := s.store.ListPartners(ctx, userID, role.Complement())
	if err != nil {
		span.RecordError(err)
		return nil, errs.Wrap(errs.ErrUnknown, err)
	}

	sort.SliceStable(partners, func(i, j int) bool {
		if !partners[i].LastMessageTime.Equal(partners[j].LastMessageTime) {
			return partners[i].LastMessageTime.After(partners[j].LastMessageTime)
		}
		return partners[i].ID < partners[j].ID
	})

	s.annotateOnline(ctx, partners)
	s.signImages(ctx, partners)

	if partners == nil {
		partners = []PartnerSummary{}
	}
	return partners, nil
}

func (s *Service) annotateOnline(ctx context.Context, partners []PartnerSummary) {
	if s.online == nil || len(partners) == 0 {
		return
	}

	ids := make([]string, len(partners))
	for i := range partners {
		ids[i] = partners[i].ID
	}

	online, err := s.online.Online(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Online lookup failed, listing without presence.")
		return
	}
	if online == nil {
		return
	}

	for i := range partners {
		v := online[partners[i].ID]
		partners[i].Online = &v
	}
}

func (s *Service) signImages(ctx context.Context, partners []PartnerSummary) {
	if s.assets == nil {
		return
	}

	for i := range partners {
		key := partners[i].ProfileImage
		if key == "" || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
			continue
		}

		url, err := s.assets.PresignDownload(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("object_key", key).Msg("Failed to presign profile image.")
			continue
		}
		partners[i].ProfileImage = url
	}
}

// MarkRead marks every unread message from otherID to readerID as read. When
// anything changed, otherID's connections receive messages_read. Repeating the
// call is a no-op.
func (s *Service) MarkRead(ctx context.Context, readerID, otherID string) (int64, error) {
	if readerID == "" || otherID == "" {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}

	changed, err := s.store.MarkRead(ctx, readerID, otherID)
	if err != nil {
		return 0, errs.Wrap(errs.ErrMessagePersistFailed, err)
	}

	if changed > 0 && s.notifier != nil {
		s.notifier.NotifyUser(otherID, protocol.MessagesRead{SenderID: readerID}, "")
	}

	return changed, nil
}

// Typing relays a typing indicator from fromID to toID's connections. Nothing
// is persisted and no timeout is enforced; clients clear their own indicators.
func (s *Service) Typing(fromID, toID string, isTyping bool) error {
	if toID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if toID == fromID || s.notifier == nil {
		return nil
	}

	s.notifier.NotifyUser(toID, protocol.TypingNotice{SenderID: fromID, IsTyping: isTyping}, "")
	return nil
}
