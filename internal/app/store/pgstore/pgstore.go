/*
Package pgstore implements the message store and user directory on PostgreSQL
through pgx. The schema lives in internal/app/db/migrations.
*/
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mentorlink/internal/app/db"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/user"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements messaging.Store and user.Directory.
type Store struct {
	db DBTX
}

// New returns a Store over db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

const findUser = `
SELECT id, name, role, field, profile_image
FROM users
WHERE id = $1`

func (s *Store) FindUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := s.db.QueryRow(ctx, findUser, id).Scan(&u.ID, &u.Name, &u.Role, &u.Field, &u.ProfileImage)
	if err != nil {
		if db.IsNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return u, nil
}

const upsertUser = `
INSERT INTO users (id, name, role, field, profile_image)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, role = EXCLUDED.role, field = EXCLUDED.field, profile_image = EXCLUDED.profile_image`

// UpsertUser inserts or replaces u.
func (s *Store) UpsertUser(ctx context.Context, u user.User) error {
	if _, err := s.db.Exec(ctx, upsertUser, u.ID, u.Name, u.Role, u.Field, u.ProfileImage); err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

const insertMessage = `
INSERT INTO messages (id, sender_id, recipient_id, content, read, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

func (s *Store) SaveMessage(ctx context.Context, m messaging.Message) error {
	_, err := s.db.Exec(ctx, insertMessage, m.ID, m.SenderID, m.RecipientID, m.Content, m.Read, m.CreatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return fmt.Errorf("message %s already stored: %w", m.ID, err)
		case db.IsForeignKeyViolation(err):
			return fmt.Errorf("message %s references an unknown user: %w", m.ID, err)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const hasConversation = `
SELECT EXISTS (
    SELECT 1 FROM messages
    WHERE (sender_id = $1 AND recipient_id = $2)
       OR (sender_id = $2 AND recipient_id = $1)
)`

func (s *Store) HasConversation(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, hasConversation, a, b).Scan(&exists); err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return exists, nil
}

const listConversation = `
SELECT id, sender_id, recipient_id, content, read, created_at
FROM messages
WHERE (sender_id = $1 AND recipient_id = $2)
   OR (sender_id = $2 AND recipient_id = $1)
ORDER BY created_at, id COLLATE "C"`

func (s *Store) ListConversation(ctx context.Context, a, b string) ([]messaging.Message, error) {
	rows, err := s.db.Query(ctx, listConversation, a, b)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (messaging.Message, error) {
		var m messaging.Message
		err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Read, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return messages, nil
}

// listPartners ranks each counterpart's messages to pick the latest one and
// counts totals and unread messages in the same pass.
const listPartners = `
WITH exchanged AS (
    SELECT CASE WHEN m.sender_id = $1 THEN m.recipient_id ELSE m.sender_id END AS partner_id,
           m.id, m.sender_id, m.content, m.read, m.created_at
    FROM messages m
    WHERE (m.sender_id = $1 OR m.recipient_id = $1)
      AND m.content <> ''
),
ranked AS (
    SELECT e.*,
           ROW_NUMBER() OVER (PARTITION BY e.partner_id ORDER BY e.created_at DESC, e.id COLLATE "C" DESC) AS rn,
           COUNT(*) OVER (PARTITION BY e.partner_id) AS message_count,
           COUNT(*) FILTER (WHERE e.sender_id = e.partner_id AND NOT e.read)
               OVER (PARTITION BY e.partner_id) AS unread_count
    FROM exchanged e
)
SELECT u.id, u.name, u.role, u.field, u.profile_image,
       r.content, r.created_at, r.message_count, r.unread_count
FROM ranked r
JOIN users u ON u.id = r.partner_id
WHERE r.rn = 1 AND u.role = $2
ORDER BY r.created_at DESC, u.id`

func (s *Store) ListPartners(ctx context.Context, userID string, partnerRole user.Role) ([]messaging.PartnerSummary, error) {
	rows, err := s.db.Query(ctx, listPartners, userID, partnerRole)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}

	partners, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (messaging.PartnerSummary, error) {
		var p messaging.PartnerSummary
		err := row.Scan(
			&p.ID, &p.Name, &p.Role, &p.Field, &p.ProfileImage,
			&p.LastMessage, &p.LastMessageTime, &p.MessageCount, &p.UnreadCount,
		)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan partners: %w", err)
	}
	return partners, nil
}

const markRead = `
UPDATE messages
SET read = TRUE
WHERE sender_id = $2 AND recipient_id = $1 AND read = FALSE`

func (s *Store) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	tag, err := s.db.Exec(ctx, markRead, readerID, senderID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}
