/*
Package memstore is an in-process message store and user directory.

It backs local development (STORE_DRIVER=memory) and the service and handler
tests. State lives for the life of the process.
*/
package memstore

import (
	"context"
	"sort"
	"sync"

	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/user"
)

// Store implements messaging.Store and user.Directory.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User
	messages []messaging.Message
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users: make(map[string]user.User),
	}
}

// PutUser inserts or replaces u.
func (s *Store) PutUser(u user.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) FindUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (s *Store) SaveMessage(_ context.Context, m messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, m)
	return nil
}

func (s *Store) HasConversation(_ context.Context, a, b string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if between(m, a, b) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListConversation(_ context.Context, a, b string) ([]messaging.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]messaging.Message, 0)
	for _, m := range s.messages {
		if between(m, a, b) {
			out = append(out, m)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListPartners(_ context.Context, userID string, partnerRole user.Role) ([]messaging.PartnerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPartner := make(map[string]*messaging.PartnerSummary)

	for _, m := range s.messages {
		if m.Content == "" {
			continue
		}

		var otherID string
		switch userID {
		case m.SenderID:
			otherID = m.RecipientID
		case m.RecipientID:
			otherID = m.SenderID
		default:
			continue
		}

		other, ok := s.users[otherID]
		if !ok || other.Role != partnerRole {
			continue
		}

		summary, ok := byPartner[otherID]
		if !ok {
			summary = &messaging.PartnerSummary{
				ID:           other.ID,
				Name:         other.Name,
				Role:         other.Role,
				Field:        other.Field,
				ProfileImage: other.ProfileImage,
			}
			byPartner[otherID] = summary
		}

		summary.MessageCount++
		if !m.CreatedAt.Before(summary.LastMessageTime) {
			summary.LastMessage = m.Content
			summary.LastMessageTime = m.CreatedAt
		}
		if m.SenderID == otherID && !m.Read {
			summary.UnreadCount++
		}
	}

	out := make([]messaging.PartnerSummary, 0, len(byPartner))
	for _, summary := range byPartner {
		out = append(out, *summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, readerID, senderID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.SenderID == senderID && m.RecipientID == readerID && !m.Read {
			m.Read = true
			changed++
		}
	}
	return changed, nil
}

// between reports whether m was exchanged between a and b in either direction.
func between(m messaging.Message, a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}
