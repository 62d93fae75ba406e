package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentorlink/internal/app/db"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/randx"
)

// newTestStore connects to TEST_DATABASE_URL and runs every statement inside a
// transaction that is rolled back when the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dsn, true)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })

	return New(tx)
}

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mentee := user.User{ID: randx.MessageID(), Name: "Mia", Role: user.RoleMentee}
	mentor := user.User{ID: randx.MessageID(), Name: "Max", Role: user.RoleMentor, Field: "Go"}
	require.NoError(t, s.UpsertUser(ctx, mentee))
	require.NoError(t, s.UpsertUser(ctx, mentor))

	found, err := s.FindUser(ctx, mentor.ID)
	require.NoError(t, err)
	assert.Equal(t, mentor, found)

	_, err = s.FindUser(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)

	exists, err := s.HasConversation(ctx, mentee.ID, mentor.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, m := range []messaging.Message{
		{SenderID: mentee.ID, RecipientID: mentor.ID, Content: "hi"},
		{SenderID: mentor.ID, RecipientID: mentee.ID, Content: "hello"},
		{SenderID: mentor.ID, RecipientID: mentee.ID, Content: "how can I help?"},
	} {
		m.ID = randx.MessageID()
		m.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.SaveMessage(ctx, m))
	}

	history, err := s.ListConversation(ctx, mentor.ID, mentee.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "hi", history[0].Content)

	partners, err := s.ListPartners(ctx, mentee.ID, user.RoleMentor)
	require.NoError(t, err)
	require.Len(t, partners, 1)
	assert.Equal(t, mentor.ID, partners[0].ID)
	assert.Equal(t, "how can I help?", partners[0].LastMessage)
	assert.Equal(t, int64(3), partners[0].MessageCount)
	assert.Equal(t, int64(2), partners[0].UnreadCount)

	changed, err := s.MarkRead(ctx, mentee.ID, mentor.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	changed, err = s.MarkRead(ctx, mentee.ID, mentor.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
