package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestCreateAndGetConversation(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "Trip planning")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	require.NotEmpty(t, conv.SessionToken)
	assert.NotEqual(t, conv.ID, conv.SessionToken)
	assert.Len(t, conv.SessionToken, 16)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)

	got, err := database.GetConversation(ctx, "owner-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, "Trip planning", got.Title)
	assert.Equal(t, conv.SessionToken, got.SessionToken)
}

func TestGetConversation_NotOwned(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "Private")
	require.NoError(t, err)

	_, err = database.GetConversation(ctx, "owner-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = database.GetConversation(ctx, "owner-1", "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversations_RecencyOrder(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	first, err := database.CreateConversation(ctx, "owner-1", "first")
	require.NoError(t, err)
	second, err := database.CreateConversation(ctx, "owner-1", "second")
	require.NoError(t, err)
	_, err = database.CreateConversation(ctx, "owner-2", "other owner")
	require.NoError(t, err)

	// Touching the older conversation moves it to the front.
	_, err = database.TouchConversation(ctx, first.ID)
	require.NoError(t, err)

	conversations, err := database.ListConversations(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, first.ID, conversations[0].ID)
	assert.Equal(t, second.ID, conversations[1].ID)
}

func TestSaveMessage_AssignsIdentityAndTimestamp(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "t")
	require.NoError(t, err)

	msg := &models.Message{ConvID: conv.ID, Role: models.RoleUser, Text: "hello"}
	require.NoError(t, database.SaveMessage(ctx, msg))
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestGetConversationHistory_Ordering(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "t")
	require.NoError(t, err)

	texts := []string{"one", "two", "three", "four"}
	roles := []string{models.RoleUser, models.RoleAI, models.RoleUser, models.RoleAI}
	for i := range texts {
		msg := &models.Message{ConvID: conv.ID, Role: roles[i], Text: texts[i]}
		require.NoError(t, database.SaveMessage(ctx, msg))
	}

	history, err := database.GetConversationHistory(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, msg := range history {
		assert.Equal(t, texts[i], msg.Text)
		assert.Equal(t, roles[i], msg.Role)
	}
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
	}

	// Reads are idempotent.
	again, err := database.GetConversationHistory(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, history, again)
}

func TestUpdateConversationTitle(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "old")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	updated, err := database.UpdateConversationTitle(ctx, "owner-1", conv.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.True(t, updated.UpdatedAt.After(conv.UpdatedAt))

	_, err = database.UpdateConversationTitle(ctx, "owner-2", conv.ID, "hijack")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "t")
	require.NoError(t, err)
	msg := &models.Message{ConvID: conv.ID, Role: models.RoleUser, Text: "hello"}
	require.NoError(t, database.SaveMessage(ctx, msg))

	require.NoError(t, database.DeleteConversation(ctx, "owner-1", conv.ID))

	_, err = database.GetConversation(ctx, "owner-1", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := database.GetConversationHistory(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeleteConversation_NotOwned(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	conv, err := database.CreateConversation(ctx, "owner-1", "t")
	require.NoError(t, err)
	msg := &models.Message{ConvID: conv.ID, Role: models.RoleUser, Text: "hello"}
	require.NoError(t, database.SaveMessage(ctx, msg))

	err = database.DeleteConversation(ctx, "owner-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Nothing was removed.
	history, err := database.GetConversationHistory(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
