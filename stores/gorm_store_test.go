package stores

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Desarso/chatrelay/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := NewStoreConfig("sqlite", filepath.Join(t.TempDir(), "test.sqlite")).
		WithOption("log_level", "silent")
	store, err := NewSQLiteStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestNewStore_UnsupportedType(t *testing.T) {
	_, err := NewStore(NewStoreConfig("mongo", ""))
	if err == nil {
		t.Fatal("Expected error for unsupported store type")
	}
}

func TestNewSQLiteStore_WrongType(t *testing.T) {
	_, err := NewSQLiteStore(NewStoreConfig("postgres", "x"))
	assert.Error(t, err)
}

func TestSQLiteStore_Ping(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Ping())
}

func TestCreateAndGetConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, strPtr("First"))
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "First", *got.Title)
	assert.Empty(t, got.Messages)
}

func TestGetConversation_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetConversation(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)
}

func TestSaveMessage_SequenceAndPreview(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	long := strings.Repeat("é", previewLength+20)
	_, err = store.SaveMessage(ctx, conv.ID, models.RoleUser, long)
	require.NoError(t, err)
	_, err = store.SaveMessageWithID(ctx, "assistant-1", conv.ID, models.RoleAssistant, "reply")
	require.NoError(t, err)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, 1, got.Messages[0].Sequence)
	assert.Equal(t, models.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "assistant-1", got.Messages[1].ID)
	assert.Equal(t, 2, got.Messages[1].Sequence)
	assert.Equal(t, 2, got.MessageCount)
	assert.Equal(t, strings.Repeat("é", previewLength), got.Preview)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "reply", msgs[1].Content)
}

func TestSaveMessage_ConcurrentSavesGetDistinctSequences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.SaveMessage(ctx, conv.ID, models.RoleUser, "hi")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Sequence)
	}
}

func TestMessage_SequenceUniquePerConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, conv.ID, models.RoleUser, "hi")
	require.NoError(t, err)

	dup := Message{ConversationID: conv.ID, Sequence: 1, Role: models.RoleAssistant, Content: "dup"}
	assert.Error(t, store.DB().Create(&dup).Error)

	other, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)
	sameSeq := Message{ConversationID: other.ID, Sequence: 1, Role: models.RoleUser, Content: "fine"}
	assert.NoError(t, store.DB().Create(&sameSeq).Error)
}

func TestNewSQLiteStoreDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	store, err := NewSQLiteStoreDefault()
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping())
	assert.FileExists(t, "chatrelay.sqlite")
}

func TestSaveMessage_UnknownConversation(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveMessage(context.Background(), "missing", models.RoleUser, "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversations_Pagination(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.CreateConversation(ctx, nil)
		require.NoError(t, err)
	}

	page, total, err := store.ListConversations(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	page, total, err = store.ListConversations(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 1)
}

func TestUpdateConversationTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)

	updated, err := store.UpdateConversationTitle(ctx, conv.ID, "Renamed")
	require.NoError(t, err)
	require.NotNil(t, updated.Title)
	assert.Equal(t, "Renamed", *updated.Title)

	_, err = store.UpdateConversationTitle(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversation_RemovesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, conv.ID, models.RoleUser, "hi")
	require.NoError(t, err)

	require.NoError(t, store.DeleteConversation(ctx, conv.ID))

	_, err = store.GetConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, store.DeleteConversation(ctx, conv.ID), ErrNotFound)
}

func TestPruneEmptyConversations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)
	used, err := store.CreateConversation(ctx, nil)
	require.NoError(t, err)
	_, err = store.SaveMessage(ctx, used.ID, models.RoleUser, "hi")
	require.NoError(t, err)

	// Nothing is old enough yet
	n, err := store.PruneEmptyConversations(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.PruneEmptyConversations(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.GetConversation(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetConversation(ctx, used.ID)
	assert.NoError(t, err)
}
