package store

import (
	"sync"
	"testing"

	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	cfg := &config.Config{}
	cfg.PersistenceConfig.Type = "buntdb"
	cfg.PersistenceConfig.DSN = ":memory:"
	st, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func draft(userId, displayName, message string) types.MessageDraft {
	return types.MessageDraft{
		Emoji:       "🙂",
		DisplayName: displayName,
		UserId:      userId,
		Message:     message,
	}
}

func TestAppendMessageValidation(t *testing.T) {
	st := newTestStore(t)

	_, err := st.AppendMessage(draft("u1", "Ann", ""))
	assert.Equal(t, CodeValidation, CodeOf(err))

	_, err = st.AppendMessage(draft("u1", "  ", "hello"))
	assert.Equal(t, CodeValidation, CodeOf(err))

	msg, err := st.AppendMessage(draft("u1", "Ann", "hello"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Id)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestMessageOrderingStable(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 10; i++ {
		_, err := st.AppendMessage(draft("u1", "Ann", "msg"))
		require.NoError(t, err)
	}
	first, err := st.Messages()
	require.NoError(t, err)
	second, err := st.Messages()
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Id, first[i].Id)
		assert.False(t, first[i].CreatedAt.Before(first[i-1].CreatedAt))
	}
}

func TestReplySnapshotSurvivesDeletion(t *testing.T) {
	st := newTestStore(t)
	hello, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)

	reply := draft("uB", "B", "hi")
	reply.ReplyToId = &hello.Id
	reply.ReplyToMessage = hello.Message
	reply.ReplyToDisplayName = hello.DisplayName
	hi, err := st.AppendMessage(reply)
	require.NoError(t, err)
	require.NotNil(t, hi.ReplyToId)
	assert.Equal(t, hello.Id, *hi.ReplyToId)
	assert.Equal(t, "hello", hi.ReplyToMessage)
	assert.Equal(t, "A", hi.ReplyToDisplayName)

	require.NoError(t, st.DeleteMessage(hello.Id))

	messages, err := st.Messages()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, hi.Id, messages[0].Id)
	assert.Equal(t, "hello", messages[0].ReplyToMessage)
	assert.Equal(t, "A", messages[0].ReplyToDisplayName)
}

func TestDeleteMessageIdempotentAndCascades(t *testing.T) {
	st := newTestStore(t)
	msg, err := st.AppendMessage(draft("u1", "Ann", "hello"))
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u2", "😀", "Ben")
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u3", "👍", "Cid")
	require.NoError(t, err)

	require.NoError(t, st.DeleteMessage(msg.Id))
	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.Empty(t, reactions)

	// deleting a nonexistent id is not an error
	assert.NoError(t, st.DeleteMessage(msg.Id))
	assert.NoError(t, st.DeleteMessage(999))
}

func TestClearMessages(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 3; i++ {
		msg, err := st.AppendMessage(draft("u1", "Ann", "hello"))
		require.NoError(t, err)
		_, err = st.AddReaction(msg.Id, "u2", "😀", "Ben")
		require.NoError(t, err)
	}
	require.NoError(t, st.ClearMessages())

	messages, err := st.Messages()
	require.NoError(t, err)
	assert.Empty(t, messages)
	for id := int64(1); id <= 3; id++ {
		reactions, err := st.ReactionsFor(id)
		require.NoError(t, err)
		assert.Empty(t, reactions)
	}
}

func TestReactionCap(t *testing.T) {
	st := newTestStore(t)
	msg, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)

	_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u1", "👍", "Ann")
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u1", "❤️", "Ann")
	assert.Equal(t, CodeLimitExceeded, CodeOf(err))

	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.Len(t, reactions, 2)

	// the cap is per (message, user): another user still may react
	_, err = st.AddReaction(msg.Id, "u2", "❤️", "Ben")
	assert.NoError(t, err)
}

func TestDuplicateReactionRejected(t *testing.T) {
	st := newTestStore(t)
	msg, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)

	_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
	assert.Equal(t, CodeDuplicateReaction, CodeOf(err))

	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
}

func TestReactionOnMissingMessage(t *testing.T) {
	st := newTestStore(t)
	_, err := st.AddReaction(42, "u1", "😀", "Ann")
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestRemoveReactionIdempotent(t *testing.T) {
	st := newTestStore(t)
	msg, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
	require.NoError(t, err)

	require.NoError(t, st.RemoveReaction(msg.Id, "u1", "😀"))
	require.NoError(t, st.RemoveReaction(msg.Id, "u1", "😀"))
	require.NoError(t, st.RemoveReaction(999, "u1", "😀"))

	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.Empty(t, reactions)
}

func TestConcurrentReactionsNeverExceedCap(t *testing.T) {
	st := newTestStore(t)
	msg, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)

	emojis := []string{"😀", "👍", "❤️", "🎉", "🔥", "😮"}
	var wg sync.WaitGroup
	for _, emoji := range emojis {
		wg.Add(1)
		go func(emoji string) {
			defer wg.Done()
			_, _ = st.AddReaction(msg.Id, "u1", emoji, "Ann")
		}(emoji)
	}
	wg.Wait()

	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(reactions), types.ReactionLimit)
}

func TestConcurrentDuplicateAddsPersistOnce(t *testing.T) {
	st := newTestStore(t)
	msg, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = st.AddReaction(msg.Id, "u1", "😀", "Ann")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, CodeDuplicateReaction, CodeOf(err))
		}
	}
	assert.Equal(t, 1, succeeded)

	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.Len(t, reactions, 1)
}

func TestRoomLifecycle(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.EnsureRoom("initial", true))
	// a second call must not overwrite the singleton
	require.NoError(t, st.EnsureRoom("other", false))

	room, err := st.Room()
	require.NoError(t, err)
	assert.Equal(t, int64(types.RoomId), room.Id)
	assert.Equal(t, "initial", room.Password)
	assert.True(t, room.IsActive)

	require.NoError(t, st.UpdateRoomPassword("rotated"))
	require.NoError(t, st.SetRoomActive(false))
	room, err = st.Room()
	require.NoError(t, err)
	assert.Equal(t, "rotated", room.Password)
	assert.False(t, room.IsActive)
}
