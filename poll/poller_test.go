package poll

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glowchat/glowchat/adminauth"
	"github.com/glowchat/glowchat/api"
	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/presence"
	"github.com/glowchat/glowchat/store"
	"github.com/glowchat/glowchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 50 * time.Millisecond
	testRefresh  = 10 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 10 * time.Millisecond
)

type pollFixture struct {
	store  store.Store
	client *Client
	server *httptest.Server
}

func newPollFixture(t *testing.T) *pollFixture {
	t.Helper()
	cfg := &config.Config{}
	cfg.PersistenceConfig.Type = "buntdb"
	cfg.PersistenceConfig.DSN = ":memory:"
	st, err := store.New(cfg)
	require.NoError(t, err)
	require.NoError(t, st.EnsureRoom("pw", true))
	t.Cleanup(func() { st.Close() })

	admin := adminauth.NewManager(filepath.Join(t.TempDir(), "admin-config.json"))
	handler := api.NewHandler(st, presence.NewTypingRegistry(0, 0), presence.NewActiveTracker(0), admin, nil)
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return &pollFixture{store: st, client: NewClient(server.URL, nil), server: server}
}

func (f *pollFixture) joinAs(t *testing.T, name string) types.JoinedUser {
	t.Helper()
	user, err := f.client.Join("🙂", name, "pw")
	require.NoError(t, err)
	return user
}

func (f *pollFixture) startPoller(t *testing.T, user types.JoinedUser) *Poller {
	t.Helper()
	poller := NewPoller(f.client, user, testInterval, testRefresh)
	poller.Start()
	t.Cleanup(poller.Stop)
	return poller
}

func TestPollerCyclePopulatesSnapshot(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	ben := f.joinAs(t, "Ben")

	_, err := f.store.AppendMessage(types.MessageDraft{
		Emoji: ben.Emoji, DisplayName: ben.DisplayName, UserId: ben.UserId, Message: "hello",
	})
	require.NoError(t, err)

	poller := f.startPoller(t, ann)

	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		return snap.Connected && len(snap.Messages) == 1
	}, waitFor, tick)

	snap := poller.Snapshot()
	assert.Equal(t, "hello", snap.Messages[0].Message)
	assert.Equal(t, snap.Messages[0].Id, snap.LastMessageId)
}

func TestPollerExcludesOwnTyping(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	ben := f.joinAs(t, "Ben")

	require.NoError(t, f.client.SetTyping(ann.UserId, ann.Emoji, ann.DisplayName, true))
	require.NoError(t, f.client.SetTyping(ben.UserId, ben.Emoji, ben.DisplayName, true))

	poller := f.startPoller(t, ann)

	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		return snap.Connected && len(snap.TypingUsers) == 1 && snap.TypingUsers[0].UserId == ben.UserId
	}, waitFor, tick)
}

func TestPollerSendMessageForcesRefresh(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := f.startPoller(t, ann)

	require.NoError(t, poller.SendMessage("first", nil))
	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].Message == "first"
	}, waitFor, tick)

	first := poller.Snapshot().Messages[0].ChatMessage
	require.NoError(t, poller.SendMessage("second", &first))
	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		if len(snap.Messages) != 2 {
			return false
		}
		reply := snap.Messages[1]
		return reply.ReplyToId != nil && *reply.ReplyToId == first.Id && reply.ReplyToMessage == "first"
	}, waitFor, tick)
}

func TestPollerFailedSendLeavesStateUntouched(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := f.startPoller(t, ann)

	assert.Eventually(t, func() bool { return poller.Snapshot().Connected }, waitFor, tick)

	err := poller.SendMessage("   ", nil)
	require.Error(t, err)
	assert.Empty(t, poller.Snapshot().Messages)
}

func TestPollerOptimisticReactionPatch(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := f.startPoller(t, ann)

	require.NoError(t, poller.SendMessage("react to me", nil))
	assert.Eventually(t, func() bool { return len(poller.Snapshot().Messages) == 1 }, waitFor, tick)
	messageId := poller.Snapshot().Messages[0].Id

	require.NoError(t, poller.AddReaction(messageId, "😀"))

	// the patch is visible immediately, before any refresh
	snap := poller.Snapshot()
	require.Len(t, snap.Messages, 1)
	require.Len(t, snap.Messages[0].Reactions, 1)
	assert.Equal(t, "😀", snap.Messages[0].Reactions[0].Emoji)

	// the refresh replaces the placeholder with the server-assigned row
	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		return len(snap.Messages) == 1 &&
			len(snap.Messages[0].Reactions) == 1 &&
			snap.Messages[0].Reactions[0].Id > 0
	}, waitFor, tick)

	require.NoError(t, poller.RemoveReaction(messageId, "😀"))
	snap = poller.Snapshot()
	assert.Empty(t, snap.Messages[0].Reactions)
	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		return len(snap.Messages) == 1 && len(snap.Messages[0].Reactions) == 0
	}, waitFor, tick)
}

func TestPollerRejectedReactionAddsNoPatch(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := f.startPoller(t, ann)

	require.NoError(t, poller.SendMessage("capped", nil))
	assert.Eventually(t, func() bool { return len(poller.Snapshot().Messages) == 1 }, waitFor, tick)
	messageId := poller.Snapshot().Messages[0].Id

	require.NoError(t, poller.AddReaction(messageId, "😀"))
	require.NoError(t, poller.AddReaction(messageId, "👍"))

	err := poller.AddReaction(messageId, "❤️")
	require.Error(t, err)
	assert.Eventually(t, func() bool {
		return len(poller.Snapshot().Messages[0].Reactions) == 2
	}, waitFor, tick)

	// the rejected third emoji never shows up
	for _, reaction := range poller.Snapshot().Messages[0].Reactions {
		assert.NotEqual(t, "❤️", reaction.Emoji)
	}
}

func TestPollerServerLossFlipsConnected(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := f.startPoller(t, ann)

	require.NoError(t, poller.SendMessage("still here", nil))
	assert.Eventually(t, func() bool {
		snap := poller.Snapshot()
		return snap.Connected && len(snap.Messages) == 1
	}, waitFor, tick)

	f.server.Close()

	assert.Eventually(t, func() bool { return !poller.Snapshot().Connected }, waitFor, tick)
	// the last known snapshot stays readable while disconnected
	assert.Len(t, poller.Snapshot().Messages, 1)
}

func TestPollerStop(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := NewPoller(f.client, ann, testInterval, testRefresh)
	poller.Start()

	assert.Eventually(t, func() bool { return poller.Snapshot().Connected }, waitFor, tick)

	poller.Stop()
	poller.Stop() // idempotent
	assert.False(t, poller.Snapshot().Connected)
}

func TestCycleFinishingAfterStopStaysDisconnected(t *testing.T) {
	f := newPollFixture(t)
	ann := f.joinAs(t, "Ann")
	poller := NewPoller(f.client, ann, testInterval, testRefresh)
	poller.Start()
	assert.Eventually(t, func() bool { return poller.Snapshot().Connected }, waitFor, tick)

	poller.Stop()
	// a cycle that was already in flight when Stop ran completes afterwards;
	// it must not flip the connected flag back on
	poller.cycle()
	assert.False(t, poller.Snapshot().Connected)
}

func TestClientSurfacesServerMessage(t *testing.T) {
	f := newPollFixture(t)
	_, err := f.client.Join("🙂", "Ann", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid password")
}
