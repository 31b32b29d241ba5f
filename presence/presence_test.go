package presence

import (
	"testing"
	"time"

	"github.com/glowchat/glowchat/types"
	"github.com/stretchr/testify/assert"
)

func TestTypingVisibilityWindow(t *testing.T) {
	now := time.Now()
	registry := NewTypingRegistry(0, 0)
	registry.now = func() time.Time { return now }

	registry.Update("u1", "🙂", "Ann", true)
	registry.Update("u2", "🦊", "Ben", true)

	active := registry.ListActive("")
	assert.Len(t, active, 2)

	// entries disappear after 3s of silence even without a stop call
	now = now.Add(DefaultTypingVisibleFor)
	assert.Empty(t, registry.ListActive(""))
}

func TestTypingExcludesRequester(t *testing.T) {
	registry := NewTypingRegistry(0, 0)
	registry.Update("u1", "🙂", "Ann", true)
	registry.Update("u2", "🦊", "Ben", true)

	active := registry.ListActive("u1")
	assert.Len(t, active, 1)
	assert.Equal(t, "u2", active[0].UserId)
}

func TestTypingStopRemoves(t *testing.T) {
	registry := NewTypingRegistry(0, 0)
	registry.Update("u1", "🙂", "Ann", true)
	registry.Update("u1", "🙂", "Ann", false)
	assert.Empty(t, registry.ListActive(""))
}

func TestTypingSweepUsesStalenessThreshold(t *testing.T) {
	now := time.Now()
	registry := NewTypingRegistry(0, 0)
	registry.now = func() time.Time { return now }
	registry.Update("u1", "🙂", "Ann", true)

	// past visibility but not past staleness: invisible yet still kept
	now = now.Add(4 * time.Second)
	registry.Sweep()
	assert.Empty(t, registry.ListActive(""))
	registry.mu.RLock()
	kept := len(registry.users)
	registry.mu.RUnlock()
	assert.Equal(t, 1, kept)

	now = now.Add(2 * time.Second)
	registry.Sweep()
	registry.mu.RLock()
	kept = len(registry.users)
	registry.mu.RUnlock()
	assert.Equal(t, 0, kept)
}

func TestTypingOverwriteRefreshes(t *testing.T) {
	now := time.Now()
	registry := NewTypingRegistry(0, 0)
	registry.now = func() time.Time { return now }
	registry.Update("u1", "🙂", "Ann", true)

	now = now.Add(2 * time.Second)
	registry.Update("u1", "🙂", "Ann", true)

	now = now.Add(2 * time.Second)
	// 4s after the first update but only 2s after the refresh
	assert.Len(t, registry.ListActive(""), 1)
}

func TestActiveTrackerLifecycle(t *testing.T) {
	now := time.Now()
	tracker := NewActiveTracker(0)
	tracker.now = func() time.Time { return now }

	tracker.Register(types.JoinedUser{UserId: "u1", Emoji: "🙂", DisplayName: "Ann"})
	tracker.Register(types.JoinedUser{UserId: "u2", Emoji: "🦊", DisplayName: "Ben"})
	assert.Equal(t, 2, tracker.Count())

	// the heartbeat keeps u1 alive across the sweep
	now = now.Add(90 * time.Second)
	tracker.Touch("u1")
	now = now.Add(time.Minute)
	tracker.Sweep()

	users := tracker.List()
	assert.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserId)
}

func TestActiveTrackerTouchUnknownUser(t *testing.T) {
	tracker := NewActiveTracker(0)
	tracker.Touch("ghost")
	assert.Equal(t, 0, tracker.Count())
}

func TestActiveTrackerKick(t *testing.T) {
	tracker := NewActiveTracker(0)
	tracker.Register(types.JoinedUser{UserId: "u1", DisplayName: "Ann"})
	assert.True(t, tracker.Remove("u1"))
	assert.False(t, tracker.Remove("u1"))
	assert.Equal(t, 0, tracker.Count())
}
