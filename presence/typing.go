// Package presence holds the two ephemeral registries of the chat: who is
// typing right now and who has been seen recently. Both are process-scoped,
// reset on restart and advisory only; a race here produces at worst a stale
// UI hint, never a data-integrity violation.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/glowchat/glowchat/types"
)

const (
	// DefaultTypingVisibleFor governs the client-visible "is typing" window.
	DefaultTypingVisibleFor = 3 * time.Second
	// DefaultTypingStaleAfter governs registry garbage collection. It is
	// deliberately longer than the visibility window: an entry can be
	// invisible but not yet collected.
	DefaultTypingStaleAfter = 5 * time.Second
	// TypingSweepSpec is the cron spec of the garbage collection sweep.
	TypingSweepSpec = "@every 2s"
)

// TypingRegistry is the time-decaying map of users currently composing a
// message. Entries are overwritten on every update, removed on an explicit
// stop and collected by Sweep once stale.
type TypingRegistry struct {
	mu         sync.RWMutex
	users      map[string]types.TypingUser
	visibleFor time.Duration
	staleAfter time.Duration

	// overridable for tests
	now func() time.Time
}

func NewTypingRegistry(visibleFor, staleAfter time.Duration) *TypingRegistry {
	if visibleFor <= 0 {
		visibleFor = DefaultTypingVisibleFor
	}
	if staleAfter <= 0 {
		staleAfter = DefaultTypingStaleAfter
	}
	return &TypingRegistry{
		users:      make(map[string]types.TypingUser),
		visibleFor: visibleFor,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Update records a typing state change. isTyping=false (or malformed input
// mapped to it by the caller) removes the entry.
func (r *TypingRegistry) Update(userId, emoji, displayName string, isTyping bool) {
	if userId == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !isTyping {
		delete(r.users, userId)
		return
	}
	r.users[userId] = types.TypingUser{
		UserId:      userId,
		Emoji:       emoji,
		DisplayName: displayName,
		LastUpdate:  r.now(),
	}
}

// ListActive returns the users typing within the visibility window,
// excluding excludeUserId (the requester never sees their own indicator).
func (r *TypingRegistry) ListActive(excludeUserId string) []types.TypingUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := r.now()
	active := make([]types.TypingUser, 0)
	for _, user := range r.users {
		if user.UserId == excludeUserId {
			continue
		}
		if now.Sub(user.LastUpdate) < r.visibleFor {
			active = append(active, user)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].UserId < active[j].UserId })
	return active
}

// Sweep drops entries past the staleness threshold, catching clients that
// stopped typing without sending a stop signal.
func (r *TypingRegistry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for userId, user := range r.users {
		if now.Sub(user.LastUpdate) > r.staleAfter {
			delete(r.users, userId)
		}
	}
}
