package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/glowchat/glowchat/types"
)

const (
	// DefaultActiveStaleAfter is the inactivity threshold after which a user
	// no longer counts as connected.
	DefaultActiveStaleAfter = 2 * time.Minute
	// ActiveSweepSpec is the cron spec of the inactivity sweep.
	ActiveSweepSpec = "@every 30s"
)

// ActiveTracker records recently-seen users for the admin connected-users
// view. "Connected" means "recently active", not "has an open socket": the
// entry is refreshed by Touch whenever the user's client performs a read.
type ActiveTracker struct {
	mu         sync.RWMutex
	users      map[string]types.ActiveUser
	staleAfter time.Duration

	now func() time.Time
}

func NewActiveTracker(staleAfter time.Duration) *ActiveTracker {
	if staleAfter <= 0 {
		staleAfter = DefaultActiveStaleAfter
	}
	return &ActiveTracker{
		users:      make(map[string]types.ActiveUser),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Register inserts or replaces the user's entry, starting its activity clock.
func (t *ActiveTracker) Register(user types.JoinedUser) {
	if user.UserId == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user.UserId] = types.ActiveUser{
		UserId:       user.UserId,
		Emoji:        user.Emoji,
		DisplayName:  user.DisplayName,
		LastActivity: t.now(),
	}
}

// Touch refreshes the activity timestamp of a known user. Unknown ids are
// ignored; activity never implies membership.
func (t *ActiveTracker) Touch(userId string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	user, ok := t.users[userId]
	if !ok {
		return
	}
	user.LastActivity = t.now()
	t.users[userId] = user
}

// Remove evicts one user; this is what admin kick does, nothing more.
func (t *ActiveTracker) Remove(userId string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.users[userId]; !ok {
		return false
	}
	delete(t.users, userId)
	return true
}

func (t *ActiveTracker) List() []types.ActiveUser {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := make([]types.ActiveUser, 0, len(t.users))
	for _, user := range t.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserId < users[j].UserId })
	return users
}

func (t *ActiveTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// Sweep evicts users past the inactivity threshold.
func (t *ActiveTracker) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for userId, user := range t.users {
		if now.Sub(user.LastActivity) > t.staleAfter {
			delete(t.users, userId)
		}
	}
}
