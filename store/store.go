package store

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/types"
)

// Store is the shared mutable state of the chat: the ordered message log,
// the reaction set and the room singleton. Every mutation is atomic with
// respect to the reaction uniqueness and cap invariants; the polling
// protocol relies on that and does no cross-client coordination of its own.
type Store interface {
	AppendMessage(draft types.MessageDraft) (types.ChatMessage, error)
	Messages() ([]types.ChatMessage, error)
	DeleteMessage(id int64) error
	ClearMessages() error

	ReactionsFor(messageId int64) ([]types.MessageReaction, error)
	// AddReaction rejects with ErrDuplicateReaction when the (message, user,
	// emoji) tuple exists, with ErrReactionLimit when the user already holds
	// types.ReactionLimit reactions on the message, and with
	// ErrMessageNotFound when the message is gone. The check-then-insert is
	// atomic per (message, user).
	AddReaction(messageId int64, userId, emoji, displayName string) (types.MessageReaction, error)
	// RemoveReaction is idempotent; removing a non-existent tuple is a no-op.
	RemoveReaction(messageId int64, userId, emoji string) error

	Room() (types.Room, error)
	// EnsureRoom creates the room singleton if it does not exist yet.
	EnsureRoom(password string, active bool) error
	UpdateRoomPassword(newPassword string) error
	SetRoomActive(active bool) error

	Close() error
}

// New dispatches on the configured persistence type.
func New(cfg *config.Config) (Store, error) {
	switch cfg.PersistenceConfig.Type {
	case "buntdb":
		return NewBuntStore(cfg)
	case "sqlite":
		return NewSQLiteStore(cfg)
	case "postgres":
		return NewPostgresStore(cfg)
	case "gorm":
		return NewGormStore(cfg)
	}
	return nil, fmt.Errorf("invalid persistence type %q", cfg.PersistenceConfig.Type)
}

func validateDraft(draft *types.MessageDraft) error {
	if strings.TrimSpace(draft.Message) == "" {
		return ErrEmptyMessage
	}
	if strings.TrimSpace(draft.DisplayName) == "" {
		return ErrEmptyDisplayName
	}
	return nil
}

// monotonicClock hands out UTC timestamps that never decrease, so the
// (createdAt, id) order matches the append order even across wall-clock
// adjustments.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	if now.Before(c.last) {
		now = c.last
	}
	c.last = now
	return now
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
