package types

import "time"

// ReactionLimit is the maximum number of reactions a single user may hold on
// a single message.
const ReactionLimit = 2

// MessageReaction is one (message, user, emoji) tuple. The tuple is unique;
// the store rejects duplicates and enforces ReactionLimit atomically.
type MessageReaction struct {
	Id          int64     `json:"id"`
	MessageId   int64     `json:"messageId"`
	UserId      string    `json:"userId"`
	Emoji       string    `json:"emoji"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}
