package types

import "time"

// ChatMessage is one entry of the append-only conversation log. Id and
// CreatedAt are assigned by the store on insert; the body and the reply
// snapshot never change afterwards.
type ChatMessage struct {
	Id          int64     `json:"id"`
	Emoji       string    `json:"emoji"`
	DisplayName string    `json:"displayName"`
	UserId      string    `json:"userId"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`

	// Reply linkage. The replied-to text and author are denormalized at
	// send time so they survive deletion of the original message.
	ReplyToId          *int64 `json:"replyToId,omitempty"`
	ReplyToMessage     string `json:"replyToMessage,omitempty"`
	ReplyToDisplayName string `json:"replyToDisplayName,omitempty"`
}

// MessageDraft is the client-supplied part of a chat message.
type MessageDraft struct {
	Emoji              string `json:"emoji" mapstructure:"emoji"`
	DisplayName        string `json:"displayName" mapstructure:"display_name"`
	UserId             string `json:"userId" mapstructure:"user_id"`
	Message            string `json:"message" mapstructure:"message"`
	ReplyToId          *int64 `json:"replyToId,omitempty" mapstructure:"reply_to_id"`
	ReplyToMessage     string `json:"replyToMessage,omitempty" mapstructure:"reply_to_message"`
	ReplyToDisplayName string `json:"replyToDisplayName,omitempty" mapstructure:"reply_to_display_name"`
}

// MessageWithReactions is the shape the polling client assembles each cycle
// and the admin message listing returns.
type MessageWithReactions struct {
	ChatMessage
	Reactions []MessageReaction `json:"reactions"`
}
