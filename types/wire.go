package types

// Notice types pushed over the optional websocket path. The polling fallback
// is the authoritative convergence path; these are latency hints only.
const (
	NoticeTypeMessageDeleted = "message_deleted"
	NoticeTypeChatCleared    = "chat_cleared"
)

// Envelope is the common response wrapper of every HTTP endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// JoinedUser is minted on a successful join and identifies the client from
// then on. The id is opaque; nothing may be derived from it server-side.
type JoinedUser struct {
	UserId      string `json:"userId"`
	Emoji       string `json:"emoji"`
	DisplayName string `json:"displayName"`
}

// Notice is one push notification on the websocket path.
type Notice struct {
	Type      string `json:"type"`
	MessageId int64  `json:"messageId,omitempty"`
}

func NewDeletedNotice(messageId int64) Notice {
	return Notice{Type: NoticeTypeMessageDeleted, MessageId: messageId}
}

func NewClearedNotice() Notice {
	return Notice{Type: NoticeTypeChatCleared}
}
