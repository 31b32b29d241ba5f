package store

import (
	"database/sql"
	"sync"

	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/types"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps the whole store behind one RWMutex. sqlite serializes
// writers anyway; the mutex additionally makes the reaction
// check-then-insert a single critical section.
type SQLiteStore struct {
	db    *sql.DB
	clock monotonicClock
	sync.RWMutex
}

func NewSQLiteStore(cfg *config.Config) (Store, error) {
	db, err := sql.Open("sqlite3", cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	if err := setupSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func setupSQLiteSchema(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
id INTEGER PRIMARY KEY AUTOINCREMENT,
emoji TEXT DEFAULT "" NOT NULL,
display_name TEXT NOT NULL,
user_id TEXT NOT NULL,
message TEXT NOT NULL,
reply_to_id INTEGER,
reply_to_message TEXT DEFAULT "" NOT NULL,
reply_to_display_name TEXT DEFAULT "" NOT NULL,
created_at INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_created_idx ON chat_messages (created_at, id);`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
id INTEGER PRIMARY KEY AUTOINCREMENT,
message_id INTEGER NOT NULL,
user_id TEXT NOT NULL,
emoji TEXT NOT NULL,
display_name TEXT NOT NULL,
created_at INTEGER NOT NULL,
UNIQUE (message_id, user_id, emoji)
);`,
		`CREATE INDEX IF NOT EXISTS message_reactions_message_idx ON message_reactions (message_id);`,
		`CREATE TABLE IF NOT EXISTS chat_room (
id INTEGER PRIMARY KEY,
password TEXT NOT NULL,
is_active INTEGER DEFAULT 1 NOT NULL
);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (p *SQLiteStore) AppendMessage(draft types.MessageDraft) (types.ChatMessage, error) {
	var msg types.ChatMessage
	if err := validateDraft(&draft); err != nil {
		return msg, err
	}
	p.Lock()
	defer p.Unlock()
	createdAt := p.clock.Now()
	query := `INSERT INTO chat_messages (emoji,display_name,user_id,message,reply_to_id,reply_to_message,reply_to_display_name,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	res, err := p.db.Exec(query, draft.Emoji, draft.DisplayName, draft.UserId, draft.Message, draft.ReplyToId, draft.ReplyToMessage, draft.ReplyToDisplayName, createdAt.UnixMilli())
	if err != nil {
		return msg, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return msg, err
	}
	msg = types.ChatMessage{
		Id:                 id,
		Emoji:              draft.Emoji,
		DisplayName:        draft.DisplayName,
		UserId:             draft.UserId,
		Message:            draft.Message,
		CreatedAt:          createdAt,
		ReplyToId:          draft.ReplyToId,
		ReplyToMessage:     draft.ReplyToMessage,
		ReplyToDisplayName: draft.ReplyToDisplayName,
	}
	return msg, nil
}

func (p *SQLiteStore) Messages() ([]types.ChatMessage, error) {
	p.RLock()
	defer p.RUnlock()
	query := `SELECT id,emoji,display_name,user_id,message,reply_to_id,reply_to_message,reply_to_display_name,created_at FROM chat_messages ORDER BY created_at, id;`
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages := make([]types.ChatMessage, 0)
	for rows.Next() {
		var msg types.ChatMessage
		var createdAt int64
		var replyToId sql.NullInt64
		err := rows.Scan(&msg.Id, &msg.Emoji, &msg.DisplayName, &msg.UserId, &msg.Message, &replyToId, &msg.ReplyToMessage, &msg.ReplyToDisplayName, &createdAt)
		if err != nil {
			return nil, err
		}
		if replyToId.Valid {
			msg.ReplyToId = &replyToId.Int64
		}
		msg.CreatedAt = millisToTime(createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (p *SQLiteStore) DeleteMessage(id int64) error {
	p.Lock()
	defer p.Unlock()
	// reactions first, so no orphaned rows reference a missing message
	if _, err := p.db.Exec(`DELETE FROM message_reactions WHERE message_id=$1;`, id); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM chat_messages WHERE id=$1;`, id)
	return err
}

func (p *SQLiteStore) ClearMessages() error {
	p.Lock()
	defer p.Unlock()
	if _, err := p.db.Exec(`DELETE FROM message_reactions;`); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM chat_messages;`)
	return err
}

func (p *SQLiteStore) ReactionsFor(messageId int64) ([]types.MessageReaction, error) {
	p.RLock()
	defer p.RUnlock()
	return scanReactions(p.db.Query(`SELECT id,message_id,user_id,emoji,display_name,created_at FROM message_reactions WHERE message_id=$1 ORDER BY id;`, messageId))
}

func (p *SQLiteStore) AddReaction(messageId int64, userId, emoji, displayName string) (types.MessageReaction, error) {
	var reaction types.MessageReaction
	p.Lock()
	defer p.Unlock()
	var exists int
	err := p.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE id=$1;`, messageId).Scan(&exists)
	if err != nil {
		return reaction, err
	}
	if exists == 0 {
		return reaction, ErrMessageNotFound
	}
	// the exact tuple is checked before the cap: re-adding a held emoji is a
	// duplicate even when the user is at the limit
	var dup int
	err = p.db.QueryRow(`SELECT COUNT(*) FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3;`, messageId, userId, emoji).Scan(&dup)
	if err != nil {
		return reaction, err
	}
	if dup > 0 {
		return reaction, ErrDuplicateReaction
	}
	var held int
	err = p.db.QueryRow(`SELECT COUNT(*) FROM message_reactions WHERE message_id=$1 AND user_id=$2;`, messageId, userId).Scan(&held)
	if err != nil {
		return reaction, err
	}
	if held >= types.ReactionLimit {
		return reaction, ErrReactionLimit
	}
	createdAt := p.clock.Now()
	res, err := p.db.Exec(`INSERT INTO message_reactions (message_id,user_id,emoji,display_name,created_at) VALUES ($1,$2,$3,$4,$5);`, messageId, userId, emoji, displayName, createdAt.UnixMilli())
	if err != nil {
		if sqliteErr, ok := err.(sqlite3.Error); ok && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return reaction, ErrDuplicateReaction
		}
		return reaction, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return reaction, err
	}
	reaction = types.MessageReaction{
		Id:          id,
		MessageId:   messageId,
		UserId:      userId,
		Emoji:       emoji,
		DisplayName: displayName,
		CreatedAt:   createdAt,
	}
	return reaction, nil
}

func (p *SQLiteStore) RemoveReaction(messageId int64, userId, emoji string) error {
	p.Lock()
	defer p.Unlock()
	_, err := p.db.Exec(`DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3;`, messageId, userId, emoji)
	return err
}

func (p *SQLiteStore) Room() (types.Room, error) {
	p.RLock()
	defer p.RUnlock()
	var room types.Room
	var active int
	err := p.db.QueryRow(`SELECT id,password,is_active FROM chat_room WHERE id=$1;`, types.RoomId).Scan(&room.Id, &room.Password, &active)
	if err != nil {
		return room, err
	}
	room.IsActive = active != 0
	return room, nil
}

func (p *SQLiteStore) EnsureRoom(password string, active bool) error {
	p.Lock()
	defer p.Unlock()
	isActive := 0
	if active {
		isActive = 1
	}
	_, err := p.db.Exec(`INSERT INTO chat_room (id,password,is_active) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING;`, types.RoomId, password, isActive)
	return err
}

func (p *SQLiteStore) UpdateRoomPassword(newPassword string) error {
	p.Lock()
	defer p.Unlock()
	_, err := p.db.Exec(`UPDATE chat_room SET password=$1 WHERE id=$2;`, newPassword, types.RoomId)
	return err
}

func (p *SQLiteStore) SetRoomActive(active bool) error {
	p.Lock()
	defer p.Unlock()
	isActive := 0
	if active {
		isActive = 1
	}
	_, err := p.db.Exec(`UPDATE chat_room SET is_active=$1 WHERE id=$2;`, isActive, types.RoomId)
	return err
}

func (p *SQLiteStore) Close() error {
	return p.db.Close()
}

func scanReactions(rows *sql.Rows, err error) ([]types.MessageReaction, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reactions := make([]types.MessageReaction, 0)
	for rows.Next() {
		var reaction types.MessageReaction
		var createdAt int64
		err := rows.Scan(&reaction.Id, &reaction.MessageId, &reaction.UserId, &reaction.Emoji, &reaction.DisplayName, &createdAt)
		if err != nil {
			return nil, err
		}
		reaction.CreatedAt = millisToTime(createdAt)
		reactions = append(reactions, reaction)
	}
	return reactions, rows.Err()
}
