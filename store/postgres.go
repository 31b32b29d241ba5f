package store

import (
	"database/sql"
	"time"

	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/types"
	"github.com/lib/pq"
)

// PostgresStore serves multi-process deployments. The reaction
// check-then-insert takes a transaction-scoped advisory lock keyed by
// (message, user), so concurrent adds from independent server processes
// cannot both pass the cap check.
type PostgresStore struct {
	db    *sql.DB
	clock monotonicClock
}

func NewPostgresStore(cfg *config.Config) (Store, error) {
	db, err := sql.Open("postgres", cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	if err := setupPostgresSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func setupPostgresSchema(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
id BIGSERIAL PRIMARY KEY,
emoji TEXT DEFAULT '' NOT NULL,
display_name TEXT NOT NULL,
user_id TEXT NOT NULL,
message TEXT NOT NULL,
reply_to_id BIGINT,
reply_to_message TEXT DEFAULT '' NOT NULL,
reply_to_display_name TEXT DEFAULT '' NOT NULL,
created_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS chat_messages_created_idx ON chat_messages (created_at, id);`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
id BIGSERIAL PRIMARY KEY,
message_id BIGINT NOT NULL,
user_id TEXT NOT NULL,
emoji TEXT NOT NULL,
display_name TEXT NOT NULL,
created_at TIMESTAMPTZ NOT NULL,
UNIQUE (message_id, user_id, emoji)
);`,
		`CREATE INDEX IF NOT EXISTS message_reactions_message_idx ON message_reactions (message_id);`,
		`CREATE TABLE IF NOT EXISTS chat_room (
id BIGINT PRIMARY KEY,
password TEXT NOT NULL,
is_active BOOLEAN DEFAULT TRUE NOT NULL
);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) AppendMessage(draft types.MessageDraft) (types.ChatMessage, error) {
	var msg types.ChatMessage
	if err := validateDraft(&draft); err != nil {
		return msg, err
	}
	createdAt := p.clock.Now()
	query := `INSERT INTO chat_messages (emoji,display_name,user_id,message,reply_to_id,reply_to_message,reply_to_display_name,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id;`
	var id int64
	err := p.db.QueryRow(query, draft.Emoji, draft.DisplayName, draft.UserId, draft.Message, draft.ReplyToId, draft.ReplyToMessage, draft.ReplyToDisplayName, createdAt).Scan(&id)
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

func (p *PostgresStore) Messages() ([]types.ChatMessage, error) {
	query := `SELECT id,emoji,display_name,user_id,message,reply_to_id,reply_to_message,reply_to_display_name,created_at FROM chat_messages ORDER BY created_at, id;`
	rows, err := p.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages := make([]types.ChatMessage, 0)
	for rows.Next() {
		var msg types.ChatMessage
		var createdAt time.Time
		var replyToId sql.NullInt64
		err := rows.Scan(&msg.Id, &msg.Emoji, &msg.DisplayName, &msg.UserId, &msg.Message, &replyToId, &msg.ReplyToMessage, &msg.ReplyToDisplayName, &createdAt)
		if err != nil {
			return nil, err
		}
		if replyToId.Valid {
			msg.ReplyToId = &replyToId.Int64
		}
		msg.CreatedAt = createdAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (p *PostgresStore) DeleteMessage(id int64) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint
	if _, err := tx.Exec(`DELETE FROM message_reactions WHERE message_id=$1;`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chat_messages WHERE id=$1;`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ClearMessages() error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint
	if _, err := tx.Exec(`DELETE FROM message_reactions;`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chat_messages;`); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ReactionsFor(messageId int64) ([]types.MessageReaction, error) {
	return scanPostgresReactions(p.db.Query(`SELECT id,message_id,user_id,emoji,display_name,created_at FROM message_reactions WHERE message_id=$1 ORDER BY id;`, messageId))
}

func (p *PostgresStore) AddReaction(messageId int64, userId, emoji, displayName string) (types.MessageReaction, error) {
	var reaction types.MessageReaction
	tx, err := p.db.Begin()
	if err != nil {
		return reaction, err
	}
	defer tx.Rollback() //nolint
	// serialize concurrent adds for the same (message, user) pair
	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2));`, messageId, userId); err != nil {
		return reaction, err
	}
	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE id=$1;`, messageId).Scan(&exists); err != nil {
		return reaction, err
	}
	if exists == 0 {
		return reaction, ErrMessageNotFound
	}
	// the exact tuple is checked before the cap: re-adding a held emoji is a
	// duplicate even when the user is at the limit
	var dup int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3;`, messageId, userId, emoji).Scan(&dup); err != nil {
		return reaction, err
	}
	if dup > 0 {
		return reaction, ErrDuplicateReaction
	}
	var held int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM message_reactions WHERE message_id=$1 AND user_id=$2;`, messageId, userId).Scan(&held); err != nil {
		return reaction, err
	}
	if held >= types.ReactionLimit {
		return reaction, ErrReactionLimit
	}
	createdAt := p.clock.Now()
	var id int64
	err = tx.QueryRow(`INSERT INTO message_reactions (message_id,user_id,emoji,display_name,created_at) VALUES ($1,$2,$3,$4,$5) RETURNING id;`, messageId, userId, emoji, displayName, createdAt).Scan(&id)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return reaction, ErrDuplicateReaction
		}
		return reaction, err
	}
	if err := tx.Commit(); err != nil {
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

func (p *PostgresStore) RemoveReaction(messageId int64, userId, emoji string) error {
	_, err := p.db.Exec(`DELETE FROM message_reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3;`, messageId, userId, emoji)
	return err
}

func (p *PostgresStore) Room() (types.Room, error) {
	var room types.Room
	err := p.db.QueryRow(`SELECT id,password,is_active FROM chat_room WHERE id=$1;`, types.RoomId).Scan(&room.Id, &room.Password, &room.IsActive)
	return room, err
}

func (p *PostgresStore) EnsureRoom(password string, active bool) error {
	_, err := p.db.Exec(`INSERT INTO chat_room (id,password,is_active) VALUES ($1,$2,$3) ON CONFLICT (id) DO NOTHING;`, types.RoomId, password, active)
	return err
}

func (p *PostgresStore) UpdateRoomPassword(newPassword string) error {
	_, err := p.db.Exec(`UPDATE chat_room SET password=$1 WHERE id=$2;`, newPassword, types.RoomId)
	return err
}

func (p *PostgresStore) SetRoomActive(active bool) error {
	_, err := p.db.Exec(`UPDATE chat_room SET is_active=$1 WHERE id=$2;`, active, types.RoomId)
	return err
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func scanPostgresReactions(rows *sql.Rows, err error) ([]types.MessageReaction, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reactions := make([]types.MessageReaction, 0)
	for rows.Next() {
		var reaction types.MessageReaction
		var createdAt time.Time
		err := rows.Scan(&reaction.Id, &reaction.MessageId, &reaction.UserId, &reaction.Emoji, &reaction.DisplayName, &createdAt)
		if err != nil {
			return nil, err
		}
		reaction.CreatedAt = createdAt.UTC()
		reactions = append(reactions, reaction)
	}
	return reactions, rows.Err()
}
