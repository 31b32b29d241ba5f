package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormMessage struct {
	Id                 int64 `gorm:"primaryKey"`
	Emoji              string
	DisplayName        string
	UserId             string `gorm:"index"`
	Message            string
	ReplyToId          *int64
	ReplyToMessage     string
	ReplyToDisplayName string
	CreatedAt          int64 `gorm:"index:idx_messages_order,priority:1"`
}

func (gormMessage) TableName() string { return "chat_messages" }

type gormReaction struct {
	Id          int64  `gorm:"primaryKey"`
	MessageId   int64  `gorm:"uniqueIndex:idx_reaction_tuple,priority:1;index"`
	UserId      string `gorm:"uniqueIndex:idx_reaction_tuple,priority:2"`
	Emoji       string `gorm:"uniqueIndex:idx_reaction_tuple,priority:3"`
	DisplayName string
	CreatedAt   int64
}

func (gormReaction) TableName() string { return "message_reactions" }

type gormRoom struct {
	Id       int64 `gorm:"primaryKey"`
	Password string
	IsActive bool
}

func (gormRoom) TableName() string { return "chat_room" }

// GormStore is the ORM-backed variant, selected with persistence type "gorm"
// and a dialect of "sqlite" or "postgres". A process-local mutex serializes
// the reaction critical section on top of the unique tuple index.
type GormStore struct {
	db    *gorm.DB
	clock monotonicClock
	mu    sync.Mutex
}

func NewGormStore(cfg *config.Config) (Store, error) {
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Dialect {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)
	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)
	default:
		return nil, fmt.Errorf("invalid gorm dialect %q", cfg.PersistenceConfig.Dialect)
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrator().AutoMigrate(&gormMessage{}, &gormReaction{}, &gormRoom{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (p *GormStore) AppendMessage(draft types.MessageDraft) (types.ChatMessage, error) {
	var msg types.ChatMessage
	if err := validateDraft(&draft); err != nil {
		return msg, err
	}
	createdAt := p.clock.Now()
	row := gormMessage{
		Emoji:              draft.Emoji,
		DisplayName:        draft.DisplayName,
		UserId:             draft.UserId,
		Message:            draft.Message,
		ReplyToId:          draft.ReplyToId,
		ReplyToMessage:     draft.ReplyToMessage,
		ReplyToDisplayName: draft.ReplyToDisplayName,
		CreatedAt:          createdAt.UnixMilli(),
	}
	if err := p.db.Create(&row).Error; err != nil {
		return msg, err
	}
	return messageFromRow(row), nil
}

func (p *GormStore) Messages() ([]types.ChatMessage, error) {
	rows := make([]gormMessage, 0)
	if err := p.db.Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	messages := make([]types.ChatMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, messageFromRow(row))
	}
	return messages, nil
}

func (p *GormStore) DeleteMessage(id int64) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&gormReaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&gormMessage{}, id).Error
	})
}

func (p *GormStore) ClearMessages() error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&gormReaction{}).Error; err != nil {
			return err
		}
		return tx.Where("1 = 1").Delete(&gormMessage{}).Error
	})
}

func (p *GormStore) ReactionsFor(messageId int64) ([]types.MessageReaction, error) {
	rows := make([]gormReaction, 0)
	if err := p.db.Where("message_id = ?", messageId).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	reactions := make([]types.MessageReaction, 0, len(rows))
	for _, row := range rows {
		reactions = append(reactions, reactionFromRow(row))
	}
	return reactions, nil
}

func (p *GormStore) AddReaction(messageId int64, userId, emoji, displayName string) (types.MessageReaction, error) {
	var reaction types.MessageReaction
	p.mu.Lock()
	defer p.mu.Unlock()
	row := gormReaction{
		MessageId:   messageId,
		UserId:      userId,
		Emoji:       emoji,
		DisplayName: displayName,
		CreatedAt:   p.clock.Now().UnixMilli(),
	}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&gormMessage{}).Where("id = ?", messageId).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrMessageNotFound
		}
		// the exact tuple is checked before the cap: re-adding a held emoji
		// is a duplicate even when the user is at the limit
		var dup int64
		if err := tx.Model(&gormReaction{}).Where("message_id = ? AND user_id = ? AND emoji = ?", messageId, userId, emoji).Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateReaction
		}
		var held int64
		if err := tx.Model(&gormReaction{}).Where("message_id = ? AND user_id = ?", messageId, userId).Count(&held).Error; err != nil {
			return err
		}
		if held >= types.ReactionLimit {
			return ErrReactionLimit
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrDuplicateReaction
		}
		return nil
	})
	if err != nil {
		return reaction, err
	}
	return reactionFromRow(row), nil
}

func (p *GormStore) RemoveReaction(messageId int64, userId, emoji string) error {
	return p.db.Where("message_id = ? AND user_id = ? AND emoji = ?", messageId, userId, emoji).Delete(&gormReaction{}).Error
}

func (p *GormStore) Room() (types.Room, error) {
	var row gormRoom
	if err := p.db.First(&row, types.RoomId).Error; err != nil {
		return types.Room{}, err
	}
	return types.Room{Id: row.Id, Password: row.Password, IsActive: row.IsActive}, nil
}

func (p *GormStore) EnsureRoom(password string, active bool) error {
	var row gormRoom
	err := p.db.First(&row, types.RoomId).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return p.db.Create(&gormRoom{Id: types.RoomId, Password: password, IsActive: active}).Error
}

func (p *GormStore) UpdateRoomPassword(newPassword string) error {
	return p.db.Model(&gormRoom{Id: types.RoomId}).Update("password", newPassword).Error
}

func (p *GormStore) SetRoomActive(active bool) error {
	return p.db.Model(&gormRoom{Id: types.RoomId}).Update("is_active", active).Error
}

func (p *GormStore) Close() error {
	return nil
}

func messageFromRow(row gormMessage) types.ChatMessage {
	return types.ChatMessage{
		Id:                 row.Id,
		Emoji:              row.Emoji,
		DisplayName:        row.DisplayName,
		UserId:             row.UserId,
		Message:            row.Message,
		CreatedAt:          millisToTime(row.CreatedAt),
		ReplyToId:          row.ReplyToId,
		ReplyToMessage:     row.ReplyToMessage,
		ReplyToDisplayName: row.ReplyToDisplayName,
	}
}

func reactionFromRow(row gormReaction) types.MessageReaction {
	return types.MessageReaction{
		Id:          row.Id,
		MessageId:   row.MessageId,
		UserId:      row.UserId,
		Emoji:       row.Emoji,
		DisplayName: row.DisplayName,
		CreatedAt:   millisToTime(row.CreatedAt),
	}
}
