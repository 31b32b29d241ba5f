package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/glowchat/glowchat/config"
	"github.com/glowchat/glowchat/types"
	"github.com/tidwall/buntdb"
)

// BuntStore is the default embedded backend. All mutations run inside
// buntdb.Update closures, which buntdb serializes, so the reaction
// check-then-insert is atomic without further locking.
type BuntStore struct {
	db    *buntdb.DB
	clock monotonicClock
}

func NewBuntStore(cfg *config.Config) (Store, error) {
	dsn := cfg.PersistenceConfig.DSN
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := buntdb.Open(dsn)
	if err != nil {
		return nil, err
	}
	return &BuntStore{db: db}, nil
}

func messageKey(id int64) string {
	return fmt.Sprintf("message:%020d", id)
}

func reactionKey(messageId, id int64) string {
	return fmt.Sprintf("reaction:%020d:%020d", messageId, id)
}

func nextSeq(tx *buntdb.Tx, name string) (int64, error) {
	key := "seq:" + name
	cur := int64(0)
	if val, err := tx.Get(key); err == nil {
		cur, err = strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, err
		}
	} else if err != buntdb.ErrNotFound {
		return 0, err
	}
	cur++
	if _, _, err := tx.Set(key, strconv.FormatInt(cur, 10), nil); err != nil {
		return 0, err
	}
	return cur, nil
}

func (p *BuntStore) AppendMessage(draft types.MessageDraft) (types.ChatMessage, error) {
	var msg types.ChatMessage
	if err := validateDraft(&draft); err != nil {
		return msg, err
	}
	err := p.db.Update(func(tx *buntdb.Tx) error {
		id, err := nextSeq(tx, "message")
		if err != nil {
			return err
		}
		msg = types.ChatMessage{
			Id:                 id,
			Emoji:              draft.Emoji,
			DisplayName:        draft.DisplayName,
			UserId:             draft.UserId,
			Message:            draft.Message,
			CreatedAt:          p.clock.Now(),
			ReplyToId:          draft.ReplyToId,
			ReplyToMessage:     draft.ReplyToMessage,
			ReplyToDisplayName: draft.ReplyToDisplayName,
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(messageKey(id), string(raw), nil)
		return err
	})
	return msg, err
}

func (p *BuntStore) Messages() ([]types.ChatMessage, error) {
	messages := make([]types.ChatMessage, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		// keys are zero-padded by id, so ascending key order is append order
		err := tx.AscendKeys("message:*", func(key, val string) bool {
			var msg types.ChatMessage
			if innerErr = json.Unmarshal([]byte(val), &msg); innerErr != nil {
				return false
			}
			messages = append(messages, msg)
			return true
		})
		if err != nil {
			return err
		}
		return innerErr
	})
	return messages, err
}

func (p *BuntStore) DeleteMessage(id int64) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		keys, err := collectKeys(tx, fmt.Sprintf("reaction:%020d:*", id))
		if err != nil {
			return err
		}
		keys = append(keys, messageKey(id))
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (p *BuntStore) ClearMessages() error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		keys, err := collectKeys(tx, "message:*")
		if err != nil {
			return err
		}
		reactionKeys, err := collectKeys(tx, "reaction:*")
		if err != nil {
			return err
		}
		for _, key := range append(keys, reactionKeys...) {
			if _, err := tx.Delete(key); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

func (p *BuntStore) ReactionsFor(messageId int64) ([]types.MessageReaction, error) {
	reactions := make([]types.MessageReaction, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		var innerErr error
		err := tx.AscendKeys(fmt.Sprintf("reaction:%020d:*", messageId), func(key, val string) bool {
			var reaction types.MessageReaction
			if innerErr = json.Unmarshal([]byte(val), &reaction); innerErr != nil {
				return false
			}
			reactions = append(reactions, reaction)
			return true
		})
		if err != nil {
			return err
		}
		return innerErr
	})
	return reactions, err
}

func (p *BuntStore) AddReaction(messageId int64, userId, emoji, displayName string) (types.MessageReaction, error) {
	var reaction types.MessageReaction
	err := p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(messageKey(messageId)); err != nil {
			if err == buntdb.ErrNotFound {
				return ErrMessageNotFound
			}
			return err
		}
		existing, err := reactionsInTx(tx, messageId)
		if err != nil {
			return err
		}
		held := 0
		for _, r := range existing {
			if r.UserId != userId {
				continue
			}
			if r.Emoji == emoji {
				return ErrDuplicateReaction
			}
			held++
		}
		if held >= types.ReactionLimit {
			return ErrReactionLimit
		}
		id, err := nextSeq(tx, "reaction")
		if err != nil {
			return err
		}
		reaction = types.MessageReaction{
			Id:          id,
			MessageId:   messageId,
			UserId:      userId,
			Emoji:       emoji,
			DisplayName: displayName,
			CreatedAt:   p.clock.Now(),
		}
		raw, err := json.Marshal(reaction)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(reactionKey(messageId, id), string(raw), nil)
		return err
	})
	return reaction, err
}

func (p *BuntStore) RemoveReaction(messageId int64, userId, emoji string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		existing, err := reactionsInTx(tx, messageId)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.UserId == userId && r.Emoji == emoji {
				if _, err := tx.Delete(reactionKey(messageId, r.Id)); err != nil && err != buntdb.ErrNotFound {
					return err
				}
			}
		}
		return nil
	})
}

// roomRecord is the stored shape of the room singleton. types.Room hides
// the password from API responses, so storage uses its own record.
type roomRecord struct {
	Id       int64  `json:"id"`
	Password string `json:"password"`
	IsActive bool   `json:"isActive"`
}

func (p *BuntStore) Room() (types.Room, error) {
	var rec roomRecord
	err := p.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get("room:" + strconv.Itoa(types.RoomId))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &rec)
	})
	return types.Room{Id: rec.Id, Password: rec.Password, IsActive: rec.IsActive}, err
}

func (p *BuntStore) EnsureRoom(password string, active bool) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		key := "room:" + strconv.Itoa(types.RoomId)
		if _, err := tx.Get(key); err == nil {
			return nil
		} else if err != buntdb.ErrNotFound {
			return err
		}
		return setRoomInTx(tx, roomRecord{Id: types.RoomId, Password: password, IsActive: active})
	})
}

func (p *BuntStore) UpdateRoomPassword(newPassword string) error {
	return p.updateRoom(func(rec *roomRecord) {
		rec.Password = newPassword
	})
}

func (p *BuntStore) SetRoomActive(active bool) error {
	return p.updateRoom(func(rec *roomRecord) {
		rec.IsActive = active
	})
}

func (p *BuntStore) Close() error {
	return p.db.Close()
}

func (p *BuntStore) updateRoom(mutate func(rec *roomRecord)) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		key := "room:" + strconv.Itoa(types.RoomId)
		val, err := tx.Get(key)
		if err != nil {
			return err
		}
		var rec roomRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return err
		}
		mutate(&rec)
		return setRoomInTx(tx, rec)
	})
}

func setRoomInTx(tx *buntdb.Tx, rec roomRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, _, err = tx.Set("room:"+strconv.Itoa(types.RoomId), string(raw), nil)
	return err
}

func reactionsInTx(tx *buntdb.Tx, messageId int64) ([]types.MessageReaction, error) {
	reactions := make([]types.MessageReaction, 0)
	var innerErr error
	err := tx.AscendKeys(fmt.Sprintf("reaction:%020d:*", messageId), func(key, val string) bool {
		var reaction types.MessageReaction
		if innerErr = json.Unmarshal([]byte(val), &reaction); innerErr != nil {
			return false
		}
		reactions = append(reactions, reaction)
		return true
	})
	if err != nil {
		return nil, err
	}
	return reactions, innerErr
}

func collectKeys(tx *buntdb.Tx, pattern string) ([]string, error) {
	keys := make([]string, 0)
	err := tx.AscendKeys(pattern, func(key, val string) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}
