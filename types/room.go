package types

// RoomId is the fixed id of the room singleton.
const RoomId = 1

// Room is the singleton gate on joins: a join is rejected unless the room is
// active and the supplied password matches.
type Room struct {
	Id       int64  `json:"id"`
	Password string `json:"-"`
	IsActive bool   `json:"isActive"`
}
