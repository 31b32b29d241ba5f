// Package ws is the optional push path of the moderation broadcast: a
// registry of live websocket connections that receives best-effort
// message_deleted / chat_cleared notices. The polling transport stays the
// authoritative convergence path and must work with this package entirely
// absent.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/types"
)

const broadcastChannelSize = 256

type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	// Broadcast notices to all clients.
	broadcast chan []byte

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastChannelSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run is the hub event loop handling register, unregister and broadcast.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Lock()
			h.clients[client] = struct{}{}
			h.Unlock()
			globals.AppLogger.Debug("ws client registered", "user", client.userId)

		case client := <-h.Unregister:
			h.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				close(client.Send)
			}
			h.Unlock()
			globals.AppLogger.Debug("ws client unregistered", "user", client.userId)

		case notice := <-h.broadcast:
			h.RLock()
			for client := range h.clients {
				select {
				case client.Send <- notice:
				default:
					// a stalled client must not stall moderation, drop the notice
					globals.AppLogger.Warn("ws send buffer full, dropping notice", "user", client.userId)
				}
			}
			h.RUnlock()
		}
	}
}

// NoClients returns the number of clients registered.
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

func (h *Hub) notify(notice types.Notice) {
	raw, err := json.Marshal(notice)
	if err != nil {
		globals.AppLogger.Error("could not marshal notice", "error", err)
		return
	}
	h.broadcast <- raw
}

// NoticeMessageDeleted pushes a deletion hint to attached connections.
func (h *Hub) NoticeMessageDeleted(messageId int64) {
	h.notify(types.NewDeletedNotice(messageId))
}

// NoticeChatCleared pushes a clear hint to attached connections.
func (h *Hub) NoticeChatCleared() {
	h.notify(types.NewClearedNotice())
}

// DropUser detaches any connection of the kicked user without notifying it.
// This cannot end the user's polling session; it only closes the push
// channel.
func (h *Hub) DropUser(userId string) {
	h.RLock()
	drop := make([]*Client, 0, 1)
	for client := range h.clients {
		if client.userId == userId {
			drop = append(drop, client)
		}
	}
	h.RUnlock()
	for _, client := range drop {
		h.Unregister <- client
	}
}
