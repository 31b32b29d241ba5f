package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/presence"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound notices.
	Send chan []byte

	userId string
	typing *presence.TypingRegistry
}

// inboundMessage is the {"event": ..., "data": ...} framing of the client
// direction. The only inbound event is a typing update; everything else goes
// over the REST surface.
type inboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type typingUpdate struct {
	Emoji       string `mapstructure:"emoji"`
	DisplayName string `mapstructure:"displayName"`
	IsTyping    bool   `mapstructure:"isTyping"`
}

// ServeWS upgrades an HTTP request to a push connection for an already
// joined user.
func ServeWS(hub *Hub, typing *presence.TypingRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := r.URL.Query().Get("userId")
		if userId == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			globals.AppLogger.Error("websocket upgrade error", "error", err)
			return
		}
		client := &Client{
			hub:    hub,
			conn:   conn,
			Send:   make(chan []byte, sendChannelSize),
			userId: userId,
			typing: typing,
		}
		hub.Register <- client
		go client.WriteLoop()
		go client.ReadLoop()
	}
}

// ReadLoop pumps inbound messages from the websocket connection. There is at
// most one reader per connection.
func (c *Client) ReadLoop() {
	defer func() {
		c.hub.Unregister <- c
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpectedly", "user", c.userId, "error", err)
			}
			return
		}
		var message inboundMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			globals.AppLogger.Debug("could not unmarshal ws message", "error", err)
			continue
		}
		switch message.Event {
		case "typing":
			dataMap := make(map[string]interface{})
			if err := json.Unmarshal(message.Data, &dataMap); err != nil {
				// malformed input counts as "not typing"
				c.typing.Update(c.userId, "", "", false)
				continue
			}
			var update typingUpdate
			if err := mapstructure.WeakDecode(dataMap, &update); err != nil {
				c.typing.Update(c.userId, "", "", false)
				continue
			}
			c.typing.Update(c.userId, update.Emoji, update.DisplayName, update.IsTyping)
		}
	}
}

// WriteLoop pumps notices from the hub to the websocket connection and keeps
// the connection alive with pings.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case notice, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, notice); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
