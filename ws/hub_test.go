package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glowchat/glowchat/presence"
	"github.com/glowchat/glowchat/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSFixture(t *testing.T) (*Hub, *presence.TypingRegistry, string) {
	t.Helper()
	hub := NewHub()
	go hub.Run()
	typing := presence.NewTypingRegistry(0, 0)
	server := httptest.NewServer(ServeWS(hub, typing))
	t.Cleanup(server.Close)
	return hub, typing, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url, userId string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?userId="+userId, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNotice(t *testing.T, conn *websocket.Conn) types.Notice {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var notice types.Notice
	require.NoError(t, json.Unmarshal(raw, &notice))
	return notice
}

func TestHubBroadcastsModerationNotices(t *testing.T) {
	hub, _, url := newWSFixture(t)
	first := dial(t, url, "u1")
	second := dial(t, url, "u2")

	assert.Eventually(t, func() bool { return hub.NoClients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.NoticeMessageDeleted(42)
	for _, conn := range []*websocket.Conn{first, second} {
		notice := readNotice(t, conn)
		assert.Equal(t, types.NoticeTypeMessageDeleted, notice.Type)
		assert.Equal(t, int64(42), notice.MessageId)
	}

	hub.NoticeChatCleared()
	notice := readNotice(t, first)
	assert.Equal(t, types.NoticeTypeChatCleared, notice.Type)
	assert.Zero(t, notice.MessageId)
}

func TestServeWSRequiresUserId(t *testing.T) {
	_, _, url := newWSFixture(t)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestInboundTypingUpdatesRegistry(t *testing.T) {
	hub, typing, url := newWSFixture(t)
	conn := dial(t, url, "u1")
	assert.Eventually(t, func() bool { return hub.NoClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	payload := map[string]interface{}{
		"event": "typing",
		"data":  map[string]interface{}{"emoji": "🙂", "displayName": "Ann", "isTyping": true},
	}
	require.NoError(t, conn.WriteJSON(payload))
	assert.Eventually(t, func() bool { return len(typing.ListActive("")) == 1 }, 2*time.Second, 10*time.Millisecond)

	payload["data"] = map[string]interface{}{"isTyping": false}
	require.NoError(t, conn.WriteJSON(payload))
	assert.Eventually(t, func() bool { return len(typing.ListActive("")) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDropUserDetachesConnection(t *testing.T) {
	hub, _, url := newWSFixture(t)
	conn := dial(t, url, "u1")
	assert.Eventually(t, func() bool { return hub.NoClients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.DropUser("u1")
	assert.Eventually(t, func() bool { return hub.NoClients() == 0 }, 2*time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
