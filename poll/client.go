// Package poll implements the client side of the chat: a typed HTTP client
// for the REST surface and a Poller that keeps a local snapshot converged
// with the server by pull alone. There is no server push; convergence is
// bounded by the polling interval.
package poll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/glowchat/glowchat/types"
)

// Client is the typed HTTP client for the chat REST surface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// apiError is a non-2xx response carrying the server's failure message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope types.Envelope
		_ = json.NewDecoder(resp.Body).Decode(&envelope)
		return &apiError{Status: resp.StatusCode, Message: envelope.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type joinResult struct {
	Success bool             `json:"success"`
	User    types.JoinedUser `json:"user"`
}

// Join validates the room password and mints the client identity.
func (c *Client) Join(emoji, displayName, password string) (types.JoinedUser, error) {
	body := map[string]string{"emoji": emoji, "displayName": displayName, "password": password}
	var res joinResult
	if err := c.do(http.MethodPost, "/api/join", body, &res); err != nil {
		return types.JoinedUser{}, err
	}
	return res.User, nil
}

type messagesResult struct {
	Success  bool                `json:"success"`
	Messages []types.ChatMessage `json:"messages"`
}

// Messages fetches the full log; userId doubles as the activity heartbeat.
func (c *Client) Messages(userId string) ([]types.ChatMessage, error) {
	var res messagesResult
	if err := c.do(http.MethodGet, "/api/messages?userId="+userId, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

type reactionsResult struct {
	Success   bool                    `json:"success"`
	Reactions []types.MessageReaction `json:"reactions"`
}

func (c *Client) Reactions(messageId int64) ([]types.MessageReaction, error) {
	var res reactionsResult
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/messages/%d/reactions", messageId), nil, &res); err != nil {
		return nil, err
	}
	return res.Reactions, nil
}

type sendMessageResult struct {
	Success bool              `json:"success"`
	Message types.ChatMessage `json:"message"`
}

func (c *Client) SendMessage(draft types.MessageDraft) (types.ChatMessage, error) {
	var res sendMessageResult
	if err := c.do(http.MethodPost, "/api/messages", draft, &res); err != nil {
		return types.ChatMessage{}, err
	}
	return res.Message, nil
}

func (c *Client) AddReaction(messageId int64, userId, emoji, displayName string) error {
	body := map[string]string{"emoji": emoji, "userId": userId, "displayName": displayName}
	return c.do(http.MethodPost, fmt.Sprintf("/api/messages/%d/reactions", messageId), body, nil)
}

func (c *Client) RemoveReaction(messageId int64, userId, emoji string) error {
	body := map[string]string{"emoji": emoji, "userId": userId}
	return c.do(http.MethodDelete, fmt.Sprintf("/api/messages/%d/reactions", messageId), body, nil)
}

func (c *Client) SetTyping(userId, emoji, displayName string, isTyping bool) error {
	body := map[string]interface{}{"userId": userId, "emoji": emoji, "displayName": displayName, "isTyping": isTyping}
	return c.do(http.MethodPost, "/api/typing", body, nil)
}

type typingResult struct {
	Success     bool               `json:"success"`
	TypingUsers []types.TypingUser `json:"typingUsers"`
}

func (c *Client) TypingUsers(userId string) ([]types.TypingUser, error) {
	var res typingResult
	if err := c.do(http.MethodGet, "/api/typing?userId="+userId, nil, &res); err != nil {
		return nil, err
	}
	return res.TypingUsers, nil
}
