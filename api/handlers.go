package api

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/folkengine/goname"
	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/types"
	"github.com/gorilla/mux"
	"github.com/mitchellh/hashstructure/v2"
)

type joinRequest struct {
	Emoji       string `json:"emoji"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type joinResponse struct {
	Success bool             `json:"success"`
	User    types.JoinedUser `json:"user"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := h.Store.Room()
	if err != nil || !room.IsActive {
		writeFailure(w, http.StatusServiceUnavailable, "Chat room is currently unavailable")
		return
	}
	if req.Password != room.Password {
		writeFailure(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}
	user := types.JoinedUser{
		UserId:      mintUserId(displayName, req.Emoji),
		Emoji:       req.Emoji,
		DisplayName: displayName,
	}
	h.Tracker.Register(user)
	writeJSON(w, http.StatusOK, joinResponse{Success: true, User: user})
}

// mintUserId derives an opaque id from the join attributes plus a nonce, so
// two joins with identical name and emoji still get distinct ids.
func mintUserId(displayName, emoji string) string {
	seed := struct {
		DisplayName string
		Emoji       string
		JoinedAt    int64
		Nonce       int64
	}{displayName, emoji, time.Now().UnixNano(), rand.Int63()}
	hash, err := hashstructure.Hash(seed, hashstructure.FormatV2, nil)
	if err != nil {
		// hashstructure cannot fail on this shape, but never hand out an empty id
		return fmt.Sprintf("u%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("u%016x", hash)
}

type messagesResponse struct {
	Success  bool                `json:"success"`
	Messages []types.ChatMessage `json:"messages"`
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	// a message-list read doubles as the activity heartbeat
	if userId := r.URL.Query().Get("userId"); userId != "" {
		h.Tracker.Touch(userId)
	}
	messages, err := h.Store.Messages()
	if err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: messages})
}

type sendMessageResponse struct {
	Success bool              `json:"success"`
	Message types.ChatMessage `json:"message"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var draft types.MessageDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.Store.AppendMessage(draft)
	if err != nil {
		storeFailure(w, err)
		return
	}
	globals.AppLogger.Debug("message appended", "id", msg.Id, "user", msg.UserId)
	writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, Message: msg})
}

type reactionsResponse struct {
	Success   bool                    `json:"success"`
	Reactions []types.MessageReaction `json:"reactions"`
}

func messageIdVar(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["messageId"], 10, 64)
	return id
}

func (h *Handler) listReactions(w http.ResponseWriter, r *http.Request) {
	reactions, err := h.Store.ReactionsFor(messageIdVar(r))
	if err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reactionsResponse{Success: true, Reactions: reactions})
}

type reactionRequest struct {
	Emoji       string `json:"emoji"`
	UserId      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

func (h *Handler) addReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := h.Store.AddReaction(messageIdVar(r), req.UserId, req.Emoji, req.DisplayName); err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true})
}

func (h *Handler) removeReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.RemoveReaction(messageIdVar(r), req.UserId, req.Emoji); err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true})
}

type typingRequest struct {
	Emoji       string `json:"emoji"`
	DisplayName string `json:"displayName"`
	UserId      string `json:"userId"`
	IsTyping    bool   `json:"isTyping"`
}

func (h *Handler) setTyping(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	// malformed input is treated as "not typing", never as an error
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.IsTyping = false
	}
	h.Typing.Update(req.UserId, req.Emoji, req.DisplayName, req.IsTyping)
	writeJSON(w, http.StatusOK, types.Envelope{Success: true})
}

type typingResponse struct {
	Success     bool               `json:"success"`
	TypingUsers []types.TypingUser `json:"typingUsers"`
}

func (h *Handler) listTyping(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("userId")
	writeJSON(w, http.StatusOK, typingResponse{Success: true, TypingUsers: h.Typing.ListActive(userId)})
}
