package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/types"
	"github.com/gorilla/mux"
)

// authenticateAdmin guards the admin subrouter with a bearer credential
// matching the server-held admin password. Rotating the password invalidates
// every previously issued token.
func (h *Handler) authenticateAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ok, err := h.Admin.Validate(token)
		if err != nil {
			globals.AppLogger.Error("could not validate admin token", "error", err)
			writeFailure(w, http.StatusInternalServerError, "server error")
			return
		}
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized admin access")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

type adminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	password, err := h.Admin.Password()
	if err != nil {
		globals.AppLogger.Error("could not read admin password", "error", err)
		writeFailure(w, http.StatusInternalServerError, "server error")
		return
	}
	if req.Password != password {
		writeFailure(w, http.StatusUnauthorized, "Invalid admin password")
		return
	}
	writeJSON(w, http.StatusOK, adminLoginResponse{Success: true, Token: password})
}

// filterEnv is the expression environment of the admin message filter.
type filterEnv struct {
	Message     string
	DisplayName string
	UserId      string
	Emoji       string
	HasReply    bool
	Reactions   int
}

func (h *Handler) compileFilter(src string) (*vm.Program, error) {
	if cached, ok := h.filterPrograms.Get(src); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(src, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	h.filterPrograms.Add(src, prog)
	return prog, nil
}

type adminMessagesResponse struct {
	Success  bool                         `json:"success"`
	Messages []types.MessageWithReactions `json:"messages"`
}

func (h *Handler) adminListMessages(w http.ResponseWriter, r *http.Request) {
	var prog *vm.Program
	if src := r.URL.Query().Get("filter"); src != "" {
		var err error
		prog, err = h.compileFilter(src)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid filter expression")
			return
		}
	}
	messages, err := h.Store.Messages()
	if err != nil {
		storeFailure(w, err)
		return
	}
	out := make([]types.MessageWithReactions, 0, len(messages))
	for _, msg := range messages {
		reactions, err := h.Store.ReactionsFor(msg.Id)
		if err != nil {
			storeFailure(w, err)
			return
		}
		if prog != nil {
			env := filterEnv{
				Message:     msg.Message,
				DisplayName: msg.DisplayName,
				UserId:      msg.UserId,
				Emoji:       msg.Emoji,
				HasReply:    msg.ReplyToId != nil,
				Reactions:   len(reactions),
			}
			pass, err := expr.Run(prog, env)
			if err != nil {
				globals.AppLogger.Debug("filter evaluation failed", "id", msg.Id, "error", err)
				continue
			}
			if keep, ok := pass.(bool); !ok || !keep {
				continue
			}
		}
		out = append(out, types.MessageWithReactions{ChatMessage: msg, Reactions: reactions})
	}
	writeJSON(w, http.StatusOK, adminMessagesResponse{Success: true, Messages: out})
}

func (h *Handler) adminDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err := h.Store.DeleteMessage(id); err != nil {
		storeFailure(w, err)
		return
	}
	if h.Notifier != nil {
		h.Notifier.NoticeMessageDeleted(id)
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true, Message: "Message deleted successfully"})
}

func (h *Handler) adminClearChat(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.ClearMessages(); err != nil {
		storeFailure(w, err)
		return
	}
	if h.Notifier != nil {
		h.Notifier.NoticeChatCleared()
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true, Message: "Chat history cleared successfully"})
}

type changePasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

func (h *Handler) adminChangeRoomPassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newPassword := strings.TrimSpace(req.NewPassword)
	if newPassword == "" {
		writeFailure(w, http.StatusBadRequest, "Password cannot be empty")
		return
	}
	if err := h.Store.UpdateRoomPassword(newPassword); err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true, Message: "Room password updated successfully"})
}

func (h *Handler) adminChangeAdminPassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Admin.Change(req.NewPassword); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true, Message: "Admin password updated successfully. Please log in again with the new password."})
}

type connectedUser struct {
	UserId       string `json:"userId"`
	Emoji        string `json:"emoji"`
	DisplayName  string `json:"displayName"`
	Connected    bool   `json:"connected"`
	LastActivity string `json:"lastActivity"`
}

type connectedUsersResponse struct {
	Success bool            `json:"success"`
	Users   []connectedUser `json:"users"`
}

func (h *Handler) adminConnectedUsers(w http.ResponseWriter, r *http.Request) {
	active := h.Tracker.List()
	users := make([]connectedUser, 0, len(active))
	for _, user := range active {
		users = append(users, connectedUser{
			UserId:       user.UserId,
			Emoji:        user.Emoji,
			DisplayName:  user.DisplayName,
			Connected:    true,
			LastActivity: user.LastActivity.Format("2006-01-02 15:04:05"),
		})
	}
	writeJSON(w, http.StatusOK, connectedUsersResponse{Success: true, Users: users})
}

type kickUserRequest struct {
	UserId string `json:"userId"`
}

func (h *Handler) adminKickUser(w http.ResponseWriter, r *http.Request) {
	var req kickUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// kicking only evicts the tracker entry; it is an observability concern,
	// not access control, and cannot terminate a polling client
	if !h.Tracker.Remove(req.UserId) {
		writeFailure(w, http.StatusNotFound, "User not found or not connected")
		return
	}
	if h.Notifier != nil {
		h.Notifier.DropUser(req.UserId)
	}
	writeJSON(w, http.StatusOK, types.Envelope{Success: true, Message: "User kicked successfully"})
}

type roomInfoResponse struct {
	Success            bool       `json:"success"`
	Room               types.Room `json:"room"`
	ConnectedUserCount int        `json:"connectedUserCount"`
}

func (h *Handler) adminRoomInfo(w http.ResponseWriter, r *http.Request) {
	room, err := h.Store.Room()
	if err != nil {
		storeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomInfoResponse{Success: true, Room: room, ConnectedUserCount: h.Tracker.Count()})
}
