// Package api exposes the REST transport of the chat. Every endpoint
// returns a {"success": ...} envelope; non-2xx statuses accompany
// success=false. The polling clients in package poll speak exactly this
// surface.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/glowchat/glowchat/adminauth"
	"github.com/glowchat/glowchat/globals"
	"github.com/glowchat/glowchat/presence"
	"github.com/glowchat/glowchat/store"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru"
)

// Notifier is the optional push path: a best-effort latency hint for
// moderation events. Correctness never depends on it; the polling fallback
// is the authoritative convergence path.
type Notifier interface {
	NoticeMessageDeleted(messageId int64)
	NoticeChatCleared()
	DropUser(userId string)
}

const filterProgramCacheSize = 64

// Handler bundles the stores and registries behind the REST surface.
type Handler struct {
	Store   store.Store
	Typing  *presence.TypingRegistry
	Tracker *presence.ActiveTracker
	Admin   *adminauth.Manager

	// nil when the push path is not deployed
	Notifier Notifier

	filterPrograms *lru.Cache
}

func NewHandler(st store.Store, typing *presence.TypingRegistry, tracker *presence.ActiveTracker, admin *adminauth.Manager, notifier Notifier) *Handler {
	cache, _ := lru.New(filterProgramCacheSize)
	return &Handler{
		Store:          st,
		Typing:         typing,
		Tracker:        tracker,
		Admin:          admin,
		Notifier:       notifier,
		filterPrograms: cache,
	}
}

// Router builds the REST route table.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/join", h.join).Methods(http.MethodPost)
	router.HandleFunc("/api/messages", h.listMessages).Methods(http.MethodGet)
	router.HandleFunc("/api/messages", h.sendMessage).Methods(http.MethodPost)
	router.HandleFunc("/api/messages/{messageId:[0-9]+}/reactions", h.listReactions).Methods(http.MethodGet)
	router.HandleFunc("/api/messages/{messageId:[0-9]+}/reactions", h.addReaction).Methods(http.MethodPost)
	router.HandleFunc("/api/messages/{messageId:[0-9]+}/reactions", h.removeReaction).Methods(http.MethodDelete)
	router.HandleFunc("/api/typing", h.setTyping).Methods(http.MethodPost)
	router.HandleFunc("/api/typing", h.listTyping).Methods(http.MethodGet)

	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.HandleFunc("/login", h.adminLogin).Methods(http.MethodPost)
	authed := admin.NewRoute().Subrouter()
	authed.Use(h.authenticateAdmin)
	authed.HandleFunc("/messages", h.adminListMessages).Methods(http.MethodGet)
	authed.HandleFunc("/messages/{id:[0-9]+}", h.adminDeleteMessage).Methods(http.MethodDelete)
	authed.HandleFunc("/clear-chat", h.adminClearChat).Methods(http.MethodPost)
	authed.HandleFunc("/change-password", h.adminChangeRoomPassword).Methods(http.MethodPost)
	authed.HandleFunc("/change-admin-password", h.adminChangeAdminPassword).Methods(http.MethodPost)
	authed.HandleFunc("/connected-users", h.adminConnectedUsers).Methods(http.MethodGet)
	authed.HandleFunc("/kick-user", h.adminKickUser).Methods(http.MethodPost)
	authed.HandleFunc("/room-info", h.adminRoomInfo).Methods(http.MethodGet)
	return router
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		globals.AppLogger.Error("could not encode response", "error", err)
	}
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}

// storeFailure maps the typed store error codes onto HTTP statuses.
func storeFailure(w http.ResponseWriter, err error) {
	switch store.CodeOf(err) {
	case store.CodeValidation:
		writeFailure(w, http.StatusBadRequest, err.Error())
	case store.CodeDuplicateReaction, store.CodeLimitExceeded:
		writeFailure(w, http.StatusBadRequest, err.Error())
	case store.CodeNotFound:
		writeFailure(w, http.StatusNotFound, err.Error())
	default:
		globals.AppLogger.Error("store operation failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "server error")
	}
}
