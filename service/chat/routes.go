package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hmontero/waypoint-server/cmd/models"
	"github.com/hmontero/waypoint-server/cmd/utils"
)

type Handler struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewHandler(db *gorm.DB, logger *zap.SugaredLogger) *Handler {
	return &Handler{db: db, logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	// Listing is unauthenticated and unfiltered. Known exposure, kept as-is.
	router.HandleFunc("/chat", h.ListChats).Methods("GET")
	router.HandleFunc("/chat", utils.RequireAuth(h.CreateChat)).Methods("POST")
	router.HandleFunc("/chat/{id}", h.GetChat).Methods("GET")
	router.HandleFunc("/chat/{id}", utils.RequireAuth(h.DeleteChat)).Methods("DELETE")
}

// ListChats returns every chat in the system.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	var chats []models.Chat
	err := h.db.WithContext(r.Context()).
		Preload("Author").
		Preload("Participants").
		Find(&chats).Error
	if err != nil {
		http.Error(w, "Error retrieving chats", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, chats)
}

func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.findChat(w, r)
	if !ok {
		return
	}

	utils.WriteJSON(w, http.StatusAccepted, chat)
}

// CreateChat records the authenticated caller as the chat's author.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var createRequest struct {
		Users []uint `json:"users"`
	}
	if err := json.NewDecoder(r.Body).Decode(&createRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}

	var participants []models.User
	if len(createRequest.Users) > 0 {
		if err := h.db.WithContext(r.Context()).Find(&participants, createRequest.Users).Error; err != nil {
			http.Error(w, "Error resolving participants", http.StatusInternalServerError)
			return
		}
	}

	chat := models.Chat{
		AuthorID:     userID,
		Participants: participants,
	}

	if err := h.db.WithContext(r.Context()).Omit("Participants.*").Create(&chat).Error; err != nil {
		h.logger.Errorw("creating chat", "author_id", userID, "error", err)
		http.Error(w, "Error creating chat", http.StatusInternalServerError)
		return
	}

	created := models.Chat{}
	err = h.db.WithContext(r.Context()).
		Preload("Author").
		Preload("Participants").
		First(&created, chat.ID).Error
	if err != nil {
		http.Error(w, "Error retrieving chat", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, created)
}

// DeleteChat removes a chat. Only its author may delete it; anyone else gets
// a 403 and the chat stays persisted.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chat, ok := h.findChat(w, r)
	if !ok {
		return
	}

	if chat.AuthorID != userID {
		http.Error(w, "You do not have permission to delete this resource.", http.StatusForbidden)
		return
	}

	if err := h.db.WithContext(r.Context()).Delete(&models.Chat{}, chat.ID).Error; err != nil {
		http.Error(w, "Error deleting chat", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusAccepted, chat)
}

// findChat resolves the {id} route variable, writing the 404 response itself
// when the chat does not exist.
func (h *Handler) findChat(w http.ResponseWriter, r *http.Request) (*models.Chat, bool) {
	vars := mux.Vars(r)
	chatID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "Chat not found")
		return nil, false
	}

	var chat models.Chat
	err = h.db.WithContext(r.Context()).
		Preload("Author").
		Preload("Participants").
		First(&chat, chatID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Errorw("retrieving chat", "chat_id", chatID, "error", err)
		}
		utils.WriteError(w, http.StatusNotFound, "Chat not found")
		return nil, false
	}

	return &chat, true
}
