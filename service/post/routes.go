package post

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
	repo   *Repository
	logger *zap.SugaredLogger
}

func NewHandler(db *gorm.DB, logger *zap.SugaredLogger) *Handler {
	return &Handler{repo: NewRepository(db), logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/posts", h.GetPosts).Methods("GET")
	router.HandleFunc("/posts", utils.RequireAuth(h.CreatePost)).Methods("POST")
	router.HandleFunc("/posts/{id}", h.GetPost).Methods("GET")
}

func (h *Handler) GetPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.repo.Find(r.Context())
	if err != nil {
		http.Error(w, "Error retrieving posts", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	post, err := h.repo.FindByID(r.Context(), uint(postID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Post not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error retrieving post", http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, post)
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var createRequest struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Image   string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&createRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if createRequest.Title == "" || createRequest.Content == "" {
		http.Error(w, "Title and content are required", http.StatusBadRequest)
		return
	}

	post := models.Post{
		Title:    createRequest.Title,
		Content:  createRequest.Content,
		Image:    createRequest.Image,
		AuthorID: userID,
	}

	created, err := h.repo.Create(r.Context(), &post)
	if err != nil {
		h.logger.Errorw("creating post", "author_id", userID, "error", err)
		http.Error(w, "Error creating post", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, created)
}
