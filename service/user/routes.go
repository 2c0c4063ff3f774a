package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"github.com/hmontero/waypoint-server/cmd/models"
	"github.com/hmontero/waypoint-server/cmd/utils"
)

// Default search window around the original launch area when the caller
// supplies no coordinates.
const (
	defaultSearchLat          = 25.756365
	defaultSearchLon          = -80.375716
	defaultSearchRadiusMeters = 32186.9 // ~20 miles
)

type Handler struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewHandler(db *gorm.DB, logger *zap.SugaredLogger) *Handler {
	return &Handler{db: db, logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/login", h.HandleLogin).Methods("POST")
	router.HandleFunc("/user/verify", h.VerifyUser).Methods("POST")
	router.HandleFunc("/users/search", h.SearchNearby).Methods("GET")
	router.HandleFunc("/users/me", utils.RequireAuth(h.GetCurrentUser)).Methods("GET")
	router.HandleFunc("/users/me", utils.RequireAuth(h.UpdateCurrentUser)).Methods("PATCH")
	router.HandleFunc("/users/me/location", utils.RequireAuth(h.UpdateLocation)).Methods("PUT")
	router.HandleFunc("/users/me/avatar", utils.RequireAuth(h.UploadAvatar)).Methods("POST")
	router.HandleFunc("/users/me/avatar", utils.RequireAuth(h.DeleteAvatar)).Methods("DELETE")
	// Avatars are readable by anyone holding a user id. Kept open on purpose,
	// matching the rest of the public read surface.
	router.HandleFunc("/users/{id}/avatar", h.GetAvatar).Methods("GET")
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var registerRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&registerRequest); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}
	if registerRequest.Name == "" || registerRequest.Email == "" || registerRequest.Password == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	var existingUser models.User
	if result := h.db.Where("email = ?", registerRequest.Email).First(&existingUser); !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		if result.Error != nil {
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		h.logger.Infow("registration attempt with duplicate email", "email", registerRequest.Email)
		http.Error(w, "Email is already in use", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(registerRequest.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Error hashing password", http.StatusInternalServerError)
		return
	}

	verificationCode := fmt.Sprintf("%06d", rand.Intn(1000000))

	user := models.User{
		Name:                  registerRequest.Name,
		Email:                 registerRequest.Email,
		PasswordHash:          string(passwordHash),
		EmailVerificationCode: verificationCode,
		VerificationExpiry:    time.Now().Add(15 * time.Minute),
	}

	if err := h.db.Create(&user).Error; err != nil {
		http.Error(w, "Error registering user", http.StatusInternalServerError)
		return
	}

	go func() {
		if err := sendVerificationEmail(user.Email, verificationCode); err != nil {
			h.logger.Errorw("sending verification email", "email", user.Email, "error", err)
		}
	}()

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "User registered successfully. Please check your email for a verification code.",
		"user_id": user.ID,
	})
}

// sendVerificationEmail sends the 6-digit verification code.
func sendVerificationEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Email Verification Code")
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is: %s. Ignore this email if you did not request a verification code.", code))

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}
	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)

	return d.DialAndSend(m)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if result := h.db.Where("email = ?", loginRequest.Email).First(&user); result.Error != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := generateJWT(user.ID, 24*time.Hour)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful",
		"access_token": accessToken,
		"user_id":      user.ID,
	})
}

func generateJWT(userID uint, ttl time.Duration) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(userID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("SECRET_KEY")))
}

func (h *Handler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", request.Email).First(&user).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if user.EmailVerificationCode != request.Code || time.Now().After(user.VerificationExpiry) {
		http.Error(w, "Invalid or expired verification code", http.StatusUnauthorized)
		return
	}

	user.EmailVerified = true
	user.EmailVerificationCode = ""
	user.VerificationExpiry = time.Time{}

	if err := h.db.Save(&user).Error; err != nil {
		http.Error(w, "Error updating user", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Email verified successfully",
	})
}

// parseSearchParams reads lat/lon/maxDist, falling back to the defaults for
// anything absent or unparseable.
func parseSearchParams(query url.Values) (lat, lon, maxDist float64) {
	lat = defaultSearchLat
	lon = defaultSearchLon
	maxDist = defaultSearchRadiusMeters

	if v, err := strconv.ParseFloat(query.Get("lat"), 64); err == nil {
		lat = v
	}
	if v, err := strconv.ParseFloat(query.Get("lon"), 64); err == nil {
		lon = v
	}
	if v, err := strconv.ParseFloat(query.Get("maxDist"), 64); err == nil {
		maxDist = v
	}
	return lat, lon, maxDist
}

// SearchNearby returns every user with a stored location inside the radius,
// ordered by ascending distance. The distance math is delegated to the
// earthdistance extension. No result cap is applied.
func (h *Handler) SearchNearby(w http.ResponseWriter, r *http.Request) {
	lat, lon, maxDist := parseSearchParams(r.URL.Query())

	h.logger.Infof("searching for users near %v, %v within %v meters", lat, lon, maxDist)

	const fromPoint = `ll_to_earth((location->'coordinates'->>1)::float8, (location->'coordinates'->>0)::float8)`

	var users []models.User
	err := h.db.WithContext(r.Context()).Raw(`
		SELECT * FROM users
		WHERE deleted_at IS NULL
		  AND location IS NOT NULL
		  AND earth_distance(`+fromPoint+`, ll_to_earth(?, ?)) <= ?
		ORDER BY earth_distance(`+fromPoint+`, ll_to_earth(?, ?)) ASC`,
		lat, lon, maxDist, lat, lon,
	).Scan(&users).Error
	if err != nil {
		http.Error(w, "Error searching users", http.StatusInternalServerError)
		return
	}

	utils.WriteJSON(w, http.StatusOK, users)
}

// GetCurrentUser returns the authenticated caller's own record verbatim.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

var updateAllowList = map[string]bool{
	"name":     true,
	"email":    true,
	"password": true,
}

// UpdateCurrentUser applies a partial update. The submitted keys must be a
// subset of the allow-list; otherwise the whole request is rejected before
// any field is touched.
func (h *Handler) UpdateCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON input")
		return
	}
	obj, err := v.Object()
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON input")
		return
	}

	valid := true
	obj.Visit(func(key []byte, value *fastjson.Value) {
		if !updateAllowList[string(key)] || value.Type() != fastjson.TypeString {
			valid = false
		}
	})
	if !valid {
		utils.WriteError(w, http.StatusBadRequest, "Invalid updates!")
		return
	}

	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	if nv := v.Get("name"); nv != nil {
		user.Name = string(nv.GetStringBytes())
	}
	if ev := v.Get("email"); ev != nil {
		user.Email = string(ev.GetStringBytes())
	}
	if pv := v.Get("password"); pv != nil {
		hash, hashErr := bcrypt.GenerateFromPassword(pv.GetStringBytes(), bcrypt.DefaultCost)
		if hashErr != nil {
			http.Error(w, "Error hashing password", http.StatusInternalServerError)
			return
		}
		user.PasswordHash = string(hash)
	}

	if err := h.db.WithContext(r.Context()).Save(&user).Error; err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Error updating user")
		return
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

// UpdateLocation stores the caller's position. The body carries {lat, lng};
// storage order is GeoJSON [lng, lat].
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var position struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.NewDecoder(r.Body).Decode(&position); err != nil {
		http.Error(w, "Invalid JSON input", http.StatusBadRequest)
		return
	}

	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	user.Location = models.NewGeoPoint(position.Lat, position.Lng)

	if err := h.db.WithContext(r.Context()).Save(&user).Error; err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Error updating location")
		return
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

// UploadAvatar accepts a multipart "avatar" file, validates it and stores it
// normalized to a 250x250 PNG.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(2 << 20); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "An avatar file is required")
		return
	}
	defer file.Close()

	if err := utils.ValidateAvatarUpload(header.Filename, header.Size); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	avatar, err := utils.NormalizeAvatar(file)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.db.WithContext(r.Context()).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"avatar":         avatar,
		"avatar_version": uuid.New().String(),
	})
	if result.Error != nil {
		http.Error(w, "Error saving avatar", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetAvatar serves any user's avatar blob. 404 with an empty body when the
// user or the blob is missing.
func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, userID).Error; err != nil || len(user.Avatar) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if user.AvatarVersion != "" {
		w.Header().Set("ETag", `"`+user.AvatarVersion+`"`)
	}
	w.Write(user.Avatar)
}

// DeleteAvatar clears the caller's avatar. Idempotent.
func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result := h.db.WithContext(r.Context()).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"avatar":         nil,
		"avatar_version": "",
	})
	if result.Error != nil {
		http.Error(w, "Error deleting avatar", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
