package user

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hmontero/waypoint-server/cmd/models"
	"github.com/hmontero/waypoint-server/cmd/utils"
)

func bootstrapHandler(t *testing.T) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	return NewHandler(db, logger.Sugar())
}

func createUser(t *testing.T, h *Handler, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter22"), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &models.User{
		Name:         "Ada",
		Email:        email,
		PasswordHash: string(hash),
	}
	require.NoError(t, h.db.Create(user).Error)
	return user
}

func authedRequest(t *testing.T, method, target string, body *bytes.Buffer, userID uint) *http.Request {
	t.Helper()

	if body == nil {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, userID))
}

func TestUpdateCurrentUserRejectsUnknownField(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	payload := bytes.NewBufferString(`{"name":"Grace","role":"admin"}`)
	req := authedRequest(t, http.MethodPatch, "/api/users/me", payload, user.ID)

	rr := httptest.NewRecorder()
	h.UpdateCurrentUser(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "Invalid updates!", response["error"])

	// Nothing may have been applied, allow-listed keys included.
	var stored models.User
	require.NoError(t, h.db.First(&stored, user.ID).Error)
	assert.Equal(t, "Ada", stored.Name)
}

func TestUpdateCurrentUserRejectsNonStringValue(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	payload := bytes.NewBufferString(`{"name":42}`)
	req := authedRequest(t, http.MethodPatch, "/api/users/me", payload, user.ID)

	rr := httptest.NewRecorder()
	h.UpdateCurrentUser(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateCurrentUserAppliesAllowedFields(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	payload := bytes.NewBufferString(`{"name":"Grace","email":"grace@example.com","password":"correcthorse"}`)
	req := authedRequest(t, http.MethodPatch, "/api/users/me", payload, user.ID)

	rr := httptest.NewRecorder()
	h.UpdateCurrentUser(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var stored models.User
	require.NoError(t, h.db.First(&stored, user.ID).Error)
	assert.Equal(t, "Grace", stored.Name)
	assert.Equal(t, "grace@example.com", stored.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correcthorse")))
}

func TestUpdateLocationSwapsCoordinateOrder(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	payload := bytes.NewBufferString(`{"lat":25.756365,"lng":-80.375716}`)
	req := authedRequest(t, http.MethodPut, "/api/users/me/location", payload, user.ID)

	rr := httptest.NewRecorder()
	h.UpdateLocation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var stored models.User
	require.NoError(t, h.db.First(&stored, user.ID).Error)
	require.NotNil(t, stored.Location)
	assert.Equal(t, "Point", stored.Location.Type)
	assert.Equal(t, []float64{-80.375716, 25.756365}, stored.Location.Coordinates)
}

func TestSearchParamsDefaults(t *testing.T) {
	t.Parallel()

	lat, lon, maxDist := parseSearchParams(url.Values{})
	assert.Equal(t, 25.756365, lat)
	assert.Equal(t, -80.375716, lon)
	assert.Equal(t, 32186.9, maxDist)

	lat, lon, maxDist = parseSearchParams(url.Values{
		"lat": {"20"},
		"lon": {"-60"},
	})
	assert.Equal(t, 20.0, lat)
	assert.Equal(t, -60.0, lon)
	assert.Equal(t, 32186.9, maxDist)

	_, _, maxDist = parseSearchParams(url.Values{"maxDist": {"100"}})
	assert.Equal(t, 100.0, maxDist)

	// Unparseable values fall back the way absent ones do.
	lat, _, _ = parseSearchParams(url.Values{"lat": {"not-a-number"}})
	assert.Equal(t, 25.756365, lat)
}

func avatarUpload(t *testing.T, filename string, content []byte, userID uint) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := authedRequest(t, http.MethodPost, "/api/users/me/avatar", &buf, userID)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	return buf.Bytes()
}

func TestUploadAvatarRejectsWrongExtension(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	// Valid PNG bytes behind a .gif name must still be rejected.
	req := avatarUpload(t, "photo.gif", testPNG(t), user.ID)
	rr := httptest.NewRecorder()
	h.UploadAvatar(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)

	var stored models.User
	require.NoError(t, h.db.First(&stored, user.ID).Error)
	assert.Empty(t, stored.Avatar)
}

func TestUploadAvatarStoresNormalizedPNG(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	req := avatarUpload(t, "photo.png", testPNG(t), user.ID)
	rr := httptest.NewRecorder()
	h.UploadAvatar(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var stored models.User
	require.NoError(t, h.db.First(&stored, user.ID).Error)
	require.NotEmpty(t, stored.Avatar)
	assert.NotEmpty(t, stored.AvatarVersion)

	decoded, err := png.Decode(bytes.NewReader(stored.Avatar))
	require.NoError(t, err)
	assert.Equal(t, utils.AvatarDimension, decoded.Bounds().Dx())
	assert.Equal(t, utils.AvatarDimension, decoded.Bounds().Dy())
}

func TestGetAvatar(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	upload := avatarUpload(t, "photo.png", testPNG(t), user.ID)
	rr := httptest.NewRecorder()
	h.UploadAvatar(rr, upload)
	require.Equal(t, http.StatusOK, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/users/1/avatar", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rr = httptest.NewRecorder()
	h.GetAvatar(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Header().Get("ETag"))

	_, err := png.Decode(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
}

func TestGetAvatarNotFound(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	// A user without an avatar 404s the same way a missing user does.
	createUser(t, h, "ada@example.com")

	for _, id := range []string{"1", "999"} {
		req := httptest.NewRequest(http.MethodGet, "/api/users/"+id+"/avatar", nil)
		req = mux.SetURLVars(req, map[string]string{"id": id})
		rr := httptest.NewRecorder()
		h.GetAvatar(rr, req)

		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Empty(t, rr.Body.Bytes())
	}
}

func TestDeleteAvatarIsIdempotent(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	upload := avatarUpload(t, "photo.png", testPNG(t), user.ID)
	rr := httptest.NewRecorder()
	h.UploadAvatar(rr, upload)
	require.Equal(t, http.StatusOK, rr.Code)

	for i := 0; i < 2; i++ {
		req := authedRequest(t, http.MethodDelete, "/api/users/me/avatar", nil, user.ID)
		rr = httptest.NewRecorder()
		h.DeleteAvatar(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	var stored models.User
	require.NoError(t, h.db.First(&stored, user.ID).Error)
	assert.Empty(t, stored.Avatar)
}

func TestGetCurrentUserHidesSensitiveFields(t *testing.T) {
	t.Parallel()

	h := bootstrapHandler(t)
	user := createUser(t, h, "ada@example.com")

	req := authedRequest(t, http.MethodGet, "/api/users/me", nil, user.ID)
	rr := httptest.NewRecorder()
	h.GetCurrentUser(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "ada@example.com", response["email"])
	assert.NotContains(t, response, "password_hash")
	assert.NotContains(t, response, "avatar")
}
