package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nasda-team/nasda/config"
	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/services"
)

const testPassword = "password123"

var (
	uploadDir string
	pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
	codeRe    = regexp.MustCompile(`\d{6}`)
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "nasda-uploads-")
	if err != nil {
		panic(err)
	}
	uploadDir = dir
	config.Set(config.AppConfig{
		JWTSecret:          "test-secret",
		GinMode:            "test",
		RateLimitPerMinute: 10000,
	})
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendMail(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *fakeMailer) lastTo(to string) sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == to {
			return m.sent[i]
		}
	}
	return sentMail{}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	db     *gorm.DB
	mailer *fakeMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:routes-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	require.NoError(t, config.SeedCategories(db, config.Get().Categories))

	mailer := &fakeMailer{}
	storage := services.NewLocalImageStorage(uploadDir, "/uploads/")
	return &testServer{t: t, router: SetupRouter(db, mailer, storage), db: db, mailer: mailer}
}

func (s *testServer) send(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (s *testServer) json(method, target, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, token)
}

func (s *testServer) form(method, target, token string, fields map[string]string, fileField string, files ...[]byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	for i, data := range files {
		fw, err := mw.CreateFormFile(fileField, fmt.Sprintf("photo%d.png", i))
		require.NoError(s.t, err)
		_, err = fw.Write(data)
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.send(req, token)
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v), string(env.Data))
}

type authPayload struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Nickname string `json:"nickname"`
	} `json:"user"`
}

func (s *testServer) register(loginID, nickname string) authPayload {
	s.t.Helper()
	email := loginID + "@example.com"
	w, _ := s.json(http.MethodPost, "/api/v1/auth/send-email-code", "", gin.H{"email": email})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	code := codeRe.FindString(s.mailer.lastTo(email).body)
	require.Len(s.t, code, 6)

	w, env := s.json(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"login_id": loginID,
		"password": testPassword,
		"nickname": nickname,
		"email":    email,
		"code":     code,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var out authPayload
	decode(s.t, env, &out)
	require.NotEmpty(s.t, out.Token)
	return out
}

func (s *testServer) createPost(token, title, category string, images ...[]byte) uint {
	s.t.Helper()
	w, env := s.form(http.MethodPost, "/api/v1/posts", token, map[string]string{
		"title":       title,
		"category":    category,
		"description": "**hello** world",
	}, "images", images...)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		ID uint `json:"id"`
	}
	decode(s.t, env, &out)
	return out.ID
}

type postDetail struct {
	Post struct {
		ID              uint   `json:"id"`
		Title           string `json:"title"`
		DescriptionHTML string `json:"description_html"`
		Category        string `json:"category"`
		AuthorID        *uint  `json:"author_id"`
		Nickname        string `json:"nickname"`
		ViewCount       int    `json:"view_count"`
		IsOwner         bool   `json:"is_owner"`
		Images          []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"post"`
	Comments struct {
		Items []struct {
			ID       uint   `json:"id"`
			Nickname string `json:"nickname"`
			Content  string `json:"content"`
			CanEdit  bool   `json:"can_edit"`
		} `json:"items"`
		Total int64 `json:"total"`
	} `json:"comments"`
}

func (s *testServer) getPost(id uint, token string) (*httptest.ResponseRecorder, postDetail) {
	s.t.Helper()
	w, env := s.json(http.MethodGet, fmt.Sprintf("/api/v1/posts/%d", id), token, nil)
	var out postDetail
	if w.Code == http.StatusOK {
		decode(s.t, env, &out)
	}
	return w, out
}

func TestHealthAndNoRoute(t *testing.T) {
	s := newTestServer(t)

	w, env := s.json(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)

	w, env = s.json(http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, env.Code)
}

func TestCategoriesAreSeeded(t *testing.T) {
	s := newTestServer(t)
	w, env := s.json(http.MethodGet, "/api/v1/categories", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Items []models.Category `json:"items"`
	}
	decode(t, env, &out)
	require.Len(t, out.Items, len(config.DefaultCategories))
	assert.Equal(t, config.DefaultCategories[0], out.Items[0].Name)
}

func TestRegisterRequiresVerifiedEmail(t *testing.T) {
	s := newTestServer(t)
	form := gin.H{
		"login_id": "alice",
		"password": testPassword,
		"nickname": "Alice",
		"email":    "alice@example.com",
	}

	w, _ := s.json(http.MethodPost, "/api/v1/auth/register", "", form)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/send-email-code", "", gin.H{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	code := codeRe.FindString(s.mailer.lastTo("alice@example.com").body)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/verify-email-code", "", gin.H{"email": "alice@example.com", "code": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.json(http.MethodPost, "/api/v1/auth/verify-email-code", "", gin.H{"email": "alice@example.com", "code": code})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/register", "", form)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// a registered email cannot ask for another code
	w, _ = s.json(http.MethodPost, "/api/v1/auth/send-email-code", "", gin.H{"email": "alice@example.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSendEmailCodeCooldown(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.json(http.MethodPost, "/api/v1/auth/send-email-code", "", gin.H{"email": "slow@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env := s.json(http.MethodPost, "/api/v1/auth/send-email-code", "", gin.H{"email": "slow@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 42911, env.Code)
}

func TestRegisterConflicts(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "Alice")

	w, _ := s.json(http.MethodPost, "/api/v1/auth/send-email-code", "", gin.H{"email": "other@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	code := codeRe.FindString(s.mailer.lastTo("other@example.com").body)
	w, _ = s.json(http.MethodPost, "/api/v1/auth/verify-email-code", "", gin.H{"email": "other@example.com", "code": code})
	require.Equal(t, http.StatusOK, w.Code)

	form := gin.H{
		"login_id": "alice",
		"password": testPassword,
		"nickname": "Someone",
		"email":    "other@example.com",
	}
	w, env := s.json(http.MethodPost, "/api/v1/auth/register", "", form)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "이미 존재하는 아이디입니다.", env.Message)

	form["nickname"] = "Alice"
	form["login_id"] = "someone"
	w, _ = s.json(http.MethodPost, "/api/v1/auth/register", "", form)
	assert.Equal(t, http.StatusConflict, w.Code)

	// the verification survives rejected forms
	form["nickname"] = "Someone"
	w, _ = s.json(http.MethodPost, "/api/v1/auth/register", "", form)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, env = s.json(http.MethodGet, "/api/v1/auth/check?field=nickname&value=Alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var check struct {
		Available bool `json:"available"`
	}
	decode(t, env, &check)
	assert.False(t, check.Available)

	w, _ = s.json(http.MethodGet, "/api/v1/auth/check?field=password&value=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginMeLogout(t *testing.T) {
	s := newTestServer(t)
	reg := s.register("alice", "Alice")

	w, _ := s.json(http.MethodPost, "/api/v1/auth/login", "", gin.H{"login_id": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.json(http.MethodPost, "/api/v1/auth/login", "", gin.H{"login_id": "alice", "password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)
	var login authPayload
	decode(t, env, &login)
	assert.Equal(t, reg.User.ID, login.User.ID)

	w, env = s.json(http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"nickname":"Alice"`)
	assert.Contains(t, string(env.Data), `"post_count":0`)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/logout", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.json(http.MethodGet, "/api/v1/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.json(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestChangePasswordAndRecovery(t *testing.T) {
	s := newTestServer(t)
	reg := s.register("alice", "Alice")

	w, _ := s.json(http.MethodPut, "/api/v1/auth/password", reg.Token, gin.H{
		"current_password": "wrong-password",
		"new_password":     "newpassword1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.json(http.MethodPut, "/api/v1/auth/password", reg.Token, gin.H{
		"current_password": testPassword,
		"new_password":     "newpassword1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.json(http.MethodPost, "/api/v1/auth/password/check", reg.Token, gin.H{"password": "newpassword1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"matches":true`)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/find-id", "", gin.H{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, s.mailer.lastTo("alice@example.com").body, "alice")

	w, _ = s.json(http.MethodPost, "/api/v1/auth/find-id", "", gin.H{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/reset-password", "", gin.H{"login_id": "alice", "email": "bob@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.json(http.MethodPost, "/api/v1/auth/reset-password", "", gin.H{"login_id": "alice", "email": "alice@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	temp := regexp.MustCompile(`임시 비밀번호는 (\S+) 입니다`).FindStringSubmatch(s.mailer.lastTo("alice@example.com").body)
	require.Len(t, temp, 2)

	w, _ = s.json(http.MethodPost, "/api/v1/auth/login", "", gin.H{"login_id": "alice", "password": temp[1]})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice", "Alice")
	bob := s.register("bobby", "Bob")

	w, _ := s.form(http.MethodPost, "/api/v1/posts", "", map[string]string{"title": "x", "category": "음식"}, "images")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	postID := s.createPost(alice.Token, "첫 글", "음식", pngHeader, pngHeader)

	// home feed shows the first image
	w, env := s.json(http.MethodGet, "/api/v1/posts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var home struct {
		Items []struct {
			ID       uint    `json:"id"`
			ImageURL *string `json:"image_url"`
		} `json:"items"`
	}
	decode(t, env, &home)
	require.Len(t, home.Items, 1)
	require.NotNil(t, home.Items[0].ImageURL)
	imageURL := *home.Items[0].ImageURL

	w, _ = s.send(httptest.NewRequest(http.MethodGet, imageURL, nil), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, detail := s.getPost(postID, alice.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, detail.Post.IsOwner)
	assert.Equal(t, 1, detail.Post.ViewCount)
	assert.Equal(t, "Alice", detail.Post.Nickname)
	assert.Equal(t, "음식", detail.Post.Category)
	assert.Contains(t, detail.Post.DescriptionHTML, "<strong>hello</strong>")
	assert.Len(t, detail.Post.Images, 2)

	_, detail = s.getPost(postID, bob.Token)
	assert.False(t, detail.Post.IsOwner)
	assert.Equal(t, 2, detail.Post.ViewCount)

	// only the author may change the post
	w, _ = s.form(http.MethodPut, fmt.Sprintf("/api/v1/posts/%d", postID), bob.Token,
		map[string]string{"title": "hijack", "category": "음식"}, "newImages")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.json(http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", postID), bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// update without new images keeps the old ones
	w, _ = s.form(http.MethodPut, fmt.Sprintf("/api/v1/posts/%d", postID), alice.Token,
		map[string]string{"title": "수정된 글", "category": "꽃"}, "newImages")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, detail = s.getPost(postID, "")
	assert.Equal(t, "수정된 글", detail.Post.Title)
	assert.Equal(t, "꽃", detail.Post.Category)
	assert.Len(t, detail.Post.Images, 2)

	w, env = s.json(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", postID), bob.Token, gin.H{"content": "  좋아요  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"page":0`)

	w, _ = s.json(http.MethodPost, fmt.Sprintf("/api/v1/posts/%d/comments", postID), bob.Token, gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, detail = s.getPost(postID, bob.Token)
	require.Len(t, detail.Comments.Items, 1)
	assert.Equal(t, "좋아요", detail.Comments.Items[0].Content)
	assert.Equal(t, "Bob", detail.Comments.Items[0].Nickname)
	assert.True(t, detail.Comments.Items[0].CanEdit)
	commentID := detail.Comments.Items[0].ID

	_, detail = s.getPost(postID, alice.Token)
	assert.False(t, detail.Comments.Items[0].CanEdit)

	w, _ = s.json(http.MethodPut, fmt.Sprintf("/api/v1/comments/%d", commentID), alice.Token, gin.H{"content": "edit"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.json(http.MethodGet, "/api/v1/users/me/comments", bob.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	w, env = s.json(http.MethodGet, "/api/v1/users/me/posts", alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	// delete removes rows and files
	w, _ = s.json(http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", postID), alice.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.getPost(postID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	_, err := os.Stat(filepath.Join(uploadDir, path.Base(imageURL)))
	assert.True(t, os.IsNotExist(err))

	var comments int64
	require.NoError(t, s.db.Model(&models.Comment{}).Where("post_id = ?", postID).Count(&comments).Error)
	assert.Zero(t, comments)
}

func TestCreatePostValidation(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice", "Alice")

	w, env := s.form(http.MethodPost, "/api/v1/posts", alice.Token,
		map[string]string{"title": "x", "category": "없는카테고리"}, "images")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "존재하지 않는 카테고리입니다.", env.Message)

	w, _ = s.form(http.MethodPost, "/api/v1/posts", alice.Token,
		map[string]string{"title": "x", "category": "음식"}, "images", []byte("plain text, not an image"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var posts int64
	require.NoError(t, s.db.Model(&models.Post{}).Count(&posts).Error)
	assert.Zero(t, posts, "a post whose images fail is removed again")
}

func TestFeedAndSearch(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice", "Alice")
	s.createPost(alice.Token, "맛있는 김치", "음식")
	s.createPost(alice.Token, "장미 사진", "꽃")

	w, env := s.json(http.MethodGet, "/api/v1/posts/feed?category=꽃&page=0&size=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "장미 사진")
	assert.NotContains(t, string(env.Data), "맛있는 김치")

	w, env = s.json(http.MethodGet, "/api/v1/posts/search?keyword=김치&type=title", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "맛있는 김치")
	assert.Contains(t, string(env.Data), `"image_url"`)

	w, env = s.json(http.MethodGet, "/api/v1/posts/search?keyword=alice&type=author", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "장미 사진")
}

func TestDeleteAccountOrphansContent(t *testing.T) {
	s := newTestServer(t)
	alice := s.register("alice", "Alice")
	postID := s.createPost(alice.Token, "남겨질 글", "일기")

	w, _ := s.json(http.MethodDelete, "/api/v1/auth/account", alice.Token, gin.H{"password": "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.json(http.MethodDelete, "/api/v1/auth/account", alice.Token, gin.H{"password": testPassword})
	require.Equal(t, http.StatusOK, w.Code)

	w, detail := s.getPost(postID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, detail.Post.AuthorID)
	assert.Equal(t, "(알 수 없음)", detail.Post.Nickname)

	// the token of the deleted account is revoked
	w, _ = s.json(http.MethodGet, "/api/v1/auth/me", alice.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
