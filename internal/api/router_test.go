package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/vibeup/internal/api/handler"
	"github.com/d60-Lab/vibeup/internal/api/middleware"
	"github.com/d60-Lab/vibeup/internal/model"
	"github.com/d60-Lab/vibeup/internal/repository"
	"github.com/d60-Lab/vibeup/internal/service"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

var secret = []byte("router-test-secret")

func init() { gin.SetMode(gin.TestMode) }

type testServer struct {
	db     *gorm.DB
	router *gin.Engine
}

func newTestServer(t *testing.T, limiter *middleware.Limiter) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	posts := repository.NewPostRepository(db)
	tracks := repository.NewTrackRepository(db)
	catalog := service.NewCatalog(posts, tracks)
	engine := vibe.NewEngine(repository.NewReactionStore(db))
	h := handler.New(
		service.NewPostService(posts, tracks, nil, nil, nil),
		service.NewTrackService(tracks, nil, nil, nil),
		service.NewReactionService(engine, catalog, repository.NewReactionRepository(db), nil),
	)
	r := NewRouter(h, handler.NewHealthHandler(db, nil), RouterOptions{
		ServiceName: "vibeup-test",
		JWTSecret:   secret,
		Limiter:     limiter,
	})
	return &testServer{db: db, router: r}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func (s *testServer) createPost(t *testing.T, content string) service.PostView {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/posts", "author", gin.H{"content": content})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var p service.PostView
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestRouter_PostLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, http.MethodPost, "/api/v1/posts", "", gin.H{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/posts", "author", gin.H{"content": ""})
	assert.Equal(t, http.StatusBadRequest, code)

	p := s.createPost(t, "new single out now")
	assert.Equal(t, "author", p.AuthorID)
	assert.Equal(t, 50, p.VibeScore)
	assert.Equal(t, vibe.TierMixed, p.Tier)

	path := "/api/v1/posts/" + p.ID + "/reactions"
	code, env := s.do(t, http.MethodPost, path, "fan-1", gin.H{"polarity": "positive", "label": "fire"})
	require.Equal(t, http.StatusOK, code, env.Message)
	var res service.ReactionResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 100, res.Entity.VibeScore)
	assert.Equal(t, vibe.TierExcellent, res.Tier)

	code, env = s.do(t, http.MethodPost, path, "fan-1", gin.H{"polarity": "negative"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "you already reacted", env.Message)

	code, _ = s.do(t, http.MethodPost, path, "fan-2", gin.H{"polarity": "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, path, "fan-2", gin.H{"polarity": "negative", "label": "love"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/posts/missing/reactions", "fan-2", gin.H{"polarity": "positive"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/posts/"+p.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	var got service.PostView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.EqualValues(t, 1, got.PositiveReactions)
	assert.Equal(t, 100, got.VibeScore)

	code, env = s.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, code)
	var bd service.ReactionBreakdown
	require.NoError(t, json.Unmarshal(env.Data, &bd))
	require.Len(t, bd.Labels, 1)
	assert.Equal(t, "fire", bd.Labels[0].Label)

	code, _ = s.do(t, http.MethodGet, "/api/v1/posts/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRouter_FeedOrder(t *testing.T) {
	s := newTestServer(t, nil)
	a := s.createPost(t, "a")
	b := s.createPost(t, "b")
	c := s.createPost(t, "c")

	react := func(user, id, polarity string) {
		code, env := s.do(t, http.MethodPost, "/api/v1/posts/"+id+"/reactions", user, gin.H{"polarity": polarity})
		require.Equal(t, http.StatusOK, code, env.Message)
	}
	react("u1", c.ID, "positive")
	react("u2", a.ID, "negative")

	code, env := s.do(t, http.MethodGet, "/api/v1/posts?page=1&page_size=10", "", nil)
	require.Equal(t, http.StatusOK, code)
	var page service.PostPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
	assert.Equal(t, service.SourceDatabase, page.Source)
}

func TestRouter_Tracks(t *testing.T) {
	s := newTestServer(t, nil)

	code, _ := s.do(t, http.MethodPost, "/api/v1/tracks", "artist", gin.H{"title": "x", "audio_url": "https://cdn.example.com/x.mp3", "currency": "EURO"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/tracks", "artist", gin.H{"title": "x", "audio_url": "https://cdn.example.com/x.mp3", "price": -1})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/tracks", "artist", gin.H{"title": "x", "audio_url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := s.do(t, http.MethodPost, "/api/v1/tracks", "artist", gin.H{"title": "Skyline", "audio_url": "https://cdn.example.com/s.mp3", "price": 2.5, "currency": "gbp"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var tr service.TrackView
	require.NoError(t, json.Unmarshal(env.Data, &tr))
	assert.Equal(t, "GBP", tr.Currency)

	code, env = s.do(t, http.MethodPost, "/api/v1/tracks/"+tr.ID+"/reactions", "fan", gin.H{"polarity": "negative"})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, http.MethodGet, "/api/v1/tracks", "", nil)
	require.Equal(t, http.StatusOK, code)
	var page service.TrackPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, 0, page.Items[0].VibeScore)
	assert.Equal(t, vibe.TierPoor, page.Items[0].Tier)

	code, env = s.do(t, http.MethodGet, "/api/v1/tracks/"+tr.ID+"/reactions", "", nil)
	require.Equal(t, http.StatusOK, code)
	var bd service.ReactionBreakdown
	require.NoError(t, json.Unmarshal(env.Data, &bd))
	assert.Equal(t, vibe.Counts{Negative: 1}, bd.Counts)
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, middleware.NewLimiter(0.001, 1))
	s.createPost(t, "one")
	code, _ := s.do(t, http.MethodPost, "/api/v1/posts", "author", gin.H{"content": "two"})
	assert.Equal(t, http.StatusTooManyRequests, code)

	// 读接口不限流
	code, _ = s.do(t, http.MethodGet, "/api/v1/posts", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRouter_StorageUnavailable(t *testing.T) {
	s := newTestServer(t, nil)
	p := s.createPost(t, "hello")

	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	code, _ := s.do(t, http.MethodPost, "/api/v1/posts/"+p.ID+"/reactions", "fan", gin.H{"polarity": "positive"})
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	code, env := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"database":"ok"}`, string(env.Data))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vibe_http_requests_total")
}
