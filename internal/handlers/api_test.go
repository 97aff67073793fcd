package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/cache"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/config"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/database"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/routes"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/services"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter replays fixed fragments, or fails when err is set.
type fakeCompleter struct {
	fragments []string
	err       error
	windows   [][]dto.ChatTurn
}

func (f *fakeCompleter) Complete(_ context.Context, window []dto.ChatTurn) (string, error) {
	f.windows = append(f.windows, window)
	if f.err != nil {
		return "", f.err
	}
	var out string
	for _, fr := range f.fragments {
		out += fr
	}
	return out, nil
}

func (f *fakeCompleter) Stream(_ context.Context, window []dto.ChatTurn) (services.FragmentStream, error) {
	f.windows = append(f.windows, window)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{fragments: append([]string(nil), f.fragments...)}, nil
}

type fakeStream struct {
	fragments []string
}

func (s *fakeStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		return "", io.EOF
	}
	next := s.fragments[0]
	s.fragments = s.fragments[1:]
	return next, nil
}

func (s *fakeStream) Close() error { return nil }

type testAPI struct {
	app       *fiber.App
	completer *fakeCompleter
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithDenylist(t, func(st *store.Store) services.Denylist {
		return services.NewDBDenylist(st)
	})
}

func newTestAPIWithDenylist(t *testing.T, newDenylist func(*store.Store) services.Denylist) *testAPI {
	t.Helper()
	cfg := &config.Config{
		DBDriver:    "sqlite",
		DBPath:      filepath.Join(t.TempDir(), "api.db"),
		JWTSecret:   "test-secret",
		CORSOrigins: "*",
	}
	db, err := database.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { database.Close(db) })

	st := store.New(db)
	tokens := services.NewTokenService(cfg.JWTSecret)
	denylist := newDenylist(st)
	completer := &fakeCompleter{fragments: []string{"He", "llo"}}

	authService := services.NewAuthService(st, tokens, denylist)
	chatService := services.NewChatService(st, completer)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	routes.Setup(app, cfg, middleware.RequireUser(tokens, st, denylist),
		handlers.NewAuthHandler(authService),
		handlers.NewUserHandler(authService),
		handlers.NewChatHandler(chatService),
		handlers.NewHealthHandler(db),
	)
	return &testAPI{app: app, completer: completer}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (a *testAPI) registerAndLogin(t *testing.T, name, email, password string) (dto.UserResponse, string) {
	t.Helper()
	resp, raw := a.do(t, http.MethodPost, "/api/users", "", dto.RegisterRequest{Name: name, Email: email, Password: password})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var user dto.UserResponse
	require.NoError(t, json.Unmarshal(raw, &user))

	resp, raw = a.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Email: email, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var login dto.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &login))
	require.NotEmpty(t, login.Token)
	return user, login.Token
}

func decodeError(t *testing.T, raw []byte) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestRegisterLoginMe(t *testing.T) {
	api := newTestAPI(t)
	user, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")
	assert.NotZero(t, user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "a@x.com", user.Email)

	resp, raw := api.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(raw), "password")

	var me dto.UserResponse
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, user, me)
}

func TestRegister_Duplicate(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, raw := api.do(t, http.MethodPost, "/api/users", "", dto.RegisterRequest{Name: "Other", Email: "a@x.com", Password: "secret2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Email already registered", decodeError(t, raw).Message)
}

func TestRegister_BadBody(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_WrongPassword(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, raw := api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Email: "a@x.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, decodeError(t, raw).Error)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	api := newTestAPI(t)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodPut, "/api/me"},
		{http.MethodDelete, "/api/me"},
		{http.MethodPost, "/api/chat"},
		{http.MethodPost, "/api/chat/stream"},
		{http.MethodGet, "/api/chat/history"},
		{http.MethodPost, "/api/logout"},
	}
	for _, p := range paths {
		resp, _ := api.do(t, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, p.method+" "+p.path)

		resp, _ = api.do(t, p.method, p.path, "not.a.token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, p.method+" "+p.path)
	}
}

func TestUpdateMe(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, raw := api.do(t, http.MethodPut, "/api/me", token, dto.UpdateUserRequest{Name: "Alicia", Password: "newsecret"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var me dto.UserResponse
	require.NoError(t, json.Unmarshal(raw, &me))
	assert.Equal(t, "Alicia", me.Name)
	assert.Equal(t, "a@x.com", me.Email)

	resp, _ = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Email: "a@x.com", Password: "newsecret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPut, "/api/me", token, dto.UpdateUserRequest{Name: "A"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_ReplyAndHistory(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, raw := api.do(t, http.MethodPost, "/api/chat", token, dto.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var reply dto.ChatResponse
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, "Hello", reply.Reply)

	resp, raw = api.do(t, http.MethodGet, "/api/chat/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var turns []dto.ChatTurn
	require.NoError(t, json.Unmarshal(raw, &turns))
	assert.Equal(t, []dto.ChatTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "Hello"},
	}, turns)
}

func TestChat_EmptyMessage(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, _ := api.do(t, http.MethodPost, "/api/chat", token, dto.ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/chat/stream", token, dto.ChatRequest{Message: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChat_UpstreamFailure(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")
	api.completer.err = errors.Join(services.ErrUpstream, errors.New("status 500"))

	resp, raw := api.do(t, http.MethodPost, "/api/chat", token, dto.ChatRequest{Message: "hi"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Chat failed", decodeError(t, raw).Message)

	resp, raw = api.do(t, http.MethodGet, "/api/chat/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(raw))
}

func TestChatStream(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, raw := api.do(t, http.MethodPost, "/api/chat/stream", token, dto.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "data: He\n\ndata: llo\n\nevent: done\ndata: [DONE]\n\n", string(raw))

	resp, raw = api.do(t, http.MethodGet, "/api/chat/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var turns []dto.ChatTurn
	require.NoError(t, json.Unmarshal(raw, &turns))
	assert.Equal(t, []dto.ChatTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "Hello"},
	}, turns)
}

func TestChatStream_UpstreamFailure(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")
	api.completer.err = errors.Join(services.ErrUpstream, errors.New("connection refused"))

	resp, raw := api.do(t, http.MethodPost, "/api/chat/stream", token, dto.ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "event: error\ndata: Chat failed\n\n", string(raw))

	_, raw = api.do(t, http.MethodGet, "/api/chat/history", token, nil)
	assert.JSONEq(t, "[]", string(raw))
}

func TestChat_WindowIncludesHistory(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	api.do(t, http.MethodPost, "/api/chat", token, dto.ChatRequest{Message: "first"})
	api.do(t, http.MethodPost, "/api/chat", token, dto.ChatRequest{Message: "second"})

	require.Len(t, api.completer.windows, 2)
	assert.Equal(t, []dto.ChatTurn{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "Hello"},
		{Role: "user", Content: "second"},
	}, api.completer.windows[1])
}

func TestHistory_IsolatedPerUser(t *testing.T) {
	api := newTestAPI(t)
	_, alice := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")
	_, bob := api.registerAndLogin(t, "Bob", "b@x.com", "secret1")

	api.do(t, http.MethodPost, "/api/chat", alice, dto.ChatRequest{Message: "hi"})

	_, raw := api.do(t, http.MethodGet, "/api/chat/history", bob, nil)
	assert.JSONEq(t, "[]", string(raw))
}

func TestDeleteMe(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")
	api.do(t, http.MethodPost, "/api/chat", token, dto.ChatRequest{Message: "hi"})

	resp, _ := api.do(t, http.MethodDelete, "/api/me", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, raw := api.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", decodeError(t, raw).Message)

	resp, _ = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, _ := api.do(t, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = api.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, fresh := api.registerAndLogin(t, "Bob", "b@x.com", "secret1")
	resp, _ = api.do(t, http.MethodGet, "/api/me", fresh, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogout_RedisDenylist(t *testing.T) {
	mr := miniredis.RunT(t)
	redisDenylist, err := cache.NewRedisDenylist(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { redisDenylist.Close() })

	api := newTestAPIWithDenylist(t, func(*store.Store) services.Denylist { return redisDenylist })
	_, token := api.registerAndLogin(t, "Alice", "a@x.com", "secret1")

	resp, _ := api.do(t, http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, mr.Keys(), 1)

	resp, raw := api.do(t, http.MethodGet, "/api/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, decodeError(t, raw).Error)

	// the key lives as long as the token would have
	mr.FastForward(services.TokenTTL + time.Second)
	assert.Empty(t, mr.Keys())
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, raw := api.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health dto.HealthResponse
	require.NoError(t, json.Unmarshal(raw, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DB)
	assert.NotEmpty(t, health.Timestamp)
}
