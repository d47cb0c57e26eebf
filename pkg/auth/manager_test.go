package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	"github.com/aixgo-dev/travelintel/pkg/identity"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/session"
)

// fakeBackend serves the auth endpoints and records Authorization headers
// seen on /protected/.
type fakeBackend struct {
	mu          sync.Mutex
	authHeaders []string
	codeSent    []string
	*httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	mux := http.NewServeMux()

	mux.HandleFunc(PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case req["email"] == "user@example.com" && req["password"] == "secret":
			writeJSON(w, http.StatusOK, map[string]any{
				"token": "tok-1",
				"user":  map[string]any{"id": 7, "username": "user", "email": "user@example.com"},
			})
		case req["email"] == "err@example.com":
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "Account locked"})
		case req["email"] == "bare@example.com":
			writeJSON(w, http.StatusInternalServerError, map[string]any{"other": "x"})
		case req["email"] == "bad@example.com":
			writeJSON(w, http.StatusOK, map[string]any{"token": "", "user": map[string]any{}})
		default:
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Invalid credentials"})
		}
	})
	mux.HandleFunc(PathRegister, func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username == "taken" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Username already exists"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"token": "tok-reg",
			"user":  map[string]any{"id": "u-9", "username": req.Username, "email": req.Email, "phone": req.Phone},
		})
	})
	mux.HandleFunc(PathSendCode, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["phone"] == "000" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid phone number"})
			return
		}
		fb.mu.Lock()
		fb.codeSent = append(fb.codeSent, req["phone"])
		fb.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"sent": true})
	})
	mux.HandleFunc(PathVerifyCode, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["code"] != "123456" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Code expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "tok-otp",
			"user":  map[string]any{"id": 8, "username": "phone", "email": "", "phone": req["phone"]},
		})
	})
	mux.HandleFunc("/protected/", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.authHeaders = append(fb.authHeaders, r.Header.Get("Authorization"))
		fb.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeBackend) lastAuthHeader() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.authHeaders) == 0 {
		return "<none>"
	}
	return fb.authHeaders[len(fb.authHeaders)-1]
}

func (fb *fakeBackend) sentCodes() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.codeSent...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	backend *fakeBackend
	store   session.Store
	ident   *identity.SessionContext
	api     *apiclient.Client
	manager *Manager
}

func newHarness(t *testing.T, store session.Store) *harness {
	t.Helper()
	backend := newFakeBackend(t)
	if store == nil {
		store = session.NewMemoryBackend()
	}
	ident := identity.NewSessionContextWithID("sess-test")
	api := apiclient.New(backend.URL, ident)
	return &harness{
		backend: backend,
		store:   store,
		ident:   ident,
		api:     api,
		manager: NewManager(api, store, ident, WithLogger(metrics.DiscardLogger())),
	}
}

func (h *harness) callProtected(t *testing.T) {
	t.Helper()
	_, err := h.api.Do(context.Background(), http.MethodGet, "/protected/", nil, nil)
	require.NoError(t, err)
}

// failingStore fails operations on demand.
type failingStore struct {
	session.Store
	failSetKey string
	failDelete bool
	failGet    bool
}

func (s *failingStore) Get(ctx context.Context, key string) (string, error) {
	if s.failGet {
		return "", errors.New("connection reset by peer")
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if key == s.failSetKey {
		return errors.New("disk full")
	}
	return s.Store.Set(ctx, key, value)
}

func (s *failingStore) Delete(ctx context.Context, keys ...string) error {
	if s.failDelete {
		return errors.New("read-only filesystem")
	}
	return s.Store.Delete(ctx, keys...)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	sess, err := h.manager.Login(ctx, "user@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, UserID("7"), sess.User.ID)
	assert.Equal(t, Authenticated, h.manager.State())

	token, err := h.store.Get(ctx, KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	raw, err := h.store.Get(ctx, KeyUser)
	require.NoError(t, err)
	var stored User
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "user@example.com", stored.Email)

	assert.Equal(t, "7", h.ident.UserID())
	h.callProtected(t)
	assert.Equal(t, "Token tok-1", h.backend.lastAuthHeader())
}

func TestLoginErrors(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		wantMsg    string
		wantStatus int
	}{
		{"detail field", "user@example.com", "wrong", "Invalid credentials", http.StatusBadRequest},
		{"error field", "err@example.com", "x", "Account locked", http.StatusForbidden},
		{"no message field", "bare@example.com", "x", MessageGeneric, http.StatusInternalServerError},
		{"invalid success body", "bad@example.com", "x", MessageInvalidResponse, 0},
		{"missing password", "user@example.com", "", "password is required", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)

			sess, err := h.manager.Login(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.Nil(t, sess)

			var aerr *AuthError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Equal(t, OpLogin, aerr.Op)
			assert.Equal(t, tt.wantStatus, aerr.StatusCode)

			assert.Equal(t, Unauthenticated, h.manager.State())
			assert.Empty(t, h.ident.Token())
			_, err = h.store.Get(context.Background(), KeyToken)
			assert.ErrorIs(t, err, session.ErrKeyNotFound)
		})
	}
}

func TestLoginFailureKeepsPreviousSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.manager.Login(ctx, "user@example.com", "secret")
	require.NoError(t, err)

	_, err = h.manager.Login(ctx, "user@example.com", "wrong")
	require.Error(t, err)

	cur, ok := h.manager.Current()
	require.True(t, ok)
	assert.Equal(t, "tok-1", cur.Token)
	assert.Equal(t, "tok-1", h.ident.Token())
}

func TestLoginUnreachable(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Close()

	_, err := h.manager.Login(context.Background(), "user@example.com", "secret")
	require.Error(t, err)
	assert.Equal(t, MessageUnreachable, err.Error())
	assert.ErrorIs(t, err, apiclient.ErrUnreachable)
}

func TestLoginStoreWriteFailure(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryBackend()
	store := &failingStore{Store: mem, failSetKey: KeyUser}
	h := newHarness(t, store)

	_, err := h.manager.Login(ctx, "user@example.com", "secret")
	require.Error(t, err)
	assert.Equal(t, MessageStorageFailure, err.Error())

	assert.False(t, h.manager.IsAuthenticated())
	assert.Empty(t, h.ident.Token())

	// the token written before the failure is rolled back
	_, err = mem.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, session.ErrKeyNotFound)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryBackend()
	require.NoError(t, store.Set(ctx, KeyToken, "saved-token"))
	require.NoError(t, store.Set(ctx, KeyUser, `{"id":42,"username":"amy","email":"amy@example.com"}`))

	h := newHarness(t, store)
	h.manager.Restore(ctx)

	assert.Equal(t, Authenticated, h.manager.State())
	cur, ok := h.manager.Current()
	require.True(t, ok)
	assert.Equal(t, UserID("42"), cur.User.ID)

	h.callProtected(t)
	assert.Equal(t, "Token saved-token", h.backend.lastAuthHeader())
}

func TestRestoreClearsInvalidState(t *testing.T) {
	tests := []struct {
		name  string
		token string
		user  string
	}{
		{"corrupted user record", "saved-token", `{"id":`},
		{"user without id", "saved-token", `{"username":"amy"}`},
		{"missing user", "saved-token", ""},
		{"missing token", "", `{"id":1}`},
		{"empty token", "\x00", `{"id":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := session.NewMemoryBackend()
			if tt.token == "\x00" {
				require.NoError(t, store.Set(ctx, KeyToken, ""))
			} else if tt.token != "" {
				require.NoError(t, store.Set(ctx, KeyToken, tt.token))
			}
			if tt.user != "" {
				require.NoError(t, store.Set(ctx, KeyUser, tt.user))
			}

			h := newHarness(t, store)
			h.manager.Restore(ctx)

			assert.Equal(t, Unauthenticated, h.manager.State())
			_, err := store.Get(ctx, KeyToken)
			assert.ErrorIs(t, err, session.ErrKeyNotFound)
			_, err = store.Get(ctx, KeyUser)
			assert.ErrorIs(t, err, session.ErrKeyNotFound)

			h.callProtected(t)
			assert.Equal(t, "", h.backend.lastAuthHeader())
		})
	}

	t.Run("unreadable store keeps saved session", func(t *testing.T) {
		ctx := context.Background()
		mem := session.NewMemoryBackend()
		require.NoError(t, mem.Set(ctx, KeyToken, "saved-token"))
		require.NoError(t, mem.Set(ctx, KeyUser, `{"id":42}`))

		store := &failingStore{Store: mem, failGet: true}
		h := newHarness(t, store)
		h.manager.Restore(ctx)

		assert.Equal(t, Unauthenticated, h.manager.State())
		token, err := mem.Get(ctx, KeyToken)
		require.NoError(t, err)
		assert.Equal(t, "saved-token", token)
		_, err = mem.Get(ctx, KeyUser)
		require.NoError(t, err)

		h.callProtected(t)
		assert.Equal(t, "", h.backend.lastAuthHeader())

		store.failGet = false
		h.manager.Restore(ctx)
		assert.Equal(t, Authenticated, h.manager.State())
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.manager.Login(ctx, "user@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, h.manager.Logout(ctx))
	assert.Equal(t, Unauthenticated, h.manager.State())

	h.callProtected(t)
	assert.Equal(t, "", h.backend.lastAuthHeader())

	_, err = h.store.Get(ctx, KeyToken)
	assert.ErrorIs(t, err, session.ErrKeyNotFound)
	_, err = h.store.Get(ctx, KeyUser)
	assert.ErrorIs(t, err, session.ErrKeyNotFound)

	// idempotent
	require.NoError(t, h.manager.Logout(ctx))
}

func TestLogoutStoreFailureStillClearsMemory(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: session.NewMemoryBackend()}
	h := newHarness(t, store)

	_, err := h.manager.Login(ctx, "user@example.com", "secret")
	require.NoError(t, err)

	store.failDelete = true
	err = h.manager.Logout(ctx)
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, MessageLogoutIncomplete, err.Error())

	assert.False(t, h.manager.IsAuthenticated())
	assert.Empty(t, h.ident.AuthorizationHeader())
}

func TestOneTimeCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	require.NoError(t, h.manager.SendOneTimeCode(ctx, "+15550100"))
	assert.Equal(t, Unauthenticated, h.manager.State())
	assert.Equal(t, []string{"+15550100"}, h.backend.sentCodes())

	_, err := h.manager.VerifyOneTimeCode(ctx, "+15550100", "999999")
	require.Error(t, err)
	assert.Equal(t, "Code expired", err.Error())
	assert.Equal(t, Unauthenticated, h.manager.State())

	sess, err := h.manager.VerifyOneTimeCode(ctx, "+15550100", "123456")
	require.NoError(t, err)
	assert.Equal(t, "tok-otp", sess.Token)
	assert.Equal(t, "+15550100", sess.User.Phone)
	assert.Equal(t, "tok-otp", h.ident.Token())

	err = h.manager.SendOneTimeCode(ctx, "+15550100")
	require.Error(t, err)
	assert.Equal(t, MessageAlreadySignedIn, err.Error())
	assert.Len(t, h.backend.sentCodes(), 1)
}

func TestSendOneTimeCodeErrors(t *testing.T) {
	h := newHarness(t, nil)

	err := h.manager.SendOneTimeCode(context.Background(), "000")
	require.Error(t, err)
	assert.Equal(t, "Invalid phone number", err.Error())

	err = h.manager.SendOneTimeCode(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, "phone is required", err.Error())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	sess, err := h.manager.Register(ctx, RegisterRequest{
		Username: "newbie",
		Email:    "newbie@example.com",
		Password: "pw",
		Phone:    "+15550101",
	})
	require.NoError(t, err)
	assert.Equal(t, UserID("u-9"), sess.User.ID)
	assert.Equal(t, "Token tok-reg", h.ident.AuthorizationHeader())

	require.NoError(t, h.manager.Logout(ctx))

	_, err = h.manager.Register(ctx, RegisterRequest{Username: "taken", Email: "t@example.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, "Username already exists", err.Error())

	_, err = h.manager.Register(ctx, RegisterRequest{Username: "x", Email: "not-an-email", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, "email must be a valid email address", err.Error())
}

func TestUserIDUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    UserID
		wantErr bool
	}{
		{`{"id":12}`, "12", false},
		{`{"id":"abc"}`, "abc", false},
		{`{"id":null}`, "", false},
		{`{"id":true}`, "", true},
		{`{"id":[1]}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var u User
			err := json.Unmarshal([]byte(tt.in), &u)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.ID)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "a", errorMessage([]byte(`{"detail":"a","error":"b"}`)))
	assert.Equal(t, "b", errorMessage([]byte(`{"detail":"","error":"b"}`)))
	assert.Equal(t, MessageGeneric, errorMessage([]byte(`{"detail":["list"]}`)))
	assert.Equal(t, MessageGeneric, errorMessage([]byte(`<html>`)))
}
