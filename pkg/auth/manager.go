// Package auth manages the session and authentication lifecycle: restoring a
// saved identity at startup, exchanging credentials or one-time codes for a
// token, and logging out. Every transition writes through to the durable
// session store and installs or removes the authorization header on the
// shared identity.SessionContext.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixgo-dev/travelintel/internal/apiclient"
	"github.com/aixgo-dev/travelintel/internal/observability"
	"github.com/aixgo-dev/travelintel/pkg/identity"
	metrics "github.com/aixgo-dev/travelintel/pkg/observability"
	"github.com/aixgo-dev/travelintel/pkg/session"
)

// Endpoint paths relative to the API base URL.
const (
	PathLogin      = "/auth/login/"
	PathRegister   = "/auth/register/"
	PathSendCode   = "/auth/otp/send/"
	PathVerifyCode = "/auth/otp/verify/"
)

// Operation names used in errors, metrics and spans.
const (
	OpRestore    = "restore"
	OpLogin      = "login"
	OpSendCode   = "send_code"
	OpVerifyCode = "verify_code"
	OpRegister   = "register"
	OpLogout     = "logout"
)

// Manager owns the current AuthSession. It is safe for concurrent use.
type Manager struct {
	api      *apiclient.Client
	store    session.Store
	ident    *identity.SessionContext
	logger   *slog.Logger
	validate *validator.Validate

	mu      sync.RWMutex
	current *AuthSession
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates an unauthenticated manager. Call Restore before any
// authenticated work.
func NewManager(api *apiclient.Client, store session.Store, ident *identity.SessionContext, opts ...Option) *Manager {
	m := &Manager{
		api:      api,
		store:    store,
		ident:    ident,
		logger:   slog.Default(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = metrics.ForChannel(m.logger, metrics.ChannelAuth)
	return m
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errStoreUnavailable marks a failure to read the store, as opposed to an
// entry that is absent or unparsable.
var errStoreUnavailable = errors.New("session store unavailable")

// Restore loads the saved token and user. If either is missing or unreadable
// both keys are removed and the manager stays unauthenticated. When the store
// itself cannot be read the saved keys are left alone for the next run.
func (m *Manager) Restore(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "auth.restore")
	defer span.End()

	sess, err := m.load(ctx)
	if errors.Is(err, errStoreUnavailable) {
		m.logger.Warn("saved session unavailable, continuing signed out", "error", err)
		m.mu.Lock()
		m.current = nil
		m.ident.Clear()
		m.mu.Unlock()
		metrics.RecordAuthOperation(OpRestore, metrics.StatusError)
		return
	}
	if err != nil {
		if !errors.Is(err, session.ErrKeyNotFound) {
			m.logger.Warn("discarding saved session", "error", err)
		}
		if derr := m.store.Delete(ctx, KeyToken, KeyUser); derr != nil {
			m.logger.Error("failed to clear saved session", "error", derr)
		}
		m.mu.Lock()
		m.current = nil
		m.ident.Clear()
		m.mu.Unlock()
		metrics.RecordAuthOperation(OpRestore, "empty")
		return
	}

	m.mu.Lock()
	m.current = sess
	m.ident.Install(sess.Token, sess.User.ID.String())
	m.mu.Unlock()

	m.logger.Info("restored session", "user_id", sess.User.ID)
	metrics.RecordAuthOperation(OpRestore, metrics.StatusSuccess)
}

func (m *Manager) load(ctx context.Context) (*AuthSession, error) {
	token, err := m.get(ctx, KeyToken)
	if err != nil {
		return nil, err
	}
	raw, err := m.get(ctx, KeyUser)
	if err != nil {
		return nil, err
	}

	sess := &AuthSession{Token: token}
	if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
		return nil, err
	}
	if err := m.validate.Struct(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) get(ctx context.Context, key string) (string, error) {
	v, err := m.store.Get(ctx, key)
	if err != nil && !errors.Is(err, session.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: read %s: %w", errStoreUnavailable, key, err)
	}
	return v, err
}

// Login exchanges an email and password for a token.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (*AuthSession, error) {
	return m.authenticate(ctx, OpLogin, PathLogin, &loginRequest{Email: identifier, Password: secret})
}

// VerifyOneTimeCode exchanges a previously issued code for a token.
func (m *Manager) VerifyOneTimeCode(ctx context.Context, phone, code string) (*AuthSession, error) {
	return m.authenticate(ctx, OpVerifyCode, PathVerifyCode, &verifyCodeRequest{Phone: phone, Code: code})
}

// Register creates an account and signs it in.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) (*AuthSession, error) {
	return m.authenticate(ctx, OpRegister, PathRegister, &req)
}

// SendOneTimeCode asks the backend to deliver a code to phone. It does not
// change state and is only allowed while unauthenticated.
func (m *Manager) SendOneTimeCode(ctx context.Context, phone string) error {
	ctx, span := observability.StartSpan(ctx, "auth."+OpSendCode)

	if m.IsAuthenticated() {
		err := &AuthError{Op: OpSendCode, Message: MessageAlreadySignedIn}
		m.finish(span, OpSendCode, err)
		return err
	}

	req := &sendCodeRequest{Phone: strings.TrimSpace(phone)}
	if err := m.validate.Struct(req); err != nil {
		aerr := &AuthError{Op: OpSendCode, Message: validationMessage(err), Err: err}
		m.finish(span, OpSendCode, aerr)
		return aerr
	}

	if _, err := m.api.Do(ctx, http.MethodPost, PathSendCode, req, nil); err != nil {
		aerr := requestError(OpSendCode, err)
		m.finish(span, OpSendCode, aerr)
		return aerr
	}

	m.finish(span, OpSendCode, nil)
	return nil
}

// Logout removes the saved session, clears memory and the authorization
// header. It is idempotent. A store failure is returned, but the in-memory
// state and header are cleared regardless.
func (m *Manager) Logout(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "auth."+OpLogout)

	m.mu.Lock()
	err := m.store.Delete(ctx, KeyToken, KeyUser)
	m.current = nil
	m.ident.Clear()
	m.mu.Unlock()

	if err != nil {
		aerr := &AuthError{Op: OpLogout, Message: MessageLogoutIncomplete, Err: err}
		m.finish(span, OpLogout, aerr)
		return aerr
	}
	m.finish(span, OpLogout, nil)
	return nil
}

// Current returns a copy of the installed session.
func (m *Manager) Current() (*AuthSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, false
	}
	cp := *m.current
	return &cp, true
}

// State returns the state machine position.
func (m *Manager) State() State {
	if m.IsAuthenticated() {
		return Authenticated
	}
	return Unauthenticated
}

// IsAuthenticated reports whether a session is installed.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// authenticate runs one credential exchange and, on success, installs the
// returned session.
func (m *Manager) authenticate(ctx context.Context, op, path string, body any) (*AuthSession, error) {
	ctx, span := observability.StartSpan(ctx, "auth."+op, attribute.String("auth.path", path))

	if err := m.validate.Struct(body); err != nil {
		aerr := &AuthError{Op: op, Message: validationMessage(err), Err: err}
		m.finish(span, op, aerr)
		return nil, aerr
	}

	var resp AuthSession
	if _, err := m.api.Do(ctx, http.MethodPost, path, body, &resp); err != nil {
		aerr := requestError(op, err)
		m.finish(span, op, aerr)
		return nil, aerr
	}
	if err := m.validate.Struct(&resp); err != nil {
		aerr := &AuthError{Op: op, Message: MessageInvalidResponse, Err: err}
		m.finish(span, op, aerr)
		return nil, aerr
	}

	if err := m.install(ctx, &resp); err != nil {
		aerr := &AuthError{Op: op, Message: MessageStorageFailure, Err: err}
		m.finish(span, op, aerr)
		return nil, aerr
	}

	m.logger.Info("signed in", "op", op, "user_id", resp.User.ID)
	m.finish(span, op, nil)
	cp := resp
	return &cp, nil
}

// install writes sess through to the store, then to memory and the header.
// On a store failure the previous store contents are put back and memory is
// left untouched.
func (m *Manager) install(ctx context.Context, sess *AuthSession) error {
	userJSON, err := json.Marshal(sess.User)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persist(ctx, sess.Token, string(userJSON)); err != nil {
		m.rollback(ctx)
		return err
	}

	m.current = sess
	m.ident.Install(sess.Token, sess.User.ID.String())
	return nil
}

func (m *Manager) persist(ctx context.Context, token, user string) error {
	if err := m.store.Set(ctx, KeyToken, token); err != nil {
		return err
	}
	return m.store.Set(ctx, KeyUser, user)
}

// rollback restores the store to match memory. Caller holds m.mu.
func (m *Manager) rollback(ctx context.Context) {
	var err error
	if m.current == nil {
		err = m.store.Delete(ctx, KeyToken, KeyUser)
	} else {
		var userJSON []byte
		if userJSON, err = json.Marshal(m.current.User); err == nil {
			err = m.persist(ctx, m.current.Token, string(userJSON))
		}
	}
	if err != nil {
		m.logger.Error("failed to roll back saved session", "error", err)
	}
}

func (m *Manager) finish(span trace.Span, op string, err error) {
	if err != nil {
		m.logger.Warn("auth operation failed", "op", op, "error", err.Error())
		metrics.RecordAuthOperation(op, metrics.StatusError)
	} else {
		metrics.RecordAuthOperation(op, metrics.StatusSuccess)
	}
	observability.EndSpan(span, err)
}

// requestError maps a transport or status failure to an AuthError.
func requestError(op string, err error) *AuthError {
	if se, ok := apiclient.AsStatusError(err); ok {
		return &AuthError{Op: op, Message: errorMessage(se.Body), StatusCode: se.StatusCode, Err: err}
	}
	if errors.Is(err, apiclient.ErrUnreachable) {
		return &AuthError{Op: op, Message: MessageUnreachable, Err: err}
	}
	return &AuthError{Op: op, Message: MessageInvalidResponse, Err: err}
}
