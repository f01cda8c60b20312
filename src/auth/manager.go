// Package auth emulates the credential and session lifecycle of a hosted
// backend: sign-up/sign-in, session expiry and refresh, OAuth handshakes and
// auth-state listeners. Passwords are stored in clear text — this is a
// non-production test double and the records never leave the emulator's own
// key-value store.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forgeapps/localbase/src/config"
	"github.com/forgeapps/localbase/src/models"
	"github.com/forgeapps/localbase/src/netsim"
)

const (
	sessionDoc = "session"
	usersDoc   = "users"
)

type Manager struct {
	mu sync.Mutex

	kv     models.DocStore
	cfg    *config.AuthConfig
	delay  *netsim.Delay
	logger zerolog.Logger
	now    func() time.Time

	users     map[string]*models.Credential // keyed by email
	userOrder []string

	session      *models.Session
	pendingOAuth *models.PendingOAuth

	listeners map[string]Listener
	failures  map[string]error

	refreshStop chan struct{}
}

// Listener observes auth state transitions. The session argument is nil for
// SIGNED_OUT.
type Listener func(event models.AuthEvent, session *models.Session)

// Result bundles the user and the session issued for it, mirroring the wire
// shape of the hosted auth endpoint.
type Result struct {
	User    *models.User
	Session *models.Session
}

type Option func(*Manager)

// WithNow injects the clock, primarily so tests can drive session expiry.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(cfg *config.AuthConfig, store models.DocStore, delay *netsim.Delay, logger zerolog.Logger, options ...Option) *Manager {
	m := &Manager{
		kv:        store,
		cfg:       cfg,
		delay:     delay,
		logger:    logger.With().Str("component", "auth").Logger(),
		now:       time.Now,
		users:     make(map[string]*models.Credential),
		listeners: make(map[string]Listener),
		failures:  make(map[string]error),
	}

	for _, opt := range options {
		opt(m)
	}

	m.restore(context.Background())
	return m
}

// restore loads users and the current session from the key-value store.
// Missing or corrupt documents mean a cold start.
func (m *Manager) restore(ctx context.Context) {
	var pairs [][2]jsonRaw
	if ok, _ := m.kv.GetJSON(ctx, usersDoc, &pairs); ok {
		m.loadUserPairs(pairs)
	}

	var session models.Session
	if ok, _ := m.kv.GetJSON(ctx, sessionDoc, &session); ok && session.User != nil {
		m.session = &session
	}
}

func (m *Manager) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Result, error) {
	if err := m.checkFailure("signUp"); err != nil {
		return nil, err
	}
	m.delay.Wait(ctx)

	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrPasswordTooShort
	}

	m.mu.Lock()
	if _, exists := m.users[email]; exists {
		m.mu.Unlock()
		return nil, ErrUserExists
	}

	userMeta := map[string]any{"full_name": displayName(email)}
	for k, v := range metadata {
		userMeta[k] = v
	}

	user := &models.User{
		ID:           "user_" + uuid.New().String(),
		Email:        email,
		CreatedAt:    m.now(),
		AppMetadata:  map[string]any{"provider": "email"},
		UserMetadata: userMeta,
	}

	m.users[email] = &models.Credential{Email: email, Password: password, User: user}
	m.userOrder = append(m.userOrder, email)
	m.persistUsers(ctx)

	session, err := m.issueSession(user)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.session = session
	m.persistSession(ctx)
	m.mu.Unlock()

	m.emit(models.SignedIn, session)
	return &Result{User: user, Session: session}, nil
}

func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) (*Result, error) {
	if err := m.checkFailure("signInWithPassword"); err != nil {
		return nil, err
	}
	m.delay.Wait(ctx)

	m.mu.Lock()
	cred, ok := m.users[email]
	if !ok || cred.Password != password {
		m.mu.Unlock()
		return nil, ErrInvalidCredentials
	}

	session, err := m.issueSession(cred.User)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.session = session
	m.persistSession(ctx)
	m.mu.Unlock()

	m.emit(models.SignedIn, session)
	return &Result{User: cred.User, Session: session}, nil
}

// SignOut clears the current session. It never fails: persistence problems
// are logged and the in-memory state is dropped regardless.
func (m *Manager) SignOut(ctx context.Context) {
	m.delay.Wait(ctx)

	m.mu.Lock()
	m.session = nil
	if err := m.kv.Delete(ctx, sessionDoc); err != nil {
		m.logger.Warn().Err(err).Msg("failed to remove persisted session")
	}
	m.mu.Unlock()

	m.emit(models.SignedOut, nil)
}

// GetSession returns the current session, or nil when signed out. Observing
// an expired session transitions to signed-out as a side effect before
// returning.
func (m *Manager) GetSession(ctx context.Context) *models.Session {
	m.mu.Lock()
	session := m.session
	if session == nil {
		m.mu.Unlock()
		return nil
	}
	if !session.Valid(m.now()) {
		m.session = nil
		if err := m.kv.Delete(ctx, sessionDoc); err != nil {
			m.logger.Warn().Err(err).Msg("failed to remove expired session")
		}
		m.mu.Unlock()
		m.emit(models.SignedOut, nil)
		return nil
	}
	m.mu.Unlock()
	return session
}

func (m *Manager) GetUser(ctx context.Context) *models.User {
	session := m.GetSession(ctx)
	if session == nil {
		return nil
	}
	return session.User
}

// ResetPasswordForEmail always reports success so the emulator gives no
// signal about which emails are registered.
func (m *Manager) ResetPasswordForEmail(ctx context.Context, email string) error {
	if err := m.checkFailure("resetPasswordForEmail"); err != nil {
		return err
	}
	m.delay.Wait(ctx)
	m.logger.Debug().Str("email", email).Msg("password reset requested")
	return nil
}

// UserAttributes carries the mutable fields of UpdateUser. Nil pointers mean
// "leave unchanged"; Data is merged into the user metadata key by key.
type UserAttributes struct {
	Email    *string
	Password *string
	Data     map[string]any
}

func (m *Manager) UpdateUser(ctx context.Context, attrs UserAttributes) (*Result, error) {
	if err := m.checkFailure("updateUser"); err != nil {
		return nil, err
	}
	m.delay.Wait(ctx)

	m.mu.Lock()
	if m.session == nil || !m.session.Valid(m.now()) {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}

	user := m.session.User
	cred := m.users[user.Email]

	if attrs.Email != nil && *attrs.Email != user.Email {
		delete(m.users, user.Email)
		for i, email := range m.userOrder {
			if email == user.Email {
				m.userOrder[i] = *attrs.Email
				break
			}
		}
		user.Email = *attrs.Email
		if cred != nil {
			cred.Email = *attrs.Email
			m.users[*attrs.Email] = cred
		}
	}
	if attrs.Password != nil && cred != nil {
		cred.Password = *attrs.Password
	}
	if len(attrs.Data) > 0 {
		if user.UserMetadata == nil {
			user.UserMetadata = make(map[string]any)
		}
		for k, v := range attrs.Data {
			user.UserMetadata[k] = v
		}
	}
	m.persistUsers(ctx)

	session, err := m.issueSession(user)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.session = session
	m.persistSession(ctx)
	m.mu.Unlock()

	m.emit(models.UserUpdated, session)
	return &Result{User: user, Session: session}, nil
}

// OnAuthStateChange registers a listener and immediately invokes it with the
// current state, so subscribers always observe a consistent initial status
// rather than only future transitions. The returned function unsubscribes.
func (m *Manager) OnAuthStateChange(listener Listener) func() {
	id := uuid.New().String()

	m.mu.Lock()
	m.listeners[id] = listener
	session := m.session
	m.mu.Unlock()

	event := models.SignedOut
	if session.Valid(m.now()) {
		event = models.SignedIn
	} else {
		session = nil
	}
	m.invoke(listener, event, session)

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// StartAutoRefresh begins polling the session lifetime. When the remaining
// lifetime drops under the refresh threshold while still positive, a new
// session is issued and TOKEN_REFRESHED is emitted. Calling it twice is a
// no-op until StopAutoRefresh.
func (m *Manager) StartAutoRefresh() {
	m.mu.Lock()
	if m.refreshStop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.refreshStop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.maybeRefresh(context.Background())
			}
		}
	}()
}

func (m *Manager) StopAutoRefresh() {
	m.mu.Lock()
	if m.refreshStop != nil {
		close(m.refreshStop)
		m.refreshStop = nil
	}
	m.mu.Unlock()
}

func (m *Manager) maybeRefresh(ctx context.Context) {
	m.mu.Lock()
	session := m.session
	if session == nil {
		m.mu.Unlock()
		return
	}

	remaining := time.Unix(session.ExpiresAt, 0).Sub(m.now())
	if remaining <= 0 || remaining > m.cfg.RefreshThreshold {
		m.mu.Unlock()
		return
	}

	refreshed, err := m.issueSession(session.User)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("failed to refresh session")
		return
	}
	m.session = refreshed
	m.persistSession(ctx)
	m.mu.Unlock()

	m.emit(models.TokenRefreshed, refreshed)
}

// DeleteUser removes the credential identified by user id and clears the
// session if it belongs to that user. Row and object cleanup is coordinated
// by the facade's cascade.
func (m *Manager) DeleteUser(ctx context.Context, userID string) {
	m.mu.Lock()
	for email, cred := range m.users {
		if cred.User != nil && cred.User.ID == userID {
			delete(m.users, email)
			for i, e := range m.userOrder {
				if e == email {
					m.userOrder = append(m.userOrder[:i], m.userOrder[i+1:]...)
					break
				}
			}
			break
		}
	}
	m.persistUsers(ctx)

	signedOut := false
	if m.session != nil && m.session.User != nil && m.session.User.ID == userID {
		m.session = nil
		if err := m.kv.Delete(ctx, sessionDoc); err != nil {
			m.logger.Warn().Err(err).Msg("failed to remove session of deleted user")
		}
		signedOut = true
	}
	m.mu.Unlock()

	if signedOut {
		m.emit(models.SignedOut, nil)
	}
}

// CurrentSession returns the tracked session without validating expiry.
// Test helpers use it to inspect raw state.
func (m *Manager) CurrentSession() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Reset drops all in-memory auth state and listener registrations. Persisted
// documents are cleared by the facade alongside.
func (m *Manager) Reset() {
	m.StopAutoRefresh()

	m.mu.Lock()
	m.users = make(map[string]*models.Credential)
	m.userOrder = nil
	m.session = nil
	m.pendingOAuth = nil
	m.listeners = make(map[string]Listener)
	m.failures = make(map[string]error)
	m.mu.Unlock()
}

// SimulateError makes the named operation fail with err until cleared with a
// nil err.
func (m *Manager) SimulateError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, operation)
		return
	}
	m.failures[operation] = err
}

func (m *Manager) checkFailure(operation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[operation]
}

// emit delivers an auth event to every listener. Each callback runs guarded
// so one faulty subscriber cannot block delivery to the others.
func (m *Manager) emit(event models.AuthEvent, session *models.Session) {
	m.mu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		m.invoke(l, event, session)
	}
}

func (m *Manager) invoke(listener Listener, event models.AuthEvent, session *models.Session) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn().Interface("panic", r).Str("event", string(event)).Msg("auth listener panicked")
		}
	}()
	listener(event, session)
}

// displayName derives a best-effort human name from the email local-part:
// "jane.doe@x" becomes "Jane Doe".
func displayName(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}

	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) == 0 {
		return local
	}
	return strings.Join(words, " ")
}
