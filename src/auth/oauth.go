package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/forgeapps/localbase/src/models"
)

// OAuthOptions configures SignInWithOAuth. RedirectTo is echoed into the
// authorization URL; SkipBrowserRedirect suppresses the simulated user
// interaction, leaving the handshake for an explicit CompleteOAuth call.
type OAuthOptions struct {
	Provider            string
	RedirectTo          string
	SkipBrowserRedirect bool
}

// SignInWithOAuth starts a simulated OAuth round trip: it stores a one-slot
// state handshake and returns a synthetic authorization URL embedding the
// state. Unless SkipBrowserRedirect is set, the handshake auto-completes
// after the configured delay, standing in for the user approving the
// provider's consent screen.
func (m *Manager) SignInWithOAuth(ctx context.Context, opts OAuthOptions) (string, error) {
	if err := m.checkFailure("signInWithOAuth"); err != nil {
		return "", err
	}
	m.delay.Wait(ctx)

	if !m.supportedProvider(opts.Provider) {
		return "", fmt.Errorf("Unsupported OAuth provider: %s", opts.Provider)
	}

	state := uuid.New().String()

	m.mu.Lock()
	if m.pendingOAuth != nil {
		// One in-flight handshake only: a newer attempt replaces it.
		m.logger.Debug().Str("provider", m.pendingOAuth.Provider).Msg("replacing pending oauth handshake")
	}
	m.pendingOAuth = &models.PendingOAuth{
		Provider:   opts.Provider,
		State:      state,
		RedirectTo: opts.RedirectTo,
	}
	m.mu.Unlock()

	oauthConfig := &oauth2.Config{
		ClientID:    "localbase-emulator",
		RedirectURL: opts.RedirectTo,
		Scopes:      []string{"email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("https://auth.localbase.mock/%s/authorize", opts.Provider),
			TokenURL: fmt.Sprintf("https://auth.localbase.mock/%s/token", opts.Provider),
		},
	}
	url := oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)

	if !opts.SkipBrowserRedirect {
		delay := m.cfg.OAuthDelay
		time.AfterFunc(delay, func() {
			m.CompleteOAuth(context.Background(), state)
		})
	}

	return url, nil
}

// CompleteOAuth finishes the handshake identified by state, synthesizing a
// provider-specific identity and signing it in. Completions whose state does
// not match the pending handshake are dropped silently (logged only), the
// same way a real provider ignores a stale callback.
func (m *Manager) CompleteOAuth(ctx context.Context, state string) {
	m.mu.Lock()
	pending := m.pendingOAuth
	if pending == nil || pending.State != state {
		m.mu.Unlock()
		m.logger.Warn().Str("state", state).Msg("oauth completion with unknown state, ignoring")
		return
	}
	m.pendingOAuth = nil

	email := fmt.Sprintf("%s.user@example.com", pending.Provider)
	cred, ok := m.users[email]
	if !ok {
		user := &models.User{
			ID:        "user_" + uuid.New().String(),
			Email:     email,
			CreatedAt: m.now(),
			AppMetadata: map[string]any{
				"provider": pending.Provider,
			},
			UserMetadata: map[string]any{
				"full_name": displayName(email),
				"avatar_url": fmt.Sprintf("https://auth.localbase.mock/%s/avatar.png",
					pending.Provider),
			},
		}
		cred = &models.Credential{Email: email, Password: uuid.New().String(), User: user}
		m.users[email] = cred
		m.userOrder = append(m.userOrder, email)
		m.persistUsers(ctx)
	}

	session, err := m.issueSession(cred.User)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn().Err(err).Msg("failed to issue oauth session")
		return
	}
	m.session = session
	m.persistSession(ctx)
	m.mu.Unlock()

	m.emit(models.SignedIn, session)
}

// PendingHandshake exposes the current in-flight OAuth attempt for test
// helpers; nil when none is outstanding.
func (m *Manager) PendingHandshake() *models.PendingOAuth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingOAuth
}

func (m *Manager) supportedProvider(provider string) bool {
	for _, p := range m.cfg.Providers {
		if p == provider {
			return true
		}
	}
	return false
}
