package auth

import (
	"context"
	"encoding/json"

	"github.com/forgeapps/localbase/src/models"
)

type jsonRaw = json.RawMessage

// persistUsers writes the user registry as an array of [email, credential]
// pairs, preserving registration order. Callers hold m.mu.
func (m *Manager) persistUsers(ctx context.Context) {
	pairs := make([][2]any, 0, len(m.userOrder))
	for _, email := range m.userOrder {
		cred, ok := m.users[email]
		if !ok {
			continue
		}
		pairs = append(pairs, [2]any{email, cred})
	}

	if err := m.kv.SetJSON(ctx, usersDoc, pairs); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist users")
	}
}

// persistSession writes the current session document. Callers hold m.mu.
func (m *Manager) persistSession(ctx context.Context) {
	if m.session == nil {
		if err := m.kv.Delete(ctx, sessionDoc); err != nil {
			m.logger.Warn().Err(err).Msg("failed to remove persisted session")
		}
		return
	}
	if err := m.kv.SetJSON(ctx, sessionDoc, m.session); err != nil {
		m.logger.Warn().Err(err).Msg("failed to persist session")
	}
}

func (m *Manager) loadUserPairs(pairs [][2]jsonRaw) {
	for _, pair := range pairs {
		var email string
		if err := json.Unmarshal(pair[0], &email); err != nil || email == "" {
			continue
		}
		var cred models.Credential
		if err := json.Unmarshal(pair[1], &cred); err != nil || cred.User == nil {
			continue
		}
		if _, exists := m.users[email]; !exists {
			m.userOrder = append(m.userOrder, email)
		}
		m.users[email] = &cred
	}
}
