package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/forgeapps/localbase/src/models"
)

// issueSession mints a fresh session for user. The access token is a real
// HS256 JWT so application middleware that decodes tokens keeps working
// against the emulator; the refresh token is an opaque UUID.
func (m *Manager) issueSession(user *models.User) (*models.Session, error) {
	expiresAt := m.now().Add(m.cfg.SessionTTL)

	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"exp":   expiresAt.Unix(),
		"iat":   m.now().Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.TokenSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.Session{
		AccessToken:  token,
		RefreshToken: uuid.New().String(),
		ExpiresAt:    expiresAt.Unix(),
		User:         user,
	}, nil
}
