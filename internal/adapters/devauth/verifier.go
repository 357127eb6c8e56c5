// Package devauth provides a trust-the-token verifier for local development.
package devauth

import (
	"context"
	"errors"
	"strings"

	"github.com/followscope/followscope/internal/core"
)

// Verifier implements core.TokenVerifier without any cryptographic checks.
// The bearer token itself is taken as the user id, optionally with an email
// after a colon ("uid:me@example.com"). Never wire this outside dev mode.
type Verifier struct{}

var _ core.TokenVerifier = Verifier{}

// NewVerifier constructs the dev verifier.
func NewVerifier() Verifier {
	return Verifier{}
}

// Verify accepts any non-empty token and echoes it back as the identity.
func (Verifier) Verify(_ context.Context, rawToken string) (core.Identity, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return core.Identity{}, errors.New("empty token")
	}

	userID, email, _ := strings.Cut(token, ":")
	if userID == "" {
		return core.Identity{}, errors.New("token has no user id")
	}

	return core.Identity{UserID: userID, Email: email}, nil
}
