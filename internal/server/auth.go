package server

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sirius-ashwak/curalink/internal/event"
)

// TokenVerifier checks the optional signed token carried by the handshake
// claim. The token is an HS256 JWT minted by the CRUD layer at login; its
// subject must match the claimed user id, so a client cannot register under
// somebody else's identity.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for the given shared secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify validates claim.Token and its subject binding.
func (v *TokenVerifier) Verify(claim event.Claim) error {
	if claim.Token == "" {
		return fmt.Errorf("missing token")
	}

	token, err := jwt.Parse(claim.Token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return fmt.Errorf("token has no subject: %w", err)
	}
	if subject != claim.UserID {
		return fmt.Errorf("token subject %q does not match claimed user %q", subject, claim.UserID)
	}
	return nil
}
