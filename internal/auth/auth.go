package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier validates bearer tokens issued by the auth service and
// extracts the authenticated user id.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type claims struct {
	UserID int `json:"user_id"`
	jwt.RegisteredClaims
}

// VerifyToken checks the signature and expiry and returns the user id.
func (v *Verifier) VerifyToken(token string) (int, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, ErrInvalidToken
	}
	if c.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return c.UserID, nil
}

// IssueToken signs a token for the user. Used by tests and local tooling;
// production tokens come from the auth service with the same secret.
func (v *Verifier) IssueToken(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{UserID: userID})
	return token.SignedString(v.secret)
}
