package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Identity is the resolved user behind a verified token.
type Identity struct {
	UserID   int
	Username string
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens issued by the auth service. This service
// never checks credentials itself; it only verifies the signed identity.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the identity it carries.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	parsed, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	userID, err := strconv.Atoi(parsed.Subject)
	if err != nil || userID <= 0 || parsed.Username == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: userID, Username: parsed.Username}, nil
}

// Sign mints a token for an identity. Used by tests and tooling; the auth
// service owns token issuance in production.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: identity.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(identity.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(v.secret)
}
