package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
)

// ErrInvalidCredential is returned for malformed, expired or unknown-user tokens.
var ErrInvalidCredential = errors.New("invalid credential")

// UserLookup resolves a user id to an existing account.
type UserLookup interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
}

// Claims is the token payload issued to chat users.
type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

// JWTVerifier validates HS256 bearer tokens. It keeps no per-call state.
type JWTVerifier struct {
	secret []byte
	users  UserLookup
	parser *jwt.Parser
}

// NewJWTVerifier constructs a verifier. users may be nil to skip the existence check.
func NewJWTVerifier(secret string, users UserLookup) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		users:  users,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses the token and returns the authenticated user id.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (int, error) {
	if token == "" || len(v.secret) == 0 {
		return 0, ErrInvalidCredential
	}

	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.UserID <= 0 {
		return 0, ErrInvalidCredential
	}

	if v.users != nil {
		if _, err := v.users.GetUser(ctx, claims.UserID); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return 0, fmt.Errorf("%w: user %d not found", ErrInvalidCredential, claims.UserID)
			}
			return 0, fmt.Errorf("%w: lookup user: %v", ErrInvalidCredential, err)
		}
	}
	return claims.UserID, nil
}

// Issue signs a token for userID valid for ttl.
func (v *JWTVerifier) Issue(userID int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
