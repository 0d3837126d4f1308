package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jaaahooou/apka-inz/internal/domain"
)

// Every validation failure degrades to an anonymous principal at the gateway,
// but the kinds stay distinguishable so connection logs show what went wrong.
var (
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrExpiredCredential   = errors.New("expired credential")
	ErrMalformedCredential = errors.New("credential has no subject")
	ErrUnknownSubject      = errors.New("unknown subject")
)

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Validator decodes HS256 bearer tokens and resolves them to principals.
type Validator struct {
	secret []byte
	users  UserLookup
}

func NewValidator(secret string, users UserLookup) *Validator {
	return &Validator{secret: []byte(secret), users: users}
}

// Validate decodes the credential and looks up the subject. The returned user
// is the connection's principal.
func (v *Validator) Validate(ctx context.Context, token string) (*domain.User, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredCredential, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.UserID == 0 {
		return nil, ErrMalformedCredential
	}

	user, err := v.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrUnknownSubject, claims.UserID)
		}
		return nil, fmt.Errorf("look up subject %d: %w", claims.UserID, err)
	}
	return user, nil
}

// Sign issues a token for the given user id. Used by the login handler and by
// tests; the messaging core itself only validates.
func (v *Validator) Sign(userID int64, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(expiresAt)},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
