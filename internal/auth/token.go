// Package auth resolves bearer tokens to identities.
package auth

import (
	"errors"
	"fmt"
	"time"

	"bidding-live/internal/biddingerrors"
	model "bidding-live/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload. Subject carries the user ID.
type Claims struct {
	Name string     `json:"name"`
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 tokens
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner creates a Signer. The secret must not be empty.
func NewSigner(secret, issuer string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// IssueToken mints a token for id that expires after ttl
func (s *Signer) IssueToken(id model.Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" || !id.Role.Valid() {
		return "", fmt.Errorf("auth: cannot issue token for user %q with role %q", id.UserID, id.Role)
	}
	now := s.now()
	claims := &Claims{
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns the identity it carries. Every failure wraps
// biddingerrors.ErrMissingIdentity.
func (s *Signer) ParseToken(tokenString string) (model.Identity, error) {
	if tokenString == "" {
		return model.Identity{}, fmt.Errorf("auth: %w - empty token", biddingerrors.ErrMissingIdentity)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return model.Identity{}, fmt.Errorf("auth: %w - %v", biddingerrors.ErrMissingIdentity, err)
	}
	if !token.Valid {
		return model.Identity{}, fmt.Errorf("auth: %w - invalid token", biddingerrors.ErrMissingIdentity)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return model.Identity{}, fmt.Errorf("auth: %w - token lacks subject or role", biddingerrors.ErrMissingIdentity)
	}

	return model.Identity{UserID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}
