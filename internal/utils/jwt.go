// Package utils provides helpers for token issuing and password hashing.
package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the only error Verify returns for a rejected token.
// Expired, tampered, wrongly signed and malformed tokens are deliberately
// indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the payload of an access token. Subject holds the user
// ID as a decimal string; Roles are the role names held at issuance time.
type AccessClaims struct {
	Login string   `json:"login"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a numeric user ID.
func (c *AccessClaims) UserID() (uint64, error) {
	return strconv.ParseUint(c.Subject, 10, 64)
}

// AccessToken represents a signed access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// TokenIssuer signs and verifies access tokens with a symmetric secret.
type TokenIssuer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer for the given HMAC algorithm name
// (HS256, HS384 or HS512). Other algorithm families are refused.
func NewTokenIssuer(secret, alg string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt: empty signing secret")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwt: non-positive access ttl %s", ttl)
	}
	m, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("jwt: unsupported signing algorithm %q", alg)
	}
	return &TokenIssuer{secret: []byte(secret), method: m, ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured access token lifetime.
func (i *TokenIssuer) TTL() time.Duration { return i.ttl }

// Issue builds and signs an access token for the user. The roles slice
// is copied into the claims as-is; later role changes do not affect a
// token that has already been issued.
func (i *TokenIssuer) Issue(userID uint64, login string, roles []string) (AccessToken, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	if roles == nil {
		roles = []string{}
	}
	claims := AccessClaims{
		Login: login,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// Verify checks the signature, the pinned algorithm and the expiry of
// raw and returns its claims.
func (i *TokenIssuer) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{i.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
