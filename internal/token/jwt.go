package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTIssuer signs and validates HMAC access tokens. The subject claim holds
// the local user id.
type JWTIssuer struct {
	secret secretProvider
	method jwt.SigningMethod
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

type JWTConfig struct {
	Secret secretProvider
	Issuer string
	TTL    time.Duration
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Type     Type   `json:"typ"`
	Provider string `json:"provider,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func NewJWTIssuer(cfg JWTConfig) *JWTIssuer {
	if cfg.Secret == nil || len(cfg.Secret.Get()) == 0 {
		panic("jwt secret is required")
	}

	return &JWTIssuer{
		secret: cfg.Secret,
		method: jwt.SigningMethodHS256,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Key returns the verification key, for middleware that only parses tokens.
func (ti *JWTIssuer) Key() []byte {
	return ti.secret.Get()
}

func (ti *JWTIssuer) Issue(claims UserClaims) (string, error) {
	now := ti.now()
	typ := claims.Type
	if typ == "" {
		typ = TypeAccess
	}

	tk, err := jwt.NewWithClaims(ti.method, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.UserID, 10),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
		Type:     typ,
		Provider: claims.Provider,
		Name:     claims.Name,
		Email:    claims.Email,
	}).SignedString(ti.secret.Get())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tk, nil
}

func (ti *JWTIssuer) Validate(raw string) (UserClaims, error) {
	var c jwtClaims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return ti.secret.Get(), nil
	},
		jwt.WithValidMethods([]string{ti.method.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return UserClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	uid, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return UserClaims{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}

	return UserClaims{
		Type:     c.Type,
		UserID:   uid,
		Provider: c.Provider,
		Name:     c.Name,
		Email:    c.Email,
	}, nil
}
