package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *JWTIssuer {
	return NewJWTIssuer(JWTConfig{
		Secret: NewSecretString("test_secret"),
		Issuer: "photoedit",
		TTL:    time.Hour,
	})
}

func TestJWTIssuer(t *testing.T) {
	issuer := newTestIssuer()

	tokenStr, err := issuer.Issue(UserClaims{
		UserID:   42,
		Provider: "facebook",
		Name:     "John doe",
		Email:    "johndoe@doe.com",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := issuer.Validate(tokenStr)
	require.NoError(t, err)

	assert.Equal(t, TypeAccess, claims.Type)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "facebook", claims.Provider)
	assert.Equal(t, "John doe", claims.Name)
	assert.Equal(t, "johndoe@doe.com", claims.Email)
}

func TestJWTIssuer_Expired(t *testing.T) {
	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tokenStr, err := issuer.Issue(UserClaims{UserID: 1})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Validate(tokenStr)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTIssuer_WrongSecret(t *testing.T) {
	tokenStr, err := newTestIssuer().Issue(UserClaims{UserID: 1})
	require.NoError(t, err)

	other := NewJWTIssuer(JWTConfig{
		Secret: NewSecretString("other_secret"),
		Issuer: "photoedit",
		TTL:    time.Hour,
	})
	_, err = other.Validate(tokenStr)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTIssuer_WrongAlgorithm(t *testing.T) {
	tk := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    "photoedit",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tk.SignedString([]byte("test_secret"))
	require.NoError(t, err)

	_, err = newTestIssuer().Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTIssuer_BadSubject(t *testing.T) {
	tk := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-123",
		Issuer:    "photoedit",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tk.SignedString([]byte("test_secret"))
	require.NoError(t, err)

	_, err = newTestIssuer().Validate(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTIssuer_EmptySecret(t *testing.T) {
	assert.Panics(t, func() {
		NewJWTIssuer(JWTConfig{Secret: NewSecretString("")})
	})
}

func TestSecretString(t *testing.T) {
	secret := NewSecretString("hello world")
	assert.Equal(t, []byte("hello world"), secret.Get())
}
