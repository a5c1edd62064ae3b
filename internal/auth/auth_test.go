package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenCarriesClientScopes(t *testing.T) {
	service := NewService("unit-test-secret")
	service.RegisterAPICredentials(TestAPIKey, TestAPISecret)

	resp, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: TestAPISecret})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.Expiration, time.Minute)

	claims, err := service.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, TestAPIKey, claims.ClientID)
	assert.True(t, claims.HasScope(ScopeLedgerRead))
	assert.True(t, claims.HasScope(ScopeLedgerWrite))
	assert.True(t, claims.HasScope(ScopeReconcile))
}

func TestRegisterClientLimitsScopes(t *testing.T) {
	service := NewService("unit-test-secret")
	service.RegisterClient("reporting", "reporting-secret", ScopeLedgerRead)

	resp, err := service.GenerateToken(Credentials{APIKey: "reporting", APISecret: "reporting-secret"})
	require.NoError(t, err)

	claims, err := service.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.True(t, claims.HasScope(ScopeLedgerRead))
	assert.False(t, claims.HasScope(ScopeLedgerWrite))
	assert.False(t, claims.HasScope(ScopeReconcile))
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	service := NewService("unit-test-secret")
	service.RegisterAPICredentials(TestAPIKey, TestAPISecret)

	_, err := service.GenerateToken(Credentials{APIKey: TestAPIKey, APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.GenerateToken(Credentials{APIKey: "unknown", APISecret: TestAPISecret})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsForeignIssuer(t *testing.T) {
	service := NewService("unit-test-secret")

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "somewhere-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := foreign.SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.Error(t, err)
}
