package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJWTService() *JWTService {
	return NewJWTService(
		"test-secret-key-for-testing-purposes",
		15*time.Minute,
		7*24*time.Hour,
	)
}

func TestJWTService_AccessTokenRoundTrip(t *testing.T) {
	service := newTestJWTService()

	token, expiresAt, err := service.GenerateAccessToken("user-456", "test@example.com", RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := service.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, "user-456", claims.UserID)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "user-456", claims.Subject)
}

func TestJWTService_ValidateAccessToken_Expired(t *testing.T) {
	service := NewJWTService("test-secret", 1*time.Millisecond, 7*24*time.Hour)

	token, _, err := service.GenerateAccessToken("user-123", "test@example.com", RoleCustomer)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	claims, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateAccessToken_WrongSignature(t *testing.T) {
	service1 := NewJWTService("secret-key-1", 15*time.Minute, 7*24*time.Hour)
	service2 := NewJWTService("secret-key-2", 15*time.Minute, 7*24*time.Hour)

	token, _, err := service1.GenerateAccessToken("user-123", "test@example.com", RoleCustomer)
	require.NoError(t, err)

	claims, err := service2.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_WrongAlgorithm(t *testing.T) {
	service := newTestJWTService()

	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		UserID: "user-123",
		Email:  "test@example.com",
		Role:   RoleCustomer,
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_RefreshTokenRoundTrip(t *testing.T) {
	service := newTestJWTService()

	token, _, err := service.GenerateRefreshToken("user-refresh-test")
	require.NoError(t, err)

	userID, err := service.ValidateRefreshToken(token)

	require.NoError(t, err)
	assert.Equal(t, "user-refresh-test", userID)
}

func TestJWTService_ValidateRefreshToken_Expired(t *testing.T) {
	service := NewJWTService("test-secret", 15*time.Minute, 1*time.Millisecond)

	token, _, err := service.GenerateRefreshToken("user-123")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	userID, err := service.ValidateRefreshToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Empty(t, userID)
}
