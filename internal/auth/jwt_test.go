package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-assembly/backend/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "chair@example.org", Role: models.RoleUser}
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "assembly", time.Hour)
	u := testUser()

	token, err := svc.Generate(u)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "chair@example.org", claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, u.ID.String(), claims.Subject)
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	token, err := NewJWTService("other", "assembly", time.Hour).Generate(testUser())
	require.NoError(t, err)

	_, err = NewJWTService("secret", "assembly", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsForeignIssuer(t *testing.T) {
	token, err := NewJWTService("secret", "elsewhere", time.Hour).Generate(testUser())
	require.NoError(t, err)

	_, err = NewJWTService("secret", "assembly", time.Hour).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	svc := NewJWTService("secret", "assembly", time.Hour)
	issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	token, err := svc.Generate(testUser())
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestJWTRejectsGarbage(t *testing.T) {
	_, err := NewJWTService("secret", "assembly", time.Hour).Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
