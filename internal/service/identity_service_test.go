package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilahati-archive/archive-api/internal/models"
	appErrors "github.com/chilahati-archive/archive-api/pkg/errors"
)

func TestIdentityServiceRoundTrip(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "secret", Issuer: "chilahati-archive", Expiry: time.Hour})

	token, expires, err := svc.IssueToken("user-1", models.RoleSupervisor, "Rahim Uddin")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.IsStaff())
	assert.Equal(t, "Rahim Uddin", claims.FullName)
}

func TestIdentityServiceRejects(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "secret", Issuer: "chilahati-archive", Expiry: time.Hour})

	other := NewIdentityService(IdentityConfig{Secret: "other", Issuer: "chilahati-archive"})
	forged, _, err := other.IssueToken("user-1", models.RoleAdmin, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	expired := NewIdentityService(IdentityConfig{Secret: "secret", Issuer: "chilahati-archive", Expiry: time.Minute})
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.IssueToken("user-1", models.RoleAdmin, "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(stale)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UserID:           "user-2",
		Role:             "visitor",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "chilahati-archive"},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(badRole)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = svc.ValidateToken("not-a-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
