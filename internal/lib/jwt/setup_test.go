package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

var setupStart = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func testUser(id, hash string) *models.User {
	return &models.User{ID: id, Email: id + "@example.com", PasswordHash: hash}
}

func TestSetupTokenIssuer_Verify(t *testing.T) {
	issuer := NewSetupTokenIssuer("setup-secret", time.Hour, nil)
	user := testUser("u-1", "")

	token, err := issuer.Issue(user)
	require.NoError(t, err)

	assert.True(t, issuer.Verify(user, token))
	assert.False(t, issuer.Verify(testUser("u-2", ""), token), "token bound to another user")
	assert.False(t, issuer.Verify(user, ""), "empty token")
	assert.False(t, issuer.Verify(nil, token), "nil user")
	assert.False(t, NewSetupTokenIssuer("other", time.Hour, nil).Verify(user, token), "other secret")
}

func TestSetupTokenIssuer_InvalidatedByPasswordChange(t *testing.T) {
	issuer := NewSetupTokenIssuer("setup-secret", time.Hour, nil)
	user := testUser("u-1", "")

	token, err := issuer.Issue(user)
	require.NoError(t, err)

	user.PasswordHash = "$2a$10$newhash"
	assert.False(t, issuer.Verify(user, token))
}

func TestSetupTokenIssuer_InvalidatedByLogin(t *testing.T) {
	clk := clock.NewManual(setupStart)
	issuer := NewSetupTokenIssuer("setup-secret", time.Hour, clk)
	user := testUser("u-1", "$2a$10$hash")
	before := setupStart.Add(-24 * time.Hour)
	user.LastLoginAt = &before

	token, err := issuer.Issue(user)
	require.NoError(t, err)
	require.True(t, issuer.Verify(user, token))

	clk.Advance(time.Minute)
	loggedIn := clk.Now()
	user.LastLoginAt = &loggedIn
	assert.False(t, issuer.Verify(user, token))

	user.LastLoginAt = nil
	assert.False(t, issuer.Verify(user, token), "last login cleared")
}

func TestSetupTokenIssuer_Expired(t *testing.T) {
	clk := clock.NewManual(setupStart)
	issuer := NewSetupTokenIssuer("setup-secret", time.Hour, clk)

	token, err := issuer.Issue(testUser("u-1", ""))
	require.NoError(t, err)

	clk.Advance(59 * time.Minute)
	assert.True(t, issuer.Verify(testUser("u-1", ""), token))

	clk.Advance(time.Hour)
	assert.False(t, issuer.Verify(testUser("u-1", ""), token))
}

func TestSetupTokenIssuer_DistinctTokensPerIssue(t *testing.T) {
	clk := clock.NewManual(setupStart)
	issuer := NewSetupTokenIssuer("setup-secret", time.Hour, clk)
	first, err := issuer.Issue(testUser("u-1", ""))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	second, err := issuer.Issue(testUser("u-1", ""))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
