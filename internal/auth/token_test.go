package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef-test"

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer(secret, time.Hour)
	require.NoError(t, err)

	tok, exp, err := iss.Issue("discord:42", "zoro", true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := iss.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "discord:42", claims.PlayerID())
	assert.Equal(t, "zoro", claims.Username)
	assert.True(t, claims.Admin)
}

func TestVerifyRejects(t *testing.T) {
	iss, err := NewIssuer(secret, time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("another-secret-of-length", time.Hour)
	require.NoError(t, err)

	tok, _, err := other.Issue("p1", "", false)
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = iss.Verify("")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	_, err = iss.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpired(t *testing.T) {
	iss, err := NewIssuer(secret, time.Minute)
	require.NoError(t, err)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := iss.Issue("p1", "", false)
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestNewIssuerRequiresLongSecret(t *testing.T) {
	_, err := NewIssuer("short", time.Hour)
	assert.Error(t, err)
}
