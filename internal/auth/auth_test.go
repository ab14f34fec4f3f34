package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, exp, err := IssueToken("s3cret", "party-1", "Ada", time.Now(), time.Hour)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, err := ParseToken(tok, "s3cret")
	require.NoError(t, err)
	require.Equal(t, "party-1", sub)
}

func TestParseTokenRejects(t *testing.T) {
	tok, _, err := IssueToken("s3cret", "party-1", "", time.Now(), time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(tok, "other")
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := IssueToken("s3cret", "party-1", "", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(expired, "s3cret")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(tok, "")
	require.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, _, err := IssueToken(" ", "party-1", "", time.Now(), time.Hour)
	require.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestAPIKeys(t *testing.T) {
	k1, err := GenerateAPIKey()
	require.NoError(t, err)
	k2, err := GenerateAPIKey()
	require.NoError(t, err)
	require.NotEqual(t, k1, k2)
	require.True(t, strings.HasPrefix(k1, apiKeyPrefix))

	require.Equal(t, HashAPIKey(k1), HashAPIKey(" "+k1+"\n"))
	require.Len(t, HashAPIKey(k1), 64)
}
