package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyWithSecret(t *testing.T) {
	gen := NewGenerator("s3cret", "https://p.example.co/auth/v1", time.Hour)
	token, err := gen.Generate("user-1", "a@x.com", "sess-1", AAL2, "password", "totp")
	require.NoError(t, err)

	claims, err := NewVerifier("s3cret").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, AAL2, claims.AssuranceLevel())
	assert.Equal(t, []string{"password", "totp"}, claims.Methods())
	assert.True(t, claims.HasMethod("totp"))

	_, err = NewVerifier("other").Verify(token)
	assert.Error(t, err)
}

func TestVerifyWithoutSecretSkipsSignature(t *testing.T) {
	gen := NewGenerator("s3cret", "issuer", time.Hour)
	token, err := gen.Generate("user-1", "a@x.com", "sess-1", "")
	require.NoError(t, err)

	claims, err := NewVerifier("").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, AAL1, claims.AssuranceLevel())
	assert.False(t, claims.HasMethod("totp"))
}

func TestInspectReadsExpiredToken(t *testing.T) {
	gen := NewGenerator("s3cret", "issuer", -time.Minute)
	token, err := gen.Generate("user-1", "a@x.com", "sess-9", AAL1, "password")
	require.NoError(t, err)

	v := NewVerifier("s3cret")
	_, err = v.Verify(token)
	require.Error(t, err)

	claims, err := v.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "sess-9", claims.SessionID)
}

func TestGenerateRequiresSecret(t *testing.T) {
	_, err := NewGenerator("", "issuer", time.Hour).Generate("u", "e", "s", AAL1)
	assert.Error(t, err)
}
