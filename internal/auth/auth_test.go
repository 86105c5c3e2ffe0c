package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bitsy-Chuck/pomodex/internal/storage/storagetest"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	store := storagetest.NewFakeStore()
	v, err := New(store, "", "test-secret")
	require.NoError(t, err)
	return v
}

func TestHashAndVerifyPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{name: "simple password", password: "hunter2"},
		{name: "long passphrase", password: "correct horse battery staple forever"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			require.NoError(t, err)
			assert.True(t, VerifyPassword(tt.password, hash))
			assert.False(t, VerifyPassword(tt.password+"x", hash))
		})
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.CreateAccessToken("user-1")
	require.NoError(t, err)

	userID, err := v.DecodeAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAccessToken_RejectsTamperedToken(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.CreateAccessToken("user-1")
	require.NoError(t, err)

	_, err = v.DecodeAccessToken(token + "tampered")
	assert.Error(t, err)
}

func TestRefreshToken_RotationIsSingleUse(t *testing.T) {
	v := newTestVerifier(t)
	ctx := context.Background()

	raw, err := v.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)

	userID, newRaw, err := v.RotateRefreshToken(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.NotEmpty(t, newRaw)

	// Presenting the same (now revoked) token again must fail.
	_, _, err = v.RotateRefreshToken(ctx, raw)
	assert.Error(t, err)

	// The newly issued token should still work.
	_, _, err = v.RotateRefreshToken(ctx, newRaw)
	assert.NoError(t, err)
}

func TestRefreshToken_RejectsUnknownToken(t *testing.T) {
	v := newTestVerifier(t)
	_, _, err := v.RotateRefreshToken(context.Background(), "not-a-real-token")
	assert.Error(t, err)
}

func TestRefreshToken_ExpiryIsThirtyDays(t *testing.T) {
	v := newTestVerifier(t)
	ctx := context.Background()

	raw, err := v.IssueRefreshToken(ctx, "user-1")
	require.NoError(t, err)

	hash := hashToken(raw)
	stored, err := v.store.GetRefreshTokenByHash(ctx, hash)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(refreshTokenExpiry), stored.ExpiresAt, time.Minute)
}
