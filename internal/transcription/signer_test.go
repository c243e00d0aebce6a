package transcription

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackSignerRoundTrip(t *testing.T) {
	s := NewCallbackSigner("secret", time.Hour)
	token, err := s.Sign("0b9c1c32-6a3c-4c47-9d8f-7a2f0f0e1a11")
	require.NoError(t, err)

	id, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "0b9c1c32-6a3c-4c47-9d8f-7a2f0f0e1a11", id)
}

func TestCallbackSignerRejects(t *testing.T) {
	s := NewCallbackSigner("secret", time.Hour)
	token, err := s.Sign("video-1")
	require.NoError(t, err)

	_, err = NewCallbackSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := time.Now().Add(-time.Hour)
	old, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CallbackClaims{
		VideoID: "video-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{callbackAudience},
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Verify(old)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	otherAud, err := jwt.NewWithClaims(jwt.SigningMethodHS256, CallbackClaims{
		VideoID:          "video-1",
		RegisteredClaims: jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"api"}},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = s.Verify(otherAud)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong audience")
}
