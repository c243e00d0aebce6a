package transcription

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for callback tokens that fail verification.
var ErrInvalidToken = errors.New("invalid callback token")

const callbackAudience = "transcription-callback"

// CallbackClaims identify the video a vendor callback belongs to.
type CallbackClaims struct {
	VideoID string `json:"video_id"`
	jwt.RegisteredClaims
}

// CallbackSigner mints and checks the token embedded in webhook URLs.
type CallbackSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewCallbackSigner creates a signer. ttl bounds how long a vendor may take
// to call back.
func NewCallbackSigner(secret string, ttl time.Duration) *CallbackSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CallbackSigner{secret: []byte(secret), ttl: ttl}
}

// Sign returns a token carrying correlationID.
func (s *CallbackSigner) Sign(correlationID string) (string, error) {
	now := time.Now()
	claims := CallbackClaims{
		VideoID: correlationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{callbackAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses a token and returns the correlation id it carries.
func (s *CallbackSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CallbackClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithAudience(callbackAudience))
	if err != nil {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*CallbackClaims)
	if !ok || !token.Valid || claims.VideoID == "" {
		return "", ErrInvalidToken
	}
	return claims.VideoID, nil
}
