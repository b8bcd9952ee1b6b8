package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mustSign(t *testing.T, s *Signer, sessionID string, expiresAt time.Time) string {
	t.Helper()
	token, err := s.SignToken(sessionID, expiresAt)
	if err != nil {
		t.Fatalf("unexpected error on SignToken: %v", err)
	}
	return token
}

func TestSigner_TokenRoundTrip(t *testing.T) {
	s := NewSigner("secret", nil)
	now := time.Unix(1700000000, 0)

	token := mustSign(t, s, "session-1", now.Add(time.Hour))
	sessionID, expiresAt, err := s.VerifyToken(token, now)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID != "session-1" || !expiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected claims %q %v", sessionID, expiresAt)
	}
}

func TestSigner_VerifyTokenFailures(t *testing.T) {
	s := NewSigner("secret", nil)
	now := time.Unix(1700000000, 0)
	token := mustSign(t, s, "session-1", now.Add(time.Minute))
	parts := strings.Split(token, ".")
	forged := strings.Split(mustSign(t, s, "session-2", now.Add(time.Hour)), ".")[1]

	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		ID:        "session-1",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error signing HS512: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ID:        "session-1",
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error signing none: %v", err)
	}
	otherIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        "session-1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error signing: %v", err)
	}
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:     "session-1",
		Issuer: tokenIssuer,
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error signing: %v", err)
	}

	tests := []struct {
		name  string
		token string
		at    time.Time
		want  error
	}{
		{"expired", token, now.Add(time.Minute), ErrTokenExpired},
		{"wrong key", mustSign(t, NewSigner("other", nil), "session-1", now.Add(time.Minute)), now, ErrInvalidSignature},
		{"tampered payload", parts[0] + "." + forged + "." + parts[2], now, ErrInvalidSignature},
		{"tampered signature", parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2])), now, ErrInvalidSignature},
		{"other algorithm", otherAlg, now, ErrInvalidSignature},
		{"alg none", unsigned, now, ErrInvalidSignature},
		{"other issuer", otherIssuer, now, ErrMalformedToken},
		{"no expiry", noExpiry, now, ErrMalformedToken},
		{"garbage", "abc", now, ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.VerifyToken(tt.token, tt.at)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSigner_MissingSessionID(t *testing.T) {
	s := NewSigner("secret", nil)
	now := time.Unix(1700000000, 0)

	token := mustSign(t, s, "", now.Add(time.Minute))
	_, _, err := s.VerifyToken(token, now)

	if !errors.Is(err, ErrMalformedToken) {
		t.Errorf("expected ErrMalformedToken, got %v", err)
	}
}
