package auth

import (
	"context"
	"errors"
	"referral_ledger/pkg/crypto"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type capturedCode struct {
	phone, code string
}

type captureSender struct {
	sent []capturedCode
	err  error
}

func (c *captureSender) SendCode(_ context.Context, phone, code string) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, capturedCode{phone, code})
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestSession(sender CodeSender, clock *fakeClock) *Session {
	return NewSession("+8801816395401", crypto.NewSigner("test-secret", nil), sender,
		5*time.Minute, time.Hour, nil,
		WithClock(clock.Now),
		WithCodeGenerator(func() (string, error) { return "123456", nil }))
}

func TestSession_LoginFlow(t *testing.T) {
	ctx := context.Background()
	sender := &captureSender{}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := newTestSession(sender, clock)

	if err := s.RequestCode(ctx, "01816395401"); err != nil {
		t.Fatalf("unexpected error on RequestCode: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].code != "123456" || sender.sent[0].phone != "01816395401" {
		t.Fatalf("unexpected codes sent %+v", sender.sent)
	}

	token, err := s.Verify(ctx, "8801816395401", "123456")
	if err != nil {
		t.Fatalf("unexpected error on Verify: %v", err)
	}
	if _, err := s.Authenticate(token.Value); err != nil {
		t.Errorf("expected token to authenticate, got %v", err)
	}
	if _, err := s.Verify(ctx, "01816395401", "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("a code must only be usable once, got %v", err)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	if _, err := s.Authenticate(token.Value); !errors.Is(err, ErrUnauthenticated) || !errors.Is(err, crypto.ErrTokenExpired) {
		t.Errorf("expected expired token, got %v", err)
	}
}

func TestSession_RejectsOtherPhones(t *testing.T) {
	sender := &captureSender{}
	s := newTestSession(sender, &fakeClock{now: time.Now()})

	err := s.RequestCode(context.Background(), "01711111111")

	if !errors.Is(err, ErrPhoneNotAllowed) {
		t.Errorf("expected ErrPhoneNotAllowed, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Error("no code should be sent to an unauthorized phone")
	}
}

func TestSession_CodeExpiresAndResets(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := newTestSession(&captureSender{}, clock)

	_ = s.RequestCode(ctx, "01816395401")
	clock.now = clock.now.Add(6 * time.Minute)
	if _, err := s.Verify(ctx, "01816395401", "123456"); !errors.Is(err, ErrCodeExpired) {
		t.Errorf("expected ErrCodeExpired, got %v", err)
	}

	_ = s.RequestCode(ctx, "01816395401")
	s.Reset("+8801816395401")
	if _, err := s.Verify(ctx, "01816395401", "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("expected ErrNoChallenge after reset, got %v", err)
	}
}

func TestSession_TooManyAttempts(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(&captureSender{}, &fakeClock{now: time.Unix(1700000000, 0)})
	_ = s.RequestCode(ctx, "01816395401")

	var err error
	for i := 0; i < maxAttempts; i++ {
		_, err = s.Verify(ctx, "01816395401", "000000")
	}

	if !errors.Is(err, ErrTooManyAttempts) {
		t.Errorf("expected ErrTooManyAttempts, got %v", err)
	}
	if _, err := s.Verify(ctx, "01816395401", "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("challenge should be discarded after lockout, got %v", err)
	}
}

func TestSession_SendFailureDiscardsChallenge(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(&captureSender{err: errors.New("gateway down")}, &fakeClock{now: time.Now()})

	if err := s.RequestCode(ctx, "01816395401"); err == nil {
		t.Fatal("expected send failure")
	}
	if _, err := s.Verify(ctx, "01816395401", "123456"); !errors.Is(err, ErrNoChallenge) {
		t.Errorf("expected ErrNoChallenge, got %v", err)
	}
}

func TestSession_Revoke(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(&captureSender{}, &fakeClock{now: time.Unix(1700000000, 0)})
	_ = s.RequestCode(ctx, "01816395401")
	token, err := s.Verify(ctx, "01816395401", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Revoke(token.Value); err != nil {
		t.Fatalf("unexpected error on Revoke: %v", err)
	}
	if _, err := s.Authenticate(token.Value); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("expected ErrSessionRevoked, got %v", err)
	}
}

func TestSession_AuthenticateRejectsForgedTokens(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := newTestSession(&captureSender{}, clock)
	_ = s.RequestCode(ctx, "01816395401")
	token, err := s.Verify(ctx, "01816395401", "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		ID:        "forged",
		Issuer:    "referral_ledger",
		ExpiresAt: jwt.NewNumericDate(clock.now.Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := strings.Split(token.Value, ".")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"other algorithm", hs512, crypto.ErrInvalidSignature},
		{"tampered signature", parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2])), crypto.ErrInvalidSignature},
		{"empty", "", crypto.ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Authenticate(tt.token)
			if !errors.Is(err, ErrUnauthenticated) || !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSession_RevokeOnlyEndsThatSession(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(&captureSender{}, &fakeClock{now: time.Unix(1700000000, 0)})
	login := func() Token {
		t.Helper()
		_ = s.RequestCode(ctx, "01816395401")
		token, err := s.Verify(ctx, "01816395401", "123456")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return token
	}
	first, second := login(), login()

	if err := s.Revoke(first.Value); err != nil {
		t.Fatalf("unexpected error on Revoke: %v", err)
	}

	if _, err := s.Authenticate(first.Value); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("expected ErrSessionRevoked, got %v", err)
	}
	if _, err := s.Authenticate(second.Value); err != nil {
		t.Errorf("expected other session to stay valid, got %v", err)
	}
}
