// Package auth gates admin operations behind a one-time code sent to a single
// authorized phone number.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"referral_ledger/pkg/crypto"
	"referral_ledger/pkg/validator"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPhoneNotAllowed = errors.New("phone number is not authorized")
	ErrNoChallenge     = errors.New("no code was requested")
	ErrCodeExpired     = errors.New("code expired")
	ErrCodeMismatch    = errors.New("code does not match")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionRevoked  = errors.New("session revoked")
)

const (
	maxAttempts = 5
	codeDigits  = 6
)

type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type challenge struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// Session owns the login lifecycle: RequestCode creates a challenge, Verify
// consumes it and issues a signed token, Reset discards it.
type Session struct {
	mu           sync.Mutex
	allowedPhone string
	codeTTL      time.Duration
	tokenTTL     time.Duration
	signer       *crypto.Signer
	sender       CodeSender
	challenges   map[string]*challenge
	revoked      map[string]time.Time
	now          func() time.Time
	generate     func() (string, error)
	logger       *slog.Logger
}

type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Session) { s.generate = gen }
}

func NewSession(allowedPhone string, signer *crypto.Signer, sender CodeSender,
	codeTTL, tokenTTL time.Duration, logger *slog.Logger, opts ...Option) *Session {

	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		allowedPhone: validator.NormalizeMobile(allowedPhone),
		codeTTL:      codeTTL,
		tokenTTL:     tokenTTL,
		signer:       signer,
		sender:       sender,
		challenges:   make(map[string]*challenge),
		revoked:      make(map[string]time.Time),
		now:          time.Now,
		generate:     randomCode,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) RequestCode(ctx context.Context, phone string) error {
	phone = validator.NormalizeMobile(phone)
	if phone != s.allowedPhone {
		s.logger.WarnContext(ctx, "Login attempt from unauthorized phone", slog.String("phone", phone))
		return ErrPhoneNotAllowed
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}

	s.mu.Lock()
	s.challenges[phone] = &challenge{code: code, expiresAt: s.now().Add(s.codeTTL)}
	s.mu.Unlock()

	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		s.Reset(phone)
		return fmt.Errorf("failed to send code: %w", err)
	}

	s.logger.InfoContext(ctx, "Login code sent", slog.String("phone", phone))
	return nil
}

func (s *Session) Verify(ctx context.Context, phone, code string) (Token, error) {
	phone = validator.NormalizeMobile(phone)

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[phone]
	if !ok {
		return Token{}, ErrNoChallenge
	}
	now := s.now()
	if !now.Before(ch.expiresAt) {
		delete(s.challenges, phone)
		return Token{}, ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(ch.code), []byte(code)) != 1 {
		ch.attempts++
		if ch.attempts >= maxAttempts {
			delete(s.challenges, phone)
			return Token{}, ErrTooManyAttempts
		}
		return Token{}, ErrCodeMismatch
	}
	delete(s.challenges, phone)

	expiresAt := now.Add(s.tokenTTL)
	value, err := s.signer.SignToken(uuid.NewString(), expiresAt)
	if err != nil {
		return Token{}, err
	}
	token := Token{Value: value, ExpiresAt: expiresAt}

	s.logger.InfoContext(ctx, "Admin session started", slog.Time("expires_at", expiresAt))
	return token, nil
}

// Reset discards any outstanding code for phone.
func (s *Session) Reset(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, validator.NormalizeMobile(phone))
}

// Authenticate returns the session id carried by a valid, unrevoked token.
func (s *Session) Authenticate(token string) (string, error) {
	sessionID, _, err := s.signer.VerifyToken(token, s.now())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, revoked := s.revoked[sessionID]; revoked {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, ErrSessionRevoked)
	}
	return sessionID, nil
}

// Revoke ends the session behind token before it expires.
func (s *Session) Revoke(token string) error {
	sessionID, expiresAt, err := s.signer.VerifyToken(token, s.now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[sessionID] = expiresAt
	return nil
}

func randomCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < codeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
