package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	codeLength  = 6
	defaultTTL  = 10 * time.Minute
	maxAttempts = 5
)

var (
	ErrNotFound        = errors.New("OTP not found or expired")
	ErrExpired         = errors.New("OTP has expired")
	ErrTooManyAttempts = errors.New("too many attempts, request a new OTP")
	ErrMismatch        = errors.New("invalid OTP")
)

// Service issues and verifies one-time codes for email ownership checks.
type Service struct {
	store   Store
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store:   store,
		ttl:     defaultTTL,
		nowFunc: time.Now,
	}
}

// Issue generates a fresh 6-digit code for the email and stores it with a
// zeroed attempt counter, replacing any outstanding code.
func (s *Service) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	rec := Record{
		Email:     email,
		Code:      code,
		ExpiresAt: s.nowFunc().Add(s.ttl),
		Attempts:  0,
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return "", fmt.Errorf("store OTP: %w", err)
	}
	return code, nil
}

// Verify checks the code against the stored record. The attempt counter is
// incremented before the comparison, so the record is invalidated on the
// attempt that exceeds the limit regardless of whether that code matched.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	rec, ok, err := s.store.Get(ctx, email)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if s.nowFunc().After(rec.ExpiresAt) {
		_ = s.store.Delete(ctx, email)
		return ErrExpired
	}

	rec.Attempts++
	if rec.Attempts > maxAttempts {
		_ = s.store.Delete(ctx, email)
		return ErrTooManyAttempts
	}

	if rec.Code != code {
		if err := s.store.Put(ctx, *rec); err != nil {
			return err
		}
		return ErrMismatch
	}

	if err := s.store.Delete(ctx, email); err != nil {
		return err
	}
	return s.store.MarkVerified(ctx, email)
}

// ConsumeVerified removes the email from the verified set, reporting
// whether it was present. Verification is single-use: registration must be
// the next and only consumer.
func (s *Service) ConsumeVerified(ctx context.Context, email string) (bool, error) {
	return s.store.ConsumeVerified(ctx, email)
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
