package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alecgard/taskhub/internal/apperr"
)

// Deliverer sends a code on a channel and reports whether it went out.
type Deliverer interface {
	Deliver(ctx context.Context, ch Channel, to, code string) bool
}

// Recorder is an optional interface for recording code metrics.
type Recorder interface {
	IncCodeRequested(channel, result string)
	IncCodeVerification(channel, outcome string)
}

// Options tunes code lifetimes and limits.
type Options struct {
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// DefaultOptions returns a 5 minute TTL, 60 second cooldown and 3 attempts.
func DefaultOptions() Options {
	return Options{TTL: 5 * time.Minute, Cooldown: time.Minute, MaxAttempts: 3}
}

// Service issues and verifies one-time codes.
type Service struct {
	store     CodeStore
	hasher    Hasher
	deliverer Deliverer
	opts      Options
	metrics   Recorder
	now       func() time.Time
	generate  func() (string, error)
}

// NewService creates a code service.
func NewService(store CodeStore, hasher Hasher, deliverer Deliverer, opts Options) *Service {
	return &Service{
		store:     store,
		hasher:    hasher,
		deliverer: deliverer,
		opts:      opts,
		now:       time.Now,
		generate:  GenerateCode,
	}
}

// SetMetrics sets the optional metrics recorder.
func (s *Service) SetMetrics(m Recorder) {
	s.metrics = m
}

// TTL returns how long issued codes stay valid.
func (s *Service) TTL() time.Duration {
	return s.opts.TTL
}

// Request issues a new code for the address and hands it to the notifier.
// A live code younger than the cooldown blocks the request with
// ErrRateLimited; an older or expired one is replaced.
func (s *Service) Request(ctx context.Context, ch Channel, value string) (*Issued, error) {
	target, err := Normalize(ch, value)
	if err != nil {
		s.countRequest(ch, "invalid")
		return nil, err
	}

	code, err := s.generate()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.store.InTx(ctx, func(tx CodeStore) error {
		existing, err := tx.Get(ctx, ch, target)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Live(now) {
				if elapsed := now.Sub(existing.CreatedAt); elapsed < s.opts.Cooldown {
					return ErrRateLimited.WithRetryAfter(s.opts.Cooldown - elapsed)
				}
			}
			if err := tx.Delete(ctx, existing.ID); err != nil {
				return err
			}
		}
		return tx.Insert(ctx, &Code{
			ID:        uuid.NewString(),
			Channel:   ch,
			Target:    target,
			CodeHash:  hash,
			CreatedAt: now,
			ExpiresAt: now.Add(s.opts.TTL),
		})
	})
	if errors.Is(err, ErrDuplicateCode) {
		// A concurrent request for the same target won the insert.
		err = ErrRateLimited.WithRetryAfter(s.opts.Cooldown)
	}
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.countRequest(ch, "rate_limited")
		}
		return nil, err
	}
	s.countRequest(ch, "issued")

	delivered := s.deliverer.Deliver(ctx, ch, target, code)

	return &Issued{
		Channel:   ch,
		Target:    target,
		Code:      code,
		ExpiresIn: s.opts.TTL,
		Delivered: delivered,
	}, nil
}

// Verify checks code against the live code for the address and consumes it
// on success. It returns the normalized target. Attempt counting and
// deletions are committed even when verification fails.
func (s *Service) Verify(ctx context.Context, ch Channel, value, code string) (string, error) {
	target, err := Normalize(ch, value)
	if err != nil {
		return "", err
	}
	if !wellFormed(code) {
		return "", ErrMalformedCode
	}

	now := s.now()
	var outcome *apperr.Error
	err = s.store.InTx(ctx, func(tx CodeStore) error {
		rec, err := tx.Get(ctx, ch, target)
		if err != nil {
			return err
		}
		if rec == nil {
			outcome = ErrCodeNotFound
			return nil
		}
		if !rec.Live(now) {
			outcome = ErrCodeExpired
			return tx.Delete(ctx, rec.ID)
		}
		if !s.hasher.Compare(rec.CodeHash, code) {
			attempts, err := tx.IncrementAttempts(ctx, rec.ID)
			if err != nil {
				return err
			}
			if attempts >= s.opts.MaxAttempts {
				outcome = ErrTooManyAttempts
				return tx.Delete(ctx, rec.ID)
			}
			outcome = ErrInvalidCode.WithRemaining(s.opts.MaxAttempts - attempts)
			return nil
		}
		return tx.Delete(ctx, rec.ID)
	})
	if err != nil {
		return "", fmt.Errorf("verifying code: %w", err)
	}

	if outcome != nil {
		s.countVerification(ch, outcome.Code)
		return "", outcome
	}
	s.countVerification(ch, "verified")
	return target, nil
}

// SweepExpired removes every expired code.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}

// LiveCount returns the number of codes that have not yet expired.
func (s *Service) LiveCount(ctx context.Context) (int64, error) {
	return s.store.CountLive(ctx, s.now())
}

func (s *Service) countRequest(ch Channel, result string) {
	if s.metrics != nil {
		s.metrics.IncCodeRequested(string(ch), result)
	}
}

func (s *Service) countVerification(ch Channel, outcome string) {
	if s.metrics != nil {
		s.metrics.IncCodeVerification(string(ch), outcome)
	}
}
