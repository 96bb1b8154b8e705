package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-service/internal/repository"
)

// Domain errors. Handlers translate them into HTTP status codes; they are
// expected outcomes and are not logged as faults.
var (
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	// ErrUnavailable marks a backing store that timed out or could not be
	// reached. Callers may retry.
	ErrUnavailable = errors.New("service unavailable")
)

// classify wraps store failures that should surface as ErrUnavailable.
// Every other error, including the repository sentinels, is returned as
// is.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	if repository.IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// storeCall bounds and, for idempotent operations, retries calls into the
// relational store and the cache.
type storeCall struct {
	timeout  time.Duration
	attempts int
	backoff  time.Duration
}

func (p storeCall) normalized() storeCall {
	if p.timeout <= 0 {
		p.timeout = 3 * time.Second
	}
	if p.attempts < 1 {
		p.attempts = 1
	}
	if p.backoff <= 0 {
		p.backoff = 50 * time.Millisecond
	}
	return p
}

// once runs fn a single time under the call timeout.
func (p storeCall) once(ctx context.Context, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return classify(fn(cctx))
}

// retry runs an idempotent fn, retrying with exponential backoff while it
// fails with ErrUnavailable and the parent context is alive.
func (p storeCall) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	wait := p.backoff
	var err error
	for attempt := 1; ; attempt++ {
		err = p.once(ctx, fn)
		if err == nil || !errors.Is(err, ErrUnavailable) || attempt >= p.attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return classify(ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
}

// notFoundAs converts repository.ErrNotFound into target, keeping other
// errors.
func notFoundAs(err, target error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", target, msg)
	}
	return err
}

// conflictAs converts repository.ErrConflict into ErrConflict with msg.
func conflictAs(err error, msg string) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	}
	return err
}
