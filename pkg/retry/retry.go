package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxRetries     int           // attempts after the first one
	InitialBackoff time.Duration // wait before the first retry
	MaxBackoff     time.Duration // upper bound of a single wait
	Multiplier     float64       // growth factor between waits

	// Retryable decides whether a failed attempt may be repeated. Nil selects
	// IsRetryable; ConnectOnly suits requests that are not idempotent.
	Retryable func(error) bool
}

// DefaultConfig returns the defaults used by the CLI client
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	}
}

func (c Config) classify(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return IsRetryable(err)
}

func (c Config) grow(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * c.Multiplier)
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Permanent marks an error that must not be retried
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Do calls fn until it succeeds, the classifier rejects its error, the
// attempts run out or ctx is done.
func Do(ctx context.Context, config Config, fn func() error) error {
	wait := config.InitialBackoff
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := fn()
		switch {
		case err == nil:
			return nil
		case !config.classify(err):
			return err
		case attempt >= config.MaxRetries:
			return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, err)
		}

		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
		wait = config.grow(wait)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// temporary is implemented by errors that know they are transient, such as
// an HTTP 503 answer.
type temporary interface {
	Temporary() bool
}

// IsRetryable reports whether err is a transient failure: a dropped or
// refused connection, a timeout, a truncated response, or an error that
// reports itself as temporary.
func IsRetryable(err error) bool {
	if err == nil || isFinal(err) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var tmp temporary
	return errors.As(err, &tmp) && tmp.Temporary()
}

// ConnectOnly retries only attempts that never reached the server
func ConnectOnly(err error) bool {
	if err == nil || isFinal(err) {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isFinal(err error) bool {
	var perm *Permanent
	return errors.As(err, &perm) || errors.Is(err, context.Canceled)
}
