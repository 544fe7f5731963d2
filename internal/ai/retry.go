package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// backoff is the retry schedule shared by the HTTP runtimes.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
	log      *zap.Logger
}

// delay returns the jittered wait before retry n (1-based), capped at max.
func (b backoff) delay(n int) time.Duration {
	d := b.base
	for i := 1; i < n; i++ {
		d *= 2
		if b.max > 0 && d >= b.max {
			d = b.max
			break
		}
	}
	d = withJitter(d)
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

// wait sleeps for d unless ctx ends first.
func (b backoff) wait(ctx context.Context, d time.Duration, attempt int, cause error) error {
	if b.log != nil {
		b.log.Warn("retrying request",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", b.attempts),
			zap.Duration("wait", d),
			zap.Error(cause))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryableStatus reports whether a status is worth another attempt.
func retryableStatus(sc int) bool {
	return sc == http.StatusTooManyRequests || (sc >= 500 && sc <= 599)
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfter interprets a Retry-After header given in seconds or as an
// HTTP date.
func parseRetryAfter(v string) (time.Duration, error) {
	if v == "" {
		return 0, errors.New("empty Retry-After")
	}
	if s, err := strconv.Atoi(v); err == nil {
		if s < 0 {
			s = 0
		}
		return time.Duration(s) * time.Second, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}
