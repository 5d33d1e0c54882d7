// Package util holds the retry and polling helpers the journal uses to ride
// out SQLite contention.
package util

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	log "github.com/sirupsen/logrus"
)

// busyMarkers are the fragments SQLite and libsql put in contention errors.
var busyMarkers = []string{
	"database is locked",
	"database is busy",
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
}

// IsBusy reports whether err is a transient SQLite lock or busy error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range busyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// JournalRetryOptions retries busy errors up to five times with jittered
// exponential backoff capped at one second. Other errors fail at once, and
// only the last error is returned.
func JournalRetryOptions(ctx context.Context, op string) []retry.Option {
	return []retry.Option{
		retry.Attempts(5),
		retry.Delay(50 * time.Millisecond),
		retry.MaxJitter(25 * time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(IsBusy),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debugf("[Journal] %s busy, retry %d: %v", op, n+1, err)
		}),
		retry.Context(ctx),
	}
}

// Retry runs fn under opts, or JournalRetryOptions when none are given.
func Retry(ctx context.Context, op string, fn func() error, opts ...retry.Option) error {
	if len(opts) == 0 {
		opts = JournalRetryOptions(ctx, op)
	}
	return retry.Do(fn, opts...)
}

// RetryWithResult is Retry for functions that produce a value.
func RetryWithResult[T any](ctx context.Context, op string, fn func() (T, error), opts ...retry.Option) (T, error) {
	if len(opts) == 0 {
		opts = JournalRetryOptions(ctx, op)
	}
	return retry.DoWithData(fn, opts...)
}
