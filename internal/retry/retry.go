// Package retry wraps store calls with bounded exponential backoff.
// Only transient failures are retried: lost connections, deadlocks,
// lock wait timeouts and lost optimistic updates.  Anything else is
// returned after the first attempt.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// MySQL server error numbers worth another attempt.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	Attempts        uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy tries three times, starting at 50ms.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
}

// Do runs op until it succeeds, fails permanently or the attempts are
// used up.  The last error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if p.Attempts > 0 {
		b = backoff.WithMaxRetries(eb, p.Attempts-1)
	}
	b = backoff.WithContext(b, ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logrus.WithError(err).WithField("wait", wait).Debug("retrying store operation")
	})
}

// Transient reports whether err is worth retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == errDeadlock || me.Number == errLockWaitTimeout
	}
	var ne net.Error
	return errors.As(err, &ne)
}
