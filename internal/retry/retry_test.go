package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

func fastPolicy(attempts uint64) Policy {
	return Policy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDoRetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("claim spot: %w", repository.ErrConflict)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	var me *mysql.MySQLError
	assert.True(t, errors.As(err, &me))
}

func TestDoDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	boom := errors.New("no available spots")
	err := fastPolicy(5).Do(context.Background(), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(repository.ErrConflict))
	assert.True(t, Transient(&mysql.MySQLError{Number: 1205}))
	assert.False(t, Transient(&mysql.MySQLError{Number: 1062}))
	assert.False(t, Transient(repository.ErrNotFound))
	assert.False(t, Transient(nil))
}
