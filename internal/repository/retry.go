package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net"
	"time"

	"github.com/lib/pq"
)

const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// withRetry runs op with bounded backoff for transient storage failures.
// Domain results (sql.ErrNoRows included) surface immediately: only I/O
// level errors are worth a second attempt.
func withRetry(ctx context.Context, op func() error) error {
	var err error
	wait := retryBaseWait
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err = op(); err == nil || !isTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 = connection exceptions, 40001 = serialization failure.
		return pqErr.Code.Class() == "08" || pqErr.Code == "40001"
	}
	return false
}
