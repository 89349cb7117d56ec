package store

import (
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DefaultMaxRetry bounds the busy-retry loop when no limit is given.
const DefaultMaxRetry = 10

// IsBusy reports whether err is a retryable database-busy condition.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

// Retry runs fn, retrying busy errors up to max times, sleeping i seconds
// before the i-th retry. Other errors propagate immediately.
func Retry(max int, fn func() error) error {
	if max <= 0 {
		max = DefaultMaxRetry
	}
	var err error
	for i := 1; ; i++ {
		err = fn()
		if err == nil || !IsBusy(err) || i > max {
			return err
		}
		sleep(time.Duration(i) * time.Second)
	}
}

// sleep is swapped out by tests.
var sleep = time.Sleep
