//go:build cgo

package store

import (
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func busyError() error {
	return sqlite3.Error{Code: sqlite3.ErrBusy}
}

func TestRetrySucceedsAfterBusy(t *testing.T) {
	slept := stubSleep(t)

	calls := 0
	err := Retry(10, func() error {
		calls++
		if calls < 3 {
			return busyError()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	// Backoff grows linearly: 1s before the first retry, 2s before the second.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
}

func TestRetryGivesUp(t *testing.T) {
	stubSleep(t)

	calls := 0
	err := Retry(3, func() error {
		calls++
		return busyError()
	})
	if !IsBusy(err) {
		t.Fatalf("expected the busy error to surface, got %v", err)
	}
	// The original call plus 3 retries.
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetryNonBusyPropagates(t *testing.T) {
	stubSleep(t)

	boom := errors.New("boom")
	calls := 0
	err := Retry(10, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-busy error retried %d times", calls)
	}
}

func TestIsBusy(t *testing.T) {
	if !IsBusy(sqlite3.Error{Code: sqlite3.ErrBusy}) {
		t.Error("ErrBusy not detected")
	}
	if !IsBusy(sqlite3.Error{Code: sqlite3.ErrLocked}) {
		t.Error("ErrLocked not detected")
	}
	if IsBusy(errors.New("boom")) {
		t.Error("plain error detected as busy")
	}
	if IsBusy(nil) {
		t.Error("nil detected as busy")
	}
}
