package model

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrUserNotFound is returned for operations on an unregistered user.
	ErrUserNotFound = errors.New("user not found")
	// ErrChannelClosed is returned by a submission channel after Close.
	ErrChannelClosed = errors.New("submission channel closed")
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ParseRetryAfter parses a Retry-After header value in seconds (e.g. "120").
// Returns zero if absent or unparseable.
func ParseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
