// Package fib implements the derivation applied to every accepted index and
// the parsing rules shared by the API and the worker.
//
// The recurrence is offset from the textbook sequence by one term:
//
//	fib(0) = 1
//	fib(1) = 1
//	fib(n) = fib(n-1) + fib(n-2)   for n >= 2
//
// so fib(10) is 89, not 55.
package fib

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DefaultMaxIndex is the largest index accepted unless configured otherwise.
const DefaultMaxIndex = 40

// MaxComputable is the largest n whose value fits in a uint64.
const MaxComputable = 92

var (
	// ErrNotInteger is returned when the input is not a base-10 integer.
	ErrNotInteger = errors.New("index is not an integer")

	// ErrNegative is returned for indices below zero.
	ErrNegative = errors.New("index is negative")

	// ErrTooHigh is returned for indices above the configured maximum.
	ErrTooHigh = errors.New("index too high")
)

// ParseIndex parses s as an index and checks it against max.
// Surrounding whitespace is ignored.
func ParseIndex(s string, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotInteger, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegative, n)
	}
	if n > max {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooHigh, n, max)
	}
	return n, nil
}

// FormatIndex returns the canonical key form of n.
func FormatIndex(n int) string {
	return strconv.Itoa(n)
}

var (
	memoMu sync.Mutex
	memo   = []uint64{1, 1}
)

// Value returns fib(n). Results are memoized; the table is filled by the
// same two-term recursion that Recursive evaluates naively.
func Value(n int) (uint64, error) {
	if n < 0 || n > MaxComputable {
		return 0, fmt.Errorf("fib: %d out of range [0, %d]", n, MaxComputable)
	}

	memoMu.Lock()
	defer memoMu.Unlock()

	for i := len(memo); i <= n; i++ {
		memo = append(memo, memo[i-1]+memo[i-2])
	}
	return memo[n], nil
}

// Recursive evaluates the recurrence directly in exponential time.
// Value must agree with it for every n.
func Recursive(n int) uint64 {
	if n < 2 {
		return 1
	}
	return Recursive(n-1) + Recursive(n-2)
}

// String returns fib(n) in the decimal form stored in the cache.
func String(n int) (string, error) {
	v, err := Value(n)
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(v, 10), nil
}
