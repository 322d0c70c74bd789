/*
Package store is the key-value storage layer that holds session state and
the per-metric telemetry lists. The backing store is Redis in production and
an in-memory map in tests and local development.
*/
package store

import (
	"context"
	"errors"
)

// Keys used in the store. Scalar keys hold session markers as unix-second
// strings, list keys hold the per-metric sample sequences newest-first.
const (
	KeyPoweredOn    = "powered_on"
	KeySessionStart = "session_start"
	KeySessionEnd   = "session_end"
	KeyBikeIP       = "bike_ip"

	KeyTimestamp  = "timestamp"
	KeySpeed      = "bike_mph"
	KeyResistance = "resistance"
	KeyHeart      = "heart_bpm"
)

// ListKeys are the four sample sequences. They are pushed as a group and
// stay length-synchronized.
var ListKeys = []string{KeyTimestamp, KeySpeed, KeyResistance, KeyHeart}

// ErrNotFound is returned by Get and LIndex when a key or index is absent
var ErrNotFound = errors.New("key not found")

// Store describes the ordered-list and scalar semantics the dashboard needs.
// Each operation is individually atomic; multi-key updates are not.
type Store interface {
	// LPush prepends values to the list at key, newest first
	LPush(ctx context.Context, key string, values ...string) error
	// LIndex returns the element at index (0 is the newest)
	LIndex(ctx context.Context, key string, index int64) (string, error)
	// LRange returns elements from start through stop inclusive. Use -1
	// for stop to read the full list
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LTrim discards everything outside start..stop
	LTrim(ctx context.Context, key string, start, stop int64) error

	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// FlushAll drops everything. Used when a new session starts
	FlushAll(ctx context.Context) error
}
