/*
Package session tracks one logical bike session: the power-on, start and end
markers plus the IP address that is authorized to control resistance.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blumidealabs/blumbike/pkg/store"
)

// Tracker reads and writes the session markers in the store
type Tracker struct {
	store store.Store
}

// NewTracker returns a Tracker over the given store
func NewTracker(s store.Store) *Tracker {
	return &Tracker{store: s}
}

// Snapshot is the session state at a point in time. Absent markers are nil.
type Snapshot struct {
	PoweredOnAt  *time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	AuthorizedIP string
}

// Active reports whether a session has started and not yet ended
func (s Snapshot) Active() bool {
	return s.StartedAt != nil && s.EndedAt == nil
}

// PowerOn records when the bike controller powered up
func (t *Tracker) PowerOn(ctx context.Context, at int64) error {
	return t.store.Set(ctx, store.KeyPoweredOn, strconv.FormatInt(at, 10))
}

// Start begins a new session. All prior state is destroyed: sample lists,
// markers, the lot. The bike cannot physically start a new session while one
// is riding the old one, so no confirmation step is needed.
func (t *Tracker) Start(ctx context.Context, at int64, ip string) error {
	if err := t.store.FlushAll(ctx); err != nil {
		return fmt.Errorf("could not reset store for new session: %w", err)
	}
	if err := t.store.Set(ctx, store.KeySessionStart, strconv.FormatInt(at, 10)); err != nil {
		return err
	}
	return t.store.Set(ctx, store.KeyBikeIP, ip)
}

// End marks the session finished and revokes the control authorization
func (t *Tracker) End(ctx context.Context, at int64) error {
	if err := t.store.Set(ctx, store.KeySessionEnd, strconv.FormatInt(at, 10)); err != nil {
		return err
	}
	return t.store.Del(ctx, store.KeyBikeIP)
}

// Ended reports whether the session-end marker is present
func (t *Tracker) Ended(ctx context.Context) (bool, error) {
	return t.store.Exists(ctx, store.KeySessionEnd)
}

// AuthorizedIP returns the IP recorded at session start, if any
func (t *Tracker) AuthorizedIP(ctx context.Context) (string, bool, error) {
	ip, err := t.store.Get(ctx, store.KeyBikeIP)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return ip, true, nil
}

// Snapshot reads all session markers
func (t *Tracker) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	var err error
	if snap.PoweredOnAt, err = t.marker(ctx, store.KeyPoweredOn); err != nil {
		return nil, err
	}
	if snap.StartedAt, err = t.marker(ctx, store.KeySessionStart); err != nil {
		return nil, err
	}
	if snap.EndedAt, err = t.marker(ctx, store.KeySessionEnd); err != nil {
		return nil, err
	}
	ip, _, err := t.AuthorizedIP(ctx)
	if err != nil {
		return nil, err
	}
	snap.AuthorizedIP = ip
	return &snap, nil
}

func (t *Tracker) marker(ctx context.Context, key string) (*time.Time, error) {
	v, err := t.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	unix, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("marker %v holds a non-numeric value %q: %w", key, v, err)
	}
	ts := time.Unix(unix, 0)
	return &ts, nil
}
