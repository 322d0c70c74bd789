/*
Package ingest validates and admits events coming off the bike webhook.

Samples are admitted only when their timestamp is not older than the newest
stored sample and the session has not ended. Everything else in the event
taxonomy mutates session markers.
*/
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blumidealabs/blumbike/pkg/session"
	"github.com/blumidealabs/blumbike/pkg/store"
)

// Result is the outcome of ingesting one event
type Result int

const (
	// Accepted means a new_data sample was appended
	Accepted Result = iota
	// PowerOnRecorded acknowledges a powered_on event
	PowerOnRecorded
	// SessionStarted acknowledges a start_session event
	SessionStarted
	// SessionEnded acknowledges an end_session event
	SessionEnded
	// RejectedStale means the sample was out of order or arrived after
	// session end. Not an error: the controller's retry loop should not
	// be disturbed, so the transport still replies 200
	RejectedStale
	// RejectedUnknown means the event tag was not recognized
	RejectedUnknown
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case PowerOnRecorded:
		return "power_on_recorded"
	case SessionStarted:
		return "session_started"
	case SessionEnded:
		return "session_ended"
	case RejectedStale:
		return "rejected_stale"
	case RejectedUnknown:
		return "rejected_unknown"
	default:
		panic("unknown result")
	}
}

// DefaultSettleDelay is how long Ingest waits after committing a session-end
// marker. It narrows (but does not close) the window where a concurrent poll
// reads session state mid-update.
const DefaultSettleDelay = 100 * time.Millisecond

// LegacyTrimBound keeps the most recent 301 entries (indexes 0..300) in each
// sample list, matching the original capped ingestion mode.
const LegacyTrimBound = 300

// Policy applies the admission rules and mutates the store
type Policy struct {
	store    store.Store
	sessions *session.Tracker
	// trimTo caps each sample list at indexes 0..trimTo. Negative means
	// unbounded; growth is then bounded by the session lifecycle instead
	trimTo int64
	settle time.Duration
}

// Option configures a Policy
type Option func(*Policy)

// WithTrim caps each sample list at the most recent bound+1 entries
func WithTrim(bound int64) Option {
	return func(p *Policy) {
		p.trimTo = bound
	}
}

// WithSettleDelay overrides the pause after a session-end commit
func WithSettleDelay(d time.Duration) Option {
	return func(p *Policy) {
		p.settle = d
	}
}

// New returns a Policy over the given store and session tracker
func New(s store.Store, sessions *session.Tracker, opts ...Option) *Policy {
	p := &Policy{
		store:    s,
		sessions: sessions,
		trimTo:   -1,
		settle:   DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest classifies and applies one event. The Result alone signals the
// outcome; a non-nil error means the store itself failed.
func (p *Policy) Ingest(ctx context.Context, e Event) (Result, error) {
	switch e.Kind {
	case KindPoweredOn:
		if err := p.sessions.PowerOn(ctx, e.T); err != nil {
			return 0, err
		}
		slog.Info("bike powered on", "t", e.T)
		return PowerOnRecorded, nil

	case KindStartSession:
		if err := p.sessions.Start(ctx, e.T, e.IP); err != nil {
			return 0, err
		}
		slog.Info("started a new session", "t", e.T, "bike-ip", e.IP)
		return SessionStarted, nil

	case KindEndSession:
		if err := p.sessions.End(ctx, e.T); err != nil {
			return 0, err
		}
		// Give a near-simultaneous poll a moment to observe the
		// committed end marker. A mitigation, not a fix.
		time.Sleep(p.settle)
		slog.Info("ended the session", "t", e.T)
		return SessionEnded, nil

	case KindNewData:
		return p.appendSample(ctx, e)

	default:
		slog.Warn("event not understood", "event", e.Name)
		return RejectedUnknown, nil
	}
}

func (p *Policy) appendSample(ctx context.Context, e Event) (Result, error) {
	stale, err := p.isStale(ctx, e.T)
	if err != nil {
		return 0, err
	}
	if stale {
		slog.Info("ignored stale data", "t", e.T)
		return RejectedStale, nil
	}

	// The four lists are pushed as a group so they stay
	// length-synchronized. Each push is individually atomic only.
	pushes := map[string]string{
		store.KeyTimestamp:  strconv.FormatInt(e.T, 10),
		store.KeySpeed:      strconv.FormatFloat(e.SpeedMPH, 'f', -1, 64),
		store.KeyResistance: strconv.Itoa(e.Resistance),
		store.KeyHeart:      strconv.FormatFloat(e.HeartBPM, 'f', -1, 64),
	}
	for _, key := range store.ListKeys {
		if err := p.store.LPush(ctx, key, pushes[key]); err != nil {
			return 0, fmt.Errorf("could not push %v: %w", key, err)
		}
	}

	if p.trimTo >= 0 {
		for _, key := range store.ListKeys {
			if err := p.store.LTrim(ctx, key, 0, p.trimTo); err != nil {
				return 0, fmt.Errorf("could not trim %v: %w", key, err)
			}
		}
	}

	slog.Debug("appended sample", "t", e.T, "mph", e.SpeedMPH, "resistance", e.Resistance, "bpm", e.HeartBPM)
	return Accepted, nil
}

// isStale rejects out-of-order samples and anything after session end
func (p *Policy) isStale(ctx context.Context, t int64) (bool, error) {
	ended, err := p.sessions.Ended(ctx)
	if err != nil {
		return false, err
	}
	if ended {
		return true, nil
	}

	newest, err := p.store.LIndex(ctx, store.KeyTimestamp, 0)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	newestT, err := strconv.ParseInt(newest, 10, 64)
	if err != nil {
		return false, fmt.Errorf("stored timestamp %q is not numeric: %w", newest, err)
	}
	return newestT > t, nil
}
