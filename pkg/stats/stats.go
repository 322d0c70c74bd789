/*
Package stats answers the dashboard's read queries: the latest reading, the
finished-session summary, and the series the charts are drawn from. All of it
is computed fresh from the store on every call; nothing is cached between
poll ticks.
*/
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blumidealabs/blumbike/pkg/session"
	"github.com/blumidealabs/blumbike/pkg/store"
)

// Engine runs read-only queries over the store and session markers
type Engine struct {
	store    store.Store
	sessions *session.Tracker
}

// NewEngine returns an Engine over the given store and tracker
func NewEngine(s store.Store, sessions *session.Tracker) *Engine {
	return &Engine{store: s, sessions: sessions}
}

// Reading is the most recent sample plus session context
type Reading struct {
	LastUpdate time.Time
	SpeedMPH   float64
	Resistance int
	HeartBPM   float64
	// StartedAgo is a human phrase like "3 minutes ago"
	StartedAgo string
}

// Summary aggregates a finished session
type Summary struct {
	// Duration is human text, e.g. "25 minutes"
	Duration      string
	AvgSpeedMPH   float64
	MaxSpeedMPH   float64
	AvgResistance float64
	MaxResistance int
	AvgHeartBPM   float64
	MaxHeartBPM   float64
	// EndedAgo is a human phrase like "2 hours ago"
	EndedAgo string
}

// Series holds the three chart sequences, time-aligned, in stored order
// (newest first). The rendering layer reorders for its axis if it wants to.
type Series struct {
	Timestamps []time.Time `json:"timestamps"`
	SpeedMPH   []float64   `json:"bike_mph"`
	Resistance []int       `json:"resistance"`
	HeartBPM   []float64   `json:"heart_bpm"`
}

// CurrentReading returns the newest sample, or nil if no samples have
// arrived yet (the caller renders a waiting state, not an error).
func (e *Engine) CurrentReading(ctx context.Context) (*Reading, error) {
	snap, err := e.sessions.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.StartedAt == nil {
		return nil, nil
	}

	ts, err := e.store.LIndex(ctx, store.KeyTimestamp, 0)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad stored timestamp %q: %w", ts, err)
	}

	r := &Reading{
		LastUpdate: time.Unix(unix, 0),
		StartedAgo: humanize.Time(*snap.StartedAt),
	}
	if r.SpeedMPH, err = e.headFloat(ctx, store.KeySpeed); err != nil {
		return nil, err
	}
	if r.Resistance, err = e.headInt(ctx, store.KeyResistance); err != nil {
		return nil, err
	}
	if r.HeartBPM, err = e.headFloat(ctx, store.KeyHeart); err != nil {
		return nil, err
	}
	return r, nil
}

// SessionSummary aggregates the whole captured session. It returns nil
// unless the session has both started and ended and at least one sample was
// captured.
func (e *Engine) SessionSummary(ctx context.Context) (*Summary, error) {
	snap, err := e.sessions.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.StartedAt == nil || snap.EndedAt == nil {
		return nil, nil
	}

	speeds, err := e.floats(ctx, store.KeySpeed)
	if err != nil {
		return nil, err
	}
	resistances, err := e.ints(ctx, store.KeyResistance)
	if err != nil {
		return nil, err
	}
	hearts, err := e.floats(ctx, store.KeyHeart)
	if err != nil {
		return nil, err
	}
	if len(speeds) == 0 || len(hearts) == 0 {
		// No data is not a fault, just nothing to summarize
		return nil, nil
	}

	s := &Summary{
		Duration: humanize.RelTime(*snap.StartedAt, *snap.EndedAt, "", ""),
		EndedAgo: humanize.Time(*snap.EndedAt),
	}
	s.AvgSpeedMPH, s.MaxSpeedMPH = meanMax(speeds)

	resF := make([]float64, len(resistances))
	maxRes := resistances[0]
	for i, v := range resistances {
		resF[i] = float64(v)
		if v > maxRes {
			maxRes = v
		}
	}
	s.AvgResistance, _ = meanMax(resF)
	s.MaxResistance = maxRes

	s.AvgHeartBPM, s.MaxHeartBPM = meanMax(hearts)
	return s, nil
}

// ChartSeries reads the full stored sequences. Empty series are valid and
// render as an empty chart.
func (e *Engine) ChartSeries(ctx context.Context) (*Series, error) {
	raw, err := e.store.LRange(ctx, store.KeyTimestamp, 0, -1)
	if err != nil {
		return nil, err
	}
	s := &Series{
		Timestamps: make([]time.Time, 0, len(raw)),
		SpeedMPH:   []float64{},
		Resistance: []int{},
		HeartBPM:   []float64{},
	}
	for _, v := range raw {
		unix, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("bad stored timestamp %q: %w", v, perr)
		}
		s.Timestamps = append(s.Timestamps, time.Unix(unix, 0))
	}
	if s.SpeedMPH, err = e.floats(ctx, store.KeySpeed); err != nil {
		return nil, err
	}
	if s.Resistance, err = e.ints(ctx, store.KeyResistance); err != nil {
		return nil, err
	}
	if s.HeartBPM, err = e.floats(ctx, store.KeyHeart); err != nil {
		return nil, err
	}
	return s, nil
}

func meanMax(vals []float64) (mean, maxV float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	maxV = vals[0]
	var sum float64
	for _, v := range vals {
		sum += v
		if v > maxV {
			maxV = v
		}
	}
	return sum / float64(len(vals)), maxV
}

func (e *Engine) headFloat(ctx context.Context, key string) (float64, error) {
	v, err := e.store.LIndex(ctx, key, 0)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(v, 64)
}

func (e *Engine) headInt(ctx context.Context, key string) (int, error) {
	v, err := e.store.LIndex(ctx, key, 0)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (e *Engine) floats(ctx context.Context, key string) ([]float64, error) {
	raw, err := e.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			return nil, fmt.Errorf("bad stored value %q in %v: %w", v, key, perr)
		}
		out = append(out, f)
	}
	return out, nil
}

func (e *Engine) ints(ctx context.Context, key string) ([]int, error) {
	raw, err := e.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		i, perr := strconv.Atoi(v)
		if perr != nil {
			return nil, fmt.Errorf("bad stored value %q in %v: %w", v, key, perr)
		}
		out = append(out, i)
	}
	return out, nil
}
