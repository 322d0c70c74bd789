package ingest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blumidealabs/blumbike/pkg/session"
	"github.com/blumidealabs/blumbike/pkg/store"
)

func newTestPolicy(opts ...Option) (*Policy, *store.Memory) {
	s := store.NewMemory()
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return New(s, session.NewTracker(s), opts...), s
}

func sample(t, resistance int64, mph, bpm float64) Event {
	return Event{
		Kind:       KindNewData,
		T:          t,
		SpeedMPH:   mph,
		Resistance: int(resistance),
		HeartBPM:   bpm,
	}
}

func listLens(t *testing.T, s *store.Memory) map[string]int {
	t.Helper()
	ctx := context.Background()
	lens := map[string]int{}
	for _, key := range store.ListKeys {
		l, err := s.LRange(ctx, key, 0, -1)
		require.NoError(t, err)
		lens[key] = len(l)
	}
	return lens
}

func TestIngestIncreasingTimestamps(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPolicy()

	for i := int64(0); i < 10; i++ {
		res, err := p.Ingest(ctx, sample(100+i, 3, 10, 120))
		require.NoError(t, err)
		require.Equal(t, Accepted, res)
	}

	for key, n := range listLens(t, s) {
		require.Equal(t, 10, n, "list %v out of sync", key)
	}

	newest, err := s.LIndex(ctx, store.KeyTimestamp, 0)
	require.NoError(t, err)
	require.Equal(t, "109", newest)
}

func TestIngestEqualTimestampAccepted(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPolicy()

	res, err := p.Ingest(ctx, sample(100, 3, 10, 120))
	require.NoError(t, err)
	require.Equal(t, Accepted, res)

	// Monotonic non-decreasing: an equal timestamp is admitted
	res, err = p.Ingest(ctx, sample(100, 3, 11, 121))
	require.NoError(t, err)
	require.Equal(t, Accepted, res)
}

func TestIngestStaleRejected(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPolicy()

	res, err := p.Ingest(ctx, sample(100, 3, 10, 120))
	require.NoError(t, err)
	require.Equal(t, Accepted, res)

	res, err = p.Ingest(ctx, sample(90, 4, 12, 125))
	require.NoError(t, err)
	require.Equal(t, RejectedStale, res)

	// Store is unchanged: only the t=100 sample survives
	for key, n := range listLens(t, s) {
		require.Equal(t, 1, n, "list %v mutated by a rejected sample", key)
	}
	newest, err := s.LIndex(ctx, store.KeyTimestamp, 0)
	require.NoError(t, err)
	require.Equal(t, "100", newest)
}

func TestIngestAfterSessionEndRejected(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPolicy()

	_, err := p.Ingest(ctx, Event{Kind: KindStartSession, T: 1000, IP: "1.2.3.4"})
	require.NoError(t, err)
	res, err := p.Ingest(ctx, sample(1001, 5, 15, 130))
	require.NoError(t, err)
	require.Equal(t, Accepted, res)

	res, err = p.Ingest(ctx, Event{Kind: KindEndSession, T: 1100})
	require.NoError(t, err)
	require.Equal(t, SessionEnded, res)

	// Any later sample is stale regardless of timestamp
	res, err = p.Ingest(ctx, sample(9999, 5, 15, 130))
	require.NoError(t, err)
	require.Equal(t, RejectedStale, res)
}

func TestIngestStartSessionResets(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPolicy()

	_, err := p.Ingest(ctx, Event{Kind: KindStartSession, T: 1000, IP: "1.2.3.4"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, sample(1001, 5, 15, 130))
	require.NoError(t, err)
	_, err = p.Ingest(ctx, Event{Kind: KindEndSession, T: 1100})
	require.NoError(t, err)

	// Starting again mid-state empties everything, no confirmation
	res, err := p.Ingest(ctx, Event{Kind: KindStartSession, T: 2000, IP: "5.6.7.8"})
	require.NoError(t, err)
	require.Equal(t, SessionStarted, res)

	for key, n := range listLens(t, s) {
		require.Equal(t, 0, n, "list %v survived a session reset", key)
	}

	// And ingestion works again
	res, err = p.Ingest(ctx, sample(2001, 2, 9, 110))
	require.NoError(t, err)
	require.Equal(t, Accepted, res)
}

func TestIngestPowerOn(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPolicy()

	res, err := p.Ingest(ctx, Event{Kind: KindPoweredOn, T: 500})
	require.NoError(t, err)
	require.Equal(t, PowerOnRecorded, res)

	v, err := s.Get(ctx, store.KeyPoweredOn)
	require.NoError(t, err)
	require.Equal(t, "500", v)
}

func TestIngestEndBeforeStartIsANoOpMarker(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPolicy()

	res, err := p.Ingest(ctx, Event{Kind: KindEndSession, T: 100})
	require.NoError(t, err)
	require.Equal(t, SessionEnded, res)

	// The dangling end marker suppresses ingestion until the next start
	res, err = p.Ingest(ctx, sample(101, 1, 5, 100))
	require.NoError(t, err)
	require.Equal(t, RejectedStale, res)
}

func TestIngestUnknownEvent(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPolicy()

	res, err := p.Ingest(ctx, Event{Kind: KindUnknown, Name: "self_destruct", T: 1})
	require.NoError(t, err)
	require.Equal(t, RejectedUnknown, res)

	for key, n := range listLens(t, s) {
		require.Equal(t, 0, n, "list %v mutated by an unknown event", key)
	}
}

func TestIngestLegacyTrim(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPolicy(WithTrim(LegacyTrimBound))

	for i := int64(0); i < 350; i++ {
		res, err := p.Ingest(ctx, sample(1000+i, 3, 10, 120))
		require.NoError(t, err)
		require.Equal(t, Accepted, res)
	}

	for key, n := range listLens(t, s) {
		require.Equal(t, LegacyTrimBound+1, n, "list %v not trimmed", key)
	}
	newest, err := s.LIndex(ctx, store.KeyTimestamp, 0)
	require.NoError(t, err)
	require.Equal(t, "1349", newest)
}

func TestKindStrings(t *testing.T) {
	tests := map[Kind]string{
		KindUnknown:      "unknown",
		KindPoweredOn:    "powered_on",
		KindStartSession: "start_session",
		KindEndSession:   "end_session",
		KindNewData:      "new_data",
	}
	for kind, tag := range tests {
		require.Equal(t, tag, kind.String())
	}

	_, err := KindString("nope")
	require.Error(t, err)
}

func TestEventUnmarshal(t *testing.T) {
	var e Event
	err := json.Unmarshal([]byte(`{"event":"new_data","t":100,"bike_mph":10.5,"resistance":3,"heart_bpm":120.2}`), &e)
	require.NoError(t, err)
	require.Equal(t, KindNewData, e.Kind)
	require.Equal(t, int64(100), e.T)
	require.InDelta(t, 10.5, e.SpeedMPH, 0.001)
	require.Equal(t, 3, e.Resistance)
	require.InDelta(t, 120.2, e.HeartBPM, 0.001)

	err = json.Unmarshal([]byte(`{"event":"frobnicate","t":5}`), &e)
	require.NoError(t, err)
	require.Equal(t, KindUnknown, e.Kind)
	require.Equal(t, "frobnicate", e.Name)
}
