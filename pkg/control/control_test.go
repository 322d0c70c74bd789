package control

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blumidealabs/blumbike/pkg/particle"
	"github.com/blumidealabs/blumbike/pkg/session"
	"github.com/blumidealabs/blumbike/pkg/store"
)

// fakeDispatcher returns a canned outcome and records calls
type fakeDispatcher struct {
	outcome *particle.Outcome
	err     error
	calls   []string
}

func (f *fakeDispatcher) CallFunction(_ context.Context, fn string) (*particle.Outcome, error) {
	f.calls = append(f.calls, fn)
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

func newGateFixture(t *testing.T, d particle.Dispatcher, opts ...func(*Gate)) *Gate {
	t.Helper()
	s := store.NewMemory()
	tr := session.NewTracker(s)
	require.NoError(t, tr.Start(context.Background(), 1000, "1.2.3.4"))
	return NewGate(tr, d, opts...)
}

func TestChangeResistanceIPMismatch(t *testing.T) {
	d := &fakeDispatcher{}
	g := newGateFixture(t, d)

	r, err := g.ChangeResistance(context.Background(), "9.9.9.9", Up)
	require.NoError(t, err)
	require.False(t, r.Success)
	require.Equal(t, "Command blocked due to IP mismatch.", r.Message)
	require.False(t, r.DisableDown)
	require.False(t, r.DisableUp)
	// Never dispatched
	require.Empty(t, d.calls)
}

func TestChangeResistanceCommandFailure(t *testing.T) {
	d := &fakeDispatcher{outcome: &particle.Outcome{
		Code:    400,
		Message: particle.MessageForCode(400),
	}}
	g := newGateFixture(t, d)

	r, err := g.ChangeResistance(context.Background(), "1.2.3.4", Up)
	require.NoError(t, err)
	require.False(t, r.Success)
	require.Equal(t, "Command Failed! Is the bike on?", r.Message)
	// Both controls stay enabled on failure
	require.False(t, r.DisableDown)
	require.False(t, r.DisableUp)
}

func TestChangeResistanceMaxDisablesIncrease(t *testing.T) {
	d := &fakeDispatcher{outcome: &particle.Outcome{
		Code:        200,
		Success:     true,
		Message:     particle.MessageForCode(200),
		ReturnValue: MaxResistance,
	}}
	g := newGateFixture(t, d)

	r, err := g.ChangeResistance(context.Background(), "1.2.3.4", Up)
	require.NoError(t, err)
	require.True(t, r.Success)
	require.True(t, r.DisableUp)
	require.False(t, r.DisableDown)
	require.Equal(t, "Resistance set to 10 (Max)", r.Message)
	require.Equal(t, []string{"resistance_up"}, d.calls)
}

func TestChangeResistanceMinDisablesDecrease(t *testing.T) {
	d := &fakeDispatcher{outcome: &particle.Outcome{
		Code:        200,
		Success:     true,
		Message:     particle.MessageForCode(200),
		ReturnValue: MinResistance,
	}}
	g := newGateFixture(t, d)

	r, err := g.ChangeResistance(context.Background(), "1.2.3.4", Down)
	require.NoError(t, err)
	require.True(t, r.Success)
	require.True(t, r.DisableDown)
	require.False(t, r.DisableUp)
	require.Equal(t, "Resistance set to 1 (Min)", r.Message)
	require.Equal(t, []string{"resistance_down"}, d.calls)
}

func TestChangeResistanceMidRange(t *testing.T) {
	d := &fakeDispatcher{outcome: &particle.Outcome{
		Code:        200,
		Success:     true,
		Message:     particle.MessageForCode(200),
		ReturnValue: 5,
	}}
	g := newGateFixture(t, d)

	r, err := g.ChangeResistance(context.Background(), "1.2.3.4", Up)
	require.NoError(t, err)
	require.True(t, r.Success)
	require.False(t, r.DisableDown)
	require.False(t, r.DisableUp)
	require.Equal(t, "Resistance set to 5", r.Message)
}

func TestChangeResistanceDevOverride(t *testing.T) {
	d := &fakeDispatcher{outcome: &particle.Outcome{
		Code:        200,
		Success:     true,
		Message:     particle.MessageForCode(200),
		ReturnValue: 4,
	}}
	g := newGateFixture(t, d, WithDevMode())

	r, err := g.ChangeResistance(context.Background(), "9.9.9.9", Up)
	require.NoError(t, err)
	require.True(t, r.Success)
	require.Equal(t, "[Dev Override] Resistance set to 4", r.Message)
}

func TestAuthorize(t *testing.T) {
	g := newGateFixture(t, &fakeDispatcher{})

	auth := g.Authorize(context.Background(), "1.2.3.4")
	require.True(t, auth.Allowed)
	require.Equal(t, "IP Match", auth.Reason)

	auth = g.Authorize(context.Background(), "9.9.9.9")
	require.False(t, auth.Allowed)

	gDev := newGateFixture(t, &fakeDispatcher{}, WithDevMode())
	auth = gDev.Authorize(context.Background(), "9.9.9.9")
	require.True(t, auth.Allowed)
	require.Equal(t, "Dev Mode", auth.Reason)
}

func TestClientIP(t *testing.T) {
	req, err := http.NewRequest("POST", "/", nil)
	require.NoError(t, err)
	req.RemoteAddr = "10.0.0.1:9999"
	require.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	require.Equal(t, "1.2.3.4", ClientIP(req))
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "resistance_up", Up.FunctionName())
	require.Equal(t, "resistance_down", Down.FunctionName())

	d, err := DirectionString("up")
	require.NoError(t, err)
	require.Equal(t, Up, d)
	d, err = DirectionString("down")
	require.NoError(t, err)
	require.Equal(t, Down, d)
	_, err = DirectionString("sideways")
	require.Error(t, err)
}
