/*
Package control authorizes and dispatches resistance commands to the bike.

Authorization is a best-effort IP heuristic: the Photon reports its public IP
at session start, and only clients arriving from the same address may send
commands. IPs can be spoofed and proxied, but an attacker has no way to learn
which IP to spoof, and the gate never dispatches on a mismatch. A stronger
scheme can replace this without touching ingestion or aggregation.
*/
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/blumidealabs/blumbike/pkg/particle"
	"github.com/blumidealabs/blumbike/pkg/session"
)

// Resistance bounds. These match what is configured in the Photon firmware.
const (
	MinResistance = 1
	MaxResistance = 10
)

// Direction is which way to move the resistance
type Direction int

const (
	// Down decreases resistance
	Down Direction = iota
	// Up increases resistance
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// FunctionName is the Photon cloud function for this direction
func (d Direction) FunctionName() string {
	return "resistance_" + d.String()
}

// DirectionString returns a Direction from its string form
func DirectionString(s string) (Direction, error) {
	switch s {
	case "down":
		return Down, nil
	case "up":
		return Up, nil
	default:
		return Down, fmt.Errorf("unknown direction: %v", s)
	}
}

// Authorization says whether a client may issue commands and why
type Authorization struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CommandResult is what the UI needs after a resistance command
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Resistance is the device's reported value after a successful command
	Resistance int `json:"resistance,omitempty"`
	// DisableDown and DisableUp drive the button states: the decrease
	// control goes dark at MinResistance, increase at MaxResistance
	DisableDown bool `json:"disable_down"`
	DisableUp   bool `json:"disable_up"`
}

// Gate checks authorization and dispatches commands to the device
type Gate struct {
	sessions   *session.Tracker
	dispatcher particle.Dispatcher
	devMode    bool
}

// NewGate returns a Gate over the given tracker and dispatcher
func NewGate(sessions *session.Tracker, dispatcher particle.Dispatcher, opts ...func(*Gate)) *Gate {
	g := &Gate{
		sessions:   sessions,
		dispatcher: dispatcher,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithDevMode allows commands from any client, flagged as a dev override
func WithDevMode() func(*Gate) {
	return func(g *Gate) {
		g.devMode = true
	}
}

// ClientIP picks the caller's address, preferring the first entry of an
// X-Forwarded-For header over the direct peer (the direct peer is the proxy
// when running behind one).
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Authorize reports whether clientIP may control the bike right now
func (g *Gate) Authorize(ctx context.Context, clientIP string) Authorization {
	match, err := g.ipMatches(ctx, clientIP)
	if err != nil {
		slog.Warn("could not check control authorization", "error", err)
		return Authorization{}
	}
	if match {
		return Authorization{Allowed: true, Reason: "IP Match"}
	}
	if g.devMode {
		return Authorization{Allowed: true, Reason: "Dev Mode"}
	}
	return Authorization{}
}

// ChangeResistance authorizes and dispatches one resistance command. The
// returned CommandResult is always usable by the UI; err is only non-nil
// when session state itself could not be read.
func (g *Gate) ChangeResistance(ctx context.Context, clientIP string, d Direction) (*CommandResult, error) {
	match, err := g.ipMatches(ctx, clientIP)
	if err != nil {
		return nil, err
	}

	prefix := ""
	if !match {
		if !g.devMode {
			slog.Warn("blocked resistance command", "client-ip", clientIP, "direction", d)
			return &CommandResult{
				Message: "Command blocked due to IP mismatch.",
			}, nil
		}
		prefix = "[Dev Override] "
	}

	out, derr := g.dispatcher.CallFunction(ctx, d.FunctionName())
	if derr != nil {
		slog.Error("could not reach the particle cloud", "error", derr, "direction", d)
		return &CommandResult{
			Message: prefix + "An unknown failure occurred.",
		}, nil
	}

	if !out.Success {
		slog.Warn("resistance command failed", "code", out.Code, "direction", d)
		return &CommandResult{
			Message: prefix + out.Message,
		}, nil
	}

	res := out.ReturnValue
	result := &CommandResult{
		Success:     true,
		Resistance:  res,
		DisableDown: res == MinResistance,
		DisableUp:   res == MaxResistance,
	}
	switch res {
	case MinResistance:
		result.Message = fmt.Sprintf("%vResistance set to %v (Min)", prefix, res)
	case MaxResistance:
		result.Message = fmt.Sprintf("%vResistance set to %v (Max)", prefix, res)
	default:
		result.Message = fmt.Sprintf("%vResistance set to %v", prefix, res)
	}
	slog.Info("resistance command sent", "direction", d, "resistance", res)
	return result, nil
}

func (g *Gate) ipMatches(ctx context.Context, clientIP string) (bool, error) {
	authorized, ok, err := g.sessions.AuthorizedIP(ctx)
	if err != nil {
		return false, err
	}
	return ok && clientIP == authorized, nil
}
