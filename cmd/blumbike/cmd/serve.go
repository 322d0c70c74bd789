package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/blumidealabs/blumbike/pkg/config"
	"github.com/blumidealabs/blumbike/pkg/control"
	"github.com/blumidealabs/blumbike/pkg/ingest"
	"github.com/blumidealabs/blumbike/pkg/particle"
	"github.com/blumidealabs/blumbike/pkg/server"
	"github.com/blumidealabs/blumbike/pkg/session"
	"github.com/blumidealabs/blumbike/pkg/stats"
	"github.com/blumidealabs/blumbike/pkg/store"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the dashboard server command
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the blum.bike dashboard server",
		Long: `Run the blum.bike dashboard server.

The server receives webhook events from the bike's Photon controller on
/update, keeps session state and sample history in Redis, and serves the
dashboard polling API plus the resistance control panel.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "Listen address, overrides the configured value")
	cmd.Flags().Bool("memory", false, "Use an in-memory store instead of Redis. State will not survive a restart")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	manager := config.NewManager()
	if err := manager.LoadConfig(cfgFile); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := manager.GetConfig()

	if cfg.Logging.File != "" {
		if err := setupMultiLogging(cmd.OutOrStderr(), cfg.Logging.File); err != nil {
			return err
		}
	}

	apiKey := cfg.Auth.APIKey
	if apiKey == "" {
		if !cfg.DevMode() {
			return errors.New("an api key must be configured outside of dev mode")
		}
		apiKey = uuid.New().String()
		slog.Warn("no api key configured, generated a random one", "apikey", apiKey)
	}

	st, err := connectStore(cmd, cfg)
	if err != nil {
		return err
	}

	settle, err := cfg.SettleDelay()
	if err != nil {
		return err
	}

	tracker := session.NewTracker(st)
	policy := ingest.New(st, tracker, ingest.WithSettleDelay(settle))
	legacy := ingest.New(st, tracker,
		ingest.WithSettleDelay(settle),
		ingest.WithTrim(cfg.Ingest.LegacyTrim),
	)
	engine := stats.NewEngine(st, tracker)

	gate, err := buildGate(cfg, tracker)
	if err != nil {
		return err
	}

	addr := cfg.Server.Listen
	if flagAddr, ferr := cmd.Flags().GetString("listen"); ferr == nil && flagAddr != "" {
		addr = flagAddr
	} else if cfg.DevMode() && addr == config.DefaultConfig().Server.Listen {
		// Dev mode stays off the network unless told otherwise
		addr = "127.0.0.1:8050"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not listen on %v: %w", addr, err)
	}

	opts := []func(*server.Server){
		server.WithListener(listener),
		server.WithAPIKey(apiKey),
		server.WithPolicy(policy),
		server.WithLegacyPolicy(legacy),
		server.WithEngine(engine),
	}
	if gate != nil {
		opts = append(opts, server.WithGate(gate))
	}
	srv := server.NewServer(opts...)

	slog.Info("serving the dashboard api", "addr", srv.Addr().String(), "dev-mode", cfg.DevMode())
	return srv.Run()
}

// connectStore opens the configured store, retrying the initial Redis
// ping with a fibonacci backoff so the server can come up before Redis
// does.
func connectStore(cmd *cobra.Command, cfg *config.Config) (store.Store, error) {
	if useMemory, err := cmd.Flags().GetBool("memory"); err == nil && useMemory {
		slog.Info("using the in-memory store, state will not survive a restart")
		return store.NewMemory(), nil
	}

	rdb, err := store.NewRedis(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("bad redis url: %w", err)
	}

	seed, err := cfg.ConnectRetryTime()
	if err != nil {
		return nil, err
	}
	backoff := retry.WithMaxRetries(uint64(cfg.Redis.ConnectRetries), retry.NewFibonacci(seed))
	if err := retry.Do(cmd.Context(), backoff, func(ctx context.Context) error {
		if perr := rdb.Ping(ctx); perr != nil {
			slog.Warn("could not reach redis yet, retrying", "error", perr)
			return retry.RetryableError(perr)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("could not connect to redis at %v: %w", cfg.Redis.URL, err)
	}

	return rdb, nil
}

// buildGate wires the resistance control gate when Particle credentials
// are configured. A nil gate leaves the control endpoints disabled.
func buildGate(cfg *config.Config, tracker *session.Tracker) (*control.Gate, error) {
	if cfg.Particle.DeviceID == "" || cfg.Particle.Token == "" {
		slog.Warn("particle credentials not configured, resistance control is disabled")
		return nil, nil
	}

	popts := []particle.Option{
		particle.WithDeviceID(cfg.Particle.DeviceID),
		particle.WithToken(cfg.Particle.Token),
	}
	if cfg.Particle.BaseURL != "" {
		popts = append(popts, particle.WithBaseURL(cfg.Particle.BaseURL))
	}
	client, err := particle.New(popts...)
	if err != nil {
		return nil, err
	}

	gopts := []func(*control.Gate){}
	if cfg.DevMode() {
		slog.Warn("dev mode is on, the control panel skips the ip check")
		gopts = append(gopts, control.WithDevMode())
	}
	return control.NewGate(tracker, client, gopts...), nil
}
