package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"fundchain/config"
	"fundchain/core"
	"fundchain/integrations/audit"
	"fundchain/integrations/journal"
	"fundchain/integrations/webhooks"
	"fundchain/native/access"
	"fundchain/native/crowdfund"
	"fundchain/observability"
	"fundchain/observability/logging"
	telemetry "fundchain/observability/otel"
	"fundchain/rpc"
	"fundchain/storage"
)

const serviceName = "fundd"

func main() {
	configFile := flag.String("config", "./fundd.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		fmt.Fprintf(os.Stderr, "fundd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	env := strings.TrimSpace(os.Getenv("FUND_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser := logging.SetupWithOptions(serviceName, env, logging.Options{
		Level: cfg.Logging.Level,
		File: logging.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		},
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	d, err := newDaemon(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Info("fundd started",
		slog.String("listen", cfg.ListenAddress),
		slog.String("data_dir", cfg.DataDir),
		slog.String("root", d.exec.Root().Hex()),
		slog.Bool("dev_mode", cfg.DevMode))
	if err := d.server.Serve(ctx, cfg.ListenAddress); err != nil {
		return err
	}
	logger.Info("fundd stopped")
	return nil
}

// daemon owns every long lived component. Close releases them in reverse
// order of construction.
type daemon struct {
	db      *storage.LevelDB
	exec    *core.Executor
	audit   *audit.Store
	journal *journal.Journal
	hooks   *webhooks.Dispatcher
	server  *rpc.Server
	closers []io.Closer
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (d *daemon, err error) {
	d = &daemon{}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}
	d.db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	d.closers = append(d.closers, closerFunc(func() error { d.db.Close(); return nil }))

	minDonation, err := cfg.MinDonationAmount()
	if err != nil {
		return nil, err
	}
	vault, err := cfg.VaultAccount()
	if err != nil {
		return nil, err
	}
	d.exec, err = core.NewExecutor(d.db, core.Options{Logger: logger, MinDonation: minDonation, Vault: vault})
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, closerFunc(func() error { d.exec.Close(); return nil }))

	genesis, err := genesisFrom(cfg)
	if err != nil {
		return nil, err
	}
	if len(genesis.Roles[access.RoleDefaultAdmin]) == 0 {
		logger.Warn("no DefaultAdmin configured; roles can only change through existing state")
	}
	if err := d.exec.Bootstrap(ctx, genesis); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	if dsn := strings.TrimSpace(cfg.Audit.DSN); dsn != "" {
		d.audit, err = audit.Open(dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("open audit index: %w", err)
		}
		d.closers = append(d.closers, d.audit)
		d.exec.AddSink(d.audit)
	}
	d.journal, err = journal.Open(filepath.Join(cfg.DataDir, "journal.db"))
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, d.journal)
	d.exec.AddSink(d.journal)
	d.exec.AddSink(observability.Events())

	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		opts := []webhooks.Option{webhooks.WithLogger(logger), webhooks.WithEventTypes(cfg.Webhook.Events...)}
		if cfg.Webhook.MaxRetries > 0 {
			opts = append(opts, webhooks.WithRetryPolicy(cfg.Webhook.MaxRetries+1, 0, 0))
		}
		d.hooks, err = webhooks.NewDispatcher(url, []byte(cfg.Webhook.Secret), opts...)
		if err != nil {
			return nil, fmt.Errorf("webhooks: %w", err)
		}
		d.closers = append(d.closers, closerFunc(func() error { d.hooks.Close(); return nil }))
		d.exec.AddSink(d.hooks)
	}

	rpcCfg := rpc.Config{
		Executor: d.exec,
		Logger:   logger,
		Auth: rpc.AuthConfig{
			Secret:    cfg.Auth.Secret(),
			Issuer:    cfg.Auth.Issuer,
			Audience:  cfg.Auth.Audience,
			ClockSkew: time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		RateLimit:   rpc.RateLimitConfig{RequestsPerSecond: cfg.RateLimit.RequestsPerSecond, Burst: cfg.RateLimit.Burst},
		DevMode:        cfg.DevMode,
		ServiceName:    serviceName,
		Journal:        d.journal,
		MaxConnections: cfg.RateLimit.MaxConnections,
	}
	if d.audit != nil {
		rpcCfg.Audit = d.audit
	}
	d.server, err = rpc.NewServer(rpcCfg)
	if err != nil {
		return nil, err
	}
	d.exec.AddSink(d.server.Hub())
	return d, nil
}

// genesisFrom turns the configured role grants and pause flag into the boot
// call applied on every start.
func genesisFrom(cfg *config.Config) (core.Genesis, error) {
	grants, err := cfg.RoleGrants()
	if err != nil {
		return core.Genesis{}, err
	}
	return core.Genesis{
		Roles:  grants,
		Paused: map[string]bool{crowdfund.ModuleName: cfg.Crowdfund.Paused},
	}, nil
}

func (d *daemon) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
	d.closers = nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
