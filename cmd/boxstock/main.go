// Command boxstock is an interactive box inventory with best-fit purchasing
// and timed expiration of stale box types.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/boxstock/expiry"
	"github.com/wolfeidau/boxstock/inventory"
	"github.com/wolfeidau/boxstock/notify"
	"github.com/wolfeidau/boxstock/telemetry"
)

var version = "dev"

// CLI holds the command line flags. Every flag may also be set in the YAML
// configuration file using its flag name.
type CLI struct {
	Config kong.ConfigFlag `help:"YAML configuration file." short:"c"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error" env:"BOXSTOCK_LOG_LEVEL"`
	LogFormat string `help:"Log format (tint, text, json)." default:"tint" enum:"tint,text,json" env:"BOXSTOCK_LOG_FORMAT"`

	MaxPerBoxType int           `help:"Maximum boxes held per box type." default:"50"`
	MaxDivides    int           `help:"Maximum box types consumed by a single purchase." default:"3"`
	FitTolerance  float64       `help:"Largest accepted ratio between matched and requested dimensions." default:"1.5"`
	TTL           time.Duration `name:"ttl" help:"How long a box type stays in stock after it was last touched." default:"24h"`
	TouchOnAccess bool          `help:"Re-arm a box type's expiration on every supply and purchase."`

	SweepInterval time.Duration `help:"How often expired box types are swept." default:"3m"`
	SweepDelay    time.Duration `help:"Delay before the first sweep." default:"2m"`

	Yes             bool          `help:"Confirm every purchase offer without asking." short:"y"`
	QuestionTimeout time.Duration `help:"How long to wait for a purchase confirmation (0 waits forever)." default:"0s"`

	MetricsAddress string `help:"Address to serve Prometheus metrics on, empty disables." env:"BOXSTOCK_METRICS_ADDRESS"`
	OTLPEndpoint   string `name:"otlp-endpoint" help:"OTLP gRPC endpoint for metrics export, empty disables." env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("boxstock"),
		kong.Description("Interactive box inventory with best-fit purchasing and expiration."),
		kong.Configuration(yamlLoader, "/etc/boxstock.yaml", "~/.boxstock.yaml"),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(cli.Run())
}

// Run starts the inventory, the sweep scheduler and the interactive menu.
func (c *CLI) Run() error {
	logger, err := newLogger(os.Stderr, c.LogLevel, c.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceVersion:   version,
		OTLPEndpoint:     c.OTLPEndpoint,
		EnablePrometheus: c.MetricsAddress != "",
	})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			logger.Warn("failed to shut down metrics", "error", err)
		}
	}()

	console := notify.NewConsole(os.Stdin, os.Stdout, notify.WithQuestionTimeout(c.QuestionTimeout))
	var notifier inventory.Notifier = console
	if c.Yes {
		notifier = notify.NewAutoConfirm(console)
	}

	inv, err := inventory.New(c.inventoryConfig(logger), notifier)
	if err != nil {
		return err
	}

	sweeper := expiry.NewManager(inv, expiry.Config{
		Interval:     c.SweepInterval,
		StartupDelay: c.SweepDelay,
		Logger:       logger,
	})
	sweeper.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sweeper.Stop(stopCtx); err != nil {
			logger.Warn("failed to stop sweep manager", "error", err)
		}
	}()

	if c.MetricsAddress != "" {
		srv := startMetricsServer(c.MetricsAddress, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Debug("inventory ready",
		"max_per_box_type", c.MaxPerBoxType,
		"max_divides", c.MaxDivides,
		"fit_tolerance", c.FitTolerance,
		"ttl", c.TTL,
		"touch_on_access", c.TouchOnAccess,
	)

	m := &menu{
		inv:     inv,
		console: console,
		sweeper: sweeper,
		out:     os.Stdout,
		logger:  logger,
	}
	err = m.run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, notify.ErrNoAnswer) {
		return nil
	}
	return err
}

func (c *CLI) inventoryConfig(logger *slog.Logger) inventory.Config {
	cfg := inventory.DefaultConfig()
	cfg.MaxPerBoxType = c.MaxPerBoxType
	cfg.MaxDivides = c.MaxDivides
	cfg.FitTolerance = c.FitTolerance
	cfg.TTL = c.TTL
	cfg.TouchOnAccess = c.TouchOnAccess
	cfg.Logger = logger
	return cfg
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.PrometheusHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
