package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/starx-project/starx/internal/api"
	"github.com/starx-project/starx/internal/cli"
	"github.com/starx-project/starx/internal/config"
	"github.com/starx-project/starx/internal/connector"
	"github.com/starx-project/starx/internal/db"
	"github.com/starx-project/starx/internal/events"
	"github.com/starx-project/starx/internal/metrics"
	"github.com/starx-project/starx/internal/scheduler"
	"github.com/starx-project/starx/internal/telemetry"
	"github.com/starx-project/starx/internal/transport"
	"github.com/starx-project/starx/internal/util"
)

func runCmd() *cobra.Command {
	var (
		configDir   string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			fmt.Println()
			return runDaemon(configDir, interactive)
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", config.DefaultConfigDir, "Configuration directory")
	cmd.Flags().BoolVar(&interactive, "console", true, "Read console commands from stdin")

	return cmd
}

func runDaemon(configDir string, interactive bool) error {
	// Defaults first, reconfigured once the config is loaded.
	if _, err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting starx")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCloser, err := util.InitLogger(cfg.GetLogging())
	if err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	} else {
		defer logCloser.Close()
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		if !interactive {
			return fmt.Errorf("configuration validation failed, please fix the errors above")
		}
		log.Info().Msg("launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	session := connector.New(sessionOptions(cfg.GetSession())...)
	bridge := connector.NewBridge(session, eventBus, cfg.GetSession().RequestTimeout())

	var (
		journal       *db.Journal
		journalReader cli.JournalReader
		apiJournal    api.JournalReader
		pruner        scheduler.Pruner
	)
	if jc := cfg.GetJournal(); jc.Enabled {
		journal, err = db.OpenJournal(jc.Path, jc.MaxBodyBytes)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open journal, journaling disabled")
		} else {
			defer journal.Close()
			journal.Attach(eventBus)
			journalReader, apiJournal, pruner = journal, journal, journal
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry, session.Stats)
	collector.Attach(eventBus)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetMQTT().Enabled {
		telemetry.AppVersion = version
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			mqttHandler = nil
		}
	}

	sched := scheduler.NewScheduler(cfg, pruner)

	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	var wg sync.WaitGroup

	if cfg.GetAPI().Enabled {
		apiServer := api.NewServer(cfg, api.Dependencies{
			Session: session,
			Relay:   bridge,
			Journal: apiJournal,
			Metrics: metricsHandler,
			Version: version,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	} else {
		log.Info().Msg("REST API disabled")
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Start(ctx)
	}()

	if interactive {
		console := cli.NewCLI(cfg, eventBus, session, bridge, journalReader, os.Stdout)
		// The console goroutine blocks on stdin and is not waited for.
		go console.Start(ctx, os.Stdin)
	}

	url := cfg.GetSession().URL
	log.Info().Str("url", url).Msg("connecting to server")
	if err := bridge.Connect(url); err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from console")
	}

	log.Info().Msg("initiating graceful shutdown...")

	session.Close()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last so the journal sees the final events.
	eventBus.Stop()

	log.Info().Msg("starx stopped")
	return nil
}

// sessionOptions maps the session section of the config onto client options.
func sessionOptions(sc config.SessionConfig) []connector.Option {
	opts := []connector.Option{
		connector.WithReconnect(sc.Reconnect),
		connector.WithMaxReconnectAttempts(sc.MaxReconnectAttempts),
		connector.WithReconnectionDelay(sc.ReconnectionDelay()),
		connector.WithMaxReconnectDelay(sc.MaxReconnectDelay()),
		connector.WithRequestTimeout(sc.RequestTimeout()),
		connector.WithClientInfo(sc.ClientType, sc.ClientVersion),
		connector.WithDialer(transport.NewDialer(transport.DefaultConfig())),
		connector.WithLogger(util.ComponentLogger("session")),
		connector.WithHandshakeCallback(func(user json.RawMessage) {
			if len(user) > 0 {
				log.Info().RawJSON("user", user).Msg("handshake user data")
			}
		}),
	}
	if len(sc.User) > 0 {
		opts = append(opts, connector.WithUser(sc.User))
	}
	return opts
}

// startWithRetry retries a listener start on bind errors with a fixed
// 3-second interval. It returns nil on success or the last error.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
