// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/callbox/internal/api/httpapi"
	"github.com/osa030/callbox/internal/app/admission"
	"github.com/osa030/callbox/internal/app/autoplay"
	"github.com/osa030/callbox/internal/app/notification"
	"github.com/osa030/callbox/internal/app/playback"
	"github.com/osa030/callbox/internal/app/registry"
	"github.com/osa030/callbox/internal/app/resume"
	"github.com/osa030/callbox/internal/infra/config"
	"github.com/osa030/callbox/internal/infra/logger"
	"github.com/osa030/callbox/internal/infra/source"
	"github.com/osa030/callbox/internal/infra/store"
	"github.com/osa030/callbox/internal/infra/voice"
)

var (
	app        = kingpin.New("callbox-server", "callbox playback session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-rules command
	listRulesCmd = app.Command("list-rules", "List available admission rules and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-rules command
	if command == listRulesCmd.FullCommand() {
		printRules()
		return
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config from %s: %v", *configPath, err)
	}

	// Initialize logger from config, command-line flags win
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	zlog.Info().Msgf("Loaded config from %s", *configPath)

	// Run server (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Snapshot store
	st, err := store.Open(cfg.Store.Backend, cfg.Store.Settings)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			zlog.Error().Msgf("Failed to close snapshot store: %v", err)
		}
	}()
	zlog.Info().Msgf("Snapshot store ready: backend=%s", cfg.Store.Backend)

	// Track source
	resolver, err := source.New(ctx, cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to create track source: %w", err)
	}
	zlog.Info().Msgf("Track source ready: provider=%s", resolver.Name())

	// Voice transport
	transport := voice.NewLoopback(0)
	defer transport.Close()

	// Event hub
	hub := notification.NewHub()
	defer hub.Close()

	// Admission rules
	enabled := make(map[string]map[string]any)
	for name, rule := range cfg.Admission {
		if rule.Enabled {
			enabled[name] = rule.Settings
		}
	}
	chain, err := admission.BuildChain(enabled)
	if err != nil {
		return fmt.Errorf("failed to build admission chain: %w", err)
	}

	// Session registry
	reg := registry.New(playback.Config{
		ProgressInterval: cfg.Playback.ProgressInterval(),
		AttachTimeout:    cfg.Playback.AttachTimeout(),
		HistorySize:      cfg.Playback.HistorySize,
	}, transport, st, hub, resolver, chain)

	// Forward end-of-stream reports from the transport
	go func() {
		for e := range transport.Events() {
			reg.NotifyTrackEnded(e.ChatID, e.TrackID)
		}
	}()

	// Resume persisted sessions before the API accepts commands
	if err := resume.New(st, reg, cfg.Resume.MaxSnapshotAge()).Run(ctx); err != nil {
		return fmt.Errorf("resume pass failed: %w", err)
	}

	// Autoplay watcher
	var watcher *autoplay.Watcher
	if cfg.Autoplay.Enabled {
		providers, err := autoplay.NewChainFromConfig(cfg.Autoplay)
		if err != nil {
			return fmt.Errorf("failed to build autoplay providers: %w", err)
		}
		watcher = autoplay.NewWatcher(reg, hub, providers, cfg.Autoplay)
		watcher.Start()
		defer watcher.Stop()
	}

	// HTTP API with h2c (HTTP/2 cleartext) support
	api := httpapi.New(reg, hub, cfg)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(api.Routes(), &http2.Server{}),
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()

	// Stop accepting new requests first
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	// Suspend sessions: final snapshots are written so the next start
	// can resume them
	if watcher != nil {
		watcher.Stop()
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to suspend sessions: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printRules prints available admission rules.
func printRules() {
	registered := admission.Registered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Admission Rules:")
	for _, name := range names {
		r := registered[name]()
		codes := strings.Join(r.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", r.Name(), r.Description(), codes)
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
