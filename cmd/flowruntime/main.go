// Package main implements the flowruntime process entry point: it wires
// configuration, the component registry, the graph, the scheduler, the
// metrics engine, and the control surface together, then runs until a
// shutdown signal arrives.
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/flowruntime/flowruntime/component"
	"github.com/flowruntime/flowruntime/components"
	"github.com/flowruntime/flowruntime/config"
	"github.com/flowruntime/flowruntime/control"
	"github.com/flowruntime/flowruntime/graph"
	"github.com/flowruntime/flowruntime/metric"
	"github.com/flowruntime/flowruntime/pkg/acme"
	runtimepkg "github.com/flowruntime/flowruntime/runtime"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("flowruntime exited with an error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("flowruntime version %s (%s)\n", Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting flowruntime", "version", Version, "build_time", BuildTime)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	registry := component.NewRegistry()
	if err := components.RegisterReference(registry); err != nil {
		return fmt.Errorf("register reference components: %w", err)
	}
	if err := components.RegisterOpenAI(registry); err != nil {
		return fmt.Errorf("register openai components: %w", err)
	}
	logger.Info("component factories registered", "count", len(registry.List()))

	g := graph.New()
	sched := runtimepkg.New(g, logger)
	metricsRegistry := metric.NewRegistry()
	engine := metric.NewEngine(g, sched, metricsRegistry, cfg.Runtime.MetricsInterval)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	server := control.NewServer(control.Deps{
		Registry:    registry,
		Graph:       g,
		Scheduler:   sched,
		Engine:      engine,
		Metrics:     metricsRegistry,
		Logger:      logger,
		BaseContext: signalCtx,
	})

	go engine.Run(signalCtx)

	addr := cfg.Listen.Address
	if cliCfg.ListenAddr != "" {
		addr = cliCfg.ListenAddr
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("control surface listening", "address", addr, "tls", cfg.TLS.Enabled)
		errCh <- serve(signalCtx, server, cfg, addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control surface: %w", err)
		}
	case <-signalCtx.Done():
		logger.Info("received shutdown signal")
	}

	sched.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.StopTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("flowruntime shutdown complete")
	return nil
}

// serve runs the control surface's HTTP(S) listener until ctx is
// cancelled, provisioning a certificate via ACME first when configured.
func serve(ctx context.Context, server *control.Server, cfg *config.Config, addr string) error {
	if !cfg.TLS.Enabled {
		return server.ListenAndServe(ctx, addr)
	}
	if !cfg.TLS.ACME.Enabled {
		return server.ListenAndServeTLSFile(ctx, addr, cfg.TLS.CertFile, cfg.TLS.KeyFile)
	}

	client, err := acme.NewClient(acme.Config{
		DirectoryURL: cfg.TLS.ACME.CADirURL,
		Email:        cfg.TLS.ACME.Email,
		Domains:      cfg.TLS.ACME.Domains,
		StoragePath:  cfg.TLS.ACME.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("acme client: %w", err)
	}
	cert, err := client.ObtainCertificate()
	if err != nil {
		return fmt.Errorf("obtain certificate: %w", err)
	}
	return server.ListenAndServeTLS(ctx, addr, &tls.Config{Certificates: []tls.Certificate{*cert}})
}

// loadConfig reads a JSON config file when one is given, layering it
// over config.Default() the way the rest of the stack treats its own
// config file as an override of built-in defaults, falling back to
// Default() entirely when no path is given.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg := config.Default()
	if cli.ConfigPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(cli.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
