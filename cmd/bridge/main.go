package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/addis-traffic/sumo-bridge/bridge"
	"github.com/addis-traffic/sumo-bridge/config"
	"github.com/addis-traffic/sumo-bridge/traci"
)

func setupLogger(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	configPath := flag.String("config", "", "path to the bridge TOML config")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("Error loading config", "path", *configPath, "error", err.Error())
			os.Exit(1)
		}
		cfg = loaded
	}
	setupLogger(cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := traci.NewClient(traci.ClientOptions{RequestTimeout: cfg.RequestTimeout})
	go func() {
		for warn := range client.Warnings() {
			slog.Warn("Lenient decode in SUMO response",
				"variable", warn.Variable, "object", warn.ObjectID, "reason", warn.Reason)
		}
	}()

	if cfg.ConnectOnStart {
		if err := client.Connect(ctx, cfg.SumoAddr()); err != nil {
			slog.Error("Error connecting to SUMO, continuing disconnected",
				"addr", cfg.SumoAddr(), "error", err.Error())
		} else {
			slog.Info("Connected to SUMO", "addr", cfg.SumoAddr(), "version", client.ServerVersion())
		}
	}

	hub := bridge.NewHub()
	poller := bridge.NewPoller(client, cfg.PollInterval)
	poller.OnSnapshot(func(snap *bridge.Snapshot) {
		hub.Broadcast(snap)
	})
	go poller.Run(ctx)

	srv := bridge.NewServer(client, poller, hub, cfg.SumoAddr())

	if cfg.MCPEnabled {
		mcpServer := bridge.NewMCPServer(srv)
		go func() {
			if err := mcpServer.Run(); err != nil {
				slog.Error("Error running MCP server", "error", err.Error())
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: srv.Routes(),
	}
	go func() {
		slog.Info("Bridge listening", "addr", cfg.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Error starting HTTP server", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down bridge")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down HTTP server", "error", err.Error())
	}
	hub.Close()
	if err := client.Disconnect(); err != nil {
		slog.Error("Error disconnecting from SUMO", "error", err.Error())
	}
}
