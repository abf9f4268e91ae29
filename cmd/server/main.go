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

	"github.com/Tyrowin/georelay/internal/relay"
	"github.com/Tyrowin/georelay/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	envPath := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := server.LoadDotEnv(*envPath); err != nil {
		slog.Warn("ignoring .env file", "error", err)
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	active := server.SetConfig(cfg)
	setupLogger(active.LogLevel)

	slog.Info("starting GeoRelay server",
		"port", active.Port,
		"static_dir", active.StaticDir,
		"views_dir", active.ViewsDir,
		"allowed_origins", active.AllowedOrigins,
	)

	views, err := server.NewViewRenderer(active.ViewsDir)
	if err != nil {
		slog.Error("failed to load views", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := views.Watch(ctx); err != nil {
			slog.Warn("view hot-reload disabled", "error", err)
		}
	}()

	hub := server.NewHub()
	rel := relay.New(hub)
	hub.Attach(rel)
	server.StartHub(hub)

	mux := server.SetupRoutes(hub, rel, views, active.StaticDir)
	httpServer := server.CreateServer(active.Port, mux)

	go func() {
		if err := server.StartServer(httpServer); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("GeoRelay server shutting down")

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		slog.Error("HTTP shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		slog.Error("hub shutdown incomplete", "error", err)
	}
}

func setupLogger(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: server.ParseLogLevel(level),
	})))
}
