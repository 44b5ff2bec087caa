package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/66mmakid99/puppeteer-screenshot-api/internal/api"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/capture"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/config"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/controller"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/netutil"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/session"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/snapshot"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("config loaded",
		"bind_addr", cfg.BindAddr,
		"nav_timeout_ms", cfg.NavTimeoutMS,
		"settle_ms", cfg.SettleMS,
		"jpeg_quality", cfg.JPEGQuality,
		"snapshot_dir", cfg.SnapshotDir,
		"headless", cfg.Headless,
		"log_level", cfg.LogLevel,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	sessions := session.NewManager(cfg)
	captures := capture.NewController(sessions, cfg)

	var snaps *snapshot.Store
	if cfg.SnapshotDir != "" {
		snaps, err = snapshot.NewStore(cfg.SnapshotDir)
		if err != nil {
			slog.Error("failed to open snapshot store", "dir", cfg.SnapshotDir, "error", err)
			os.Exit(1)
		}
	}

	svc := controller.NewService(captures, sessions, snaps, cfg)
	h := api.NewServer(svc, cfg)

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("screenshot api listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := sessions.Shutdown(ctx); err != nil {
		slog.Error("session shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
