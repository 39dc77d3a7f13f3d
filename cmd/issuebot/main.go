package main

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gotohe11/issuebot/config"
	"github.com/gotohe11/issuebot/internal/api"
	"github.com/gotohe11/issuebot/internal/bot"
	"github.com/gotohe11/issuebot/internal/db"
	"github.com/gotohe11/issuebot/internal/engine"
	"github.com/gotohe11/issuebot/internal/router"
	"github.com/gotohe11/issuebot/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	flag.Parse()

	if *createConfig {
		if err := config.CreateDefault(*configPath); err != nil {
			log.Fatalf("Failed to create default configuration: %v", err)
		}
		log.Printf("Created default configuration at %s", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	database, err := openDatabase(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to connect to database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Initialize(); err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	client := api.NewGitHubClient(cfg.GitHubToken)
	eng := engine.New(client, database)
	rtr := router.New(eng, client, database)

	tgBot, err := bot.New(cfg.TelegramToken, rtr, database)
	if err != nil {
		slog.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}
	slog.Info("telegram bot started", "username", tgBot.Username())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	sched := scheduler.New(eng, database, tgBot)
	sched.CheckNow(ctx)
	if err := sched.Start(ctx, cfg.CheckInterval()); err != nil {
		slog.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	tgBot.Run(ctx)
}

// openDatabase retries the initial connection for a short while so the bot
// survives the database volume coming up slightly after it.
func openDatabase(path string) (*db.DB, error) {
	return retry.DoWithData(
		func() (*db.DB, error) { return db.New(path) },
		retry.Attempts(5),
		retry.Delay(2*time.Second),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("database connection failed", "attempt", n+1, "error", err)
		}),
	)
}

func setupLogging(cfg *config.Config) {
	var out io.Writer = os.Stderr
	if cfg.LogPath != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}
