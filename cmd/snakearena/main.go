package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snakearena/server/internal/config"
	"github.com/snakearena/server/internal/data"
	"github.com/snakearena/server/internal/gateway"
	"github.com/snakearena/server/internal/room"
	"github.com/snakearena/server/internal/scripting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("SNAKEARENA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath, os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting",
		zap.String("server", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("chat", cfg.Features.Chat),
		zap.Bool("powerups", cfg.Features.Powerups),
		zap.Bool("accessibility", cfg.Features.Accessibility))

	npcTable, err := data.LoadNpcTable(filepath.Join(cfg.Server.DataDir, "npc_list.yaml"))
	if err != nil {
		log.Warn("npc roster not loaded, using built-in defaults", zap.Error(err))
		npcTable = data.DefaultNpcTable()
	}
	log.Info("npc roster loaded", zap.Int("npcs", npcTable.Count()))

	scripts, err := scripting.NewEngine(cfg.Server.ScriptDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer scripts.Close()

	sessions := room.NewSessionRegistry(log, nowMs)
	rooms := room.NewManager(cfg, npcTable, scripts, sessions, log)
	srv := gateway.NewServer(cfg, rooms, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeperStop := make(chan struct{})
	go sessions.RunSweeper(sweeperStop)
	defer close(sweeperStop)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-shutdownCh
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	return srv.Run(ctx)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
