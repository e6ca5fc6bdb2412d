package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/quizbuzz/quizbuzz/internal/game"
	"github.com/quizbuzz/quizbuzz/internal/generator"
	"github.com/quizbuzz/quizbuzz/internal/room"
	"github.com/quizbuzz/quizbuzz/internal/roomcode"
	"github.com/quizbuzz/quizbuzz/internal/server"
	"github.com/quizbuzz/quizbuzz/internal/session"
)

// ServeCmd runs the trivia server
type ServeCmd struct {
	Addr   string `kong:"help='Listen address, overrides the config file'"`
	Config string `kong:"default='quizbuzz.hcl',help='Path to HCL config file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Seed   *int64 `kong:"help='Deterministic RNG seed for the bank generator (optional)'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Server.LogLevel, c.Debug)

	var seed int64
	if c.Seed != nil {
		seed = *c.Seed
		logger.Info("Using deterministic seed", "seed", seed)
	} else {
		seed = time.Now().UnixNano()
	}

	gen, err := buildGenerator(logger, cfg, seed)
	if err != nil {
		return err
	}

	clock := quartz.NewReal()
	sessions := session.NewManager(logger, clock)
	rooms := room.NewManager(logger)
	games := game.NewManager(logger, clock, rooms, gen)
	codes := roomcode.NewGenerator(cfg.Server.RoomCodeLength, nil)

	addr := cfg.ListenAddress()
	if c.Addr != "" {
		addr = c.Addr
	}

	srv := server.NewServer(addr, logger, sessions, rooms, codes)
	srv.SetOrchestrator(server.NewOrchestrator(
		logger, clock, sessions, rooms, games, cfg.Timings(), srv))

	logger.Info("Starting quizbuzz server",
		"addr", addr,
		"generator", cfg.Generator.Kind,
		"pick_delay", cfg.Game.PickDelaySeconds,
		"buzz_window", cfg.Game.BuzzWindowSeconds,
		"answer_window", cfg.Game.AnswerWindowSeconds)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("Shutting down", "signal", s)
		return srv.Stop()
	case err := <-serverErr:
		return err
	}
}

// buildGenerator selects the board content backend from config
func buildGenerator(logger *log.Logger, cfg *server.Config, seed int64) (game.Generator, error) {
	switch cfg.Generator.Kind {
	case "openai":
		apiKey := os.Getenv(cfg.Generator.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("generator kind openai requires %s to be set", cfg.Generator.APIKeyEnv)
		}
		return generator.NewLLMGenerator(logger, cfg.Generator.BaseURL, apiKey, cfg.Generator.Model), nil
	default:
		return generator.NewBankGenerator(seed), nil
	}
}

func setupLogger(level string, debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	if debug {
		logger.SetLevel(log.DebugLevel)
		return logger
	}
	if parsed, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(parsed)
	}
	return logger
}
