// Package main is the entry point for the quickreply shell. It initializes
// all components and runs the main program loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"

	"quickreply/pkg/cli"
	"quickreply/pkg/config"
	"quickreply/pkg/log"
	"quickreply/pkg/session"
)

func main() {
	// Set up channel to receive interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Load configuration
	cfgPath := os.Getenv("QUICKREPLY_CONFIG")
	if cfgPath == "" {
		cfgPath = filepath.Join("data", "config.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := log.New(cfg.LogDir, log.ParseLevel(cfg.LogLevel), cfg.LogConsole)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Close(); err != nil {
			fmt.Printf("Failed to close logger: %v\n", err)
		}
	}()

	logger.Info(context.Background(), "Application started", log.Fields{"dataDir": cfg.DataDir})

	// Initialize session manager
	sessionManager, err := session.NewManager(cfg, logger)
	if err != nil {
		logger.Error(context.Background(), "Failed to initialize session manager", log.Fields{"error": err})
		os.Exit(1)
	}

	// Set up readline
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     filepath.Join(cfg.DataDir, ".quickreply_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		logger.Error(context.Background(), "Failed to initialize readline", log.Fields{"error": err})
		os.Exit(1)
	}
	defer rl.Close()

	shell := cli.NewCLI(sessionManager, rl, logger)

	// Select the configured default account, if any
	if cfg.DefaultAccount != "" {
		if err := shell.SelectAccount(cfg.DefaultAccount); err != nil {
			logger.Warn(context.Background(), "Failed to select default account", log.Fields{
				"account": cfg.DefaultAccount,
				"error":   err,
			})
		}
	}

	// Close readline on interrupt so the main loop unblocks
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal. Shutting down...")
		rl.Close()
	}()

	// Main program loop
	for {
		err := shell.Run()
		if err == nil {
			continue
		}
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		fmt.Printf("Error: %v\n", err)
	}

	logger.Info(context.Background(), "Application shutting down", nil)
	fmt.Println("Goodbye!")
}
