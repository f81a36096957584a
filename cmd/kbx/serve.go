package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/config"
	"github.com/kanbanx/kanbanx/internal/db"
	"github.com/kanbanx/kanbanx/internal/lease"
	"github.com/kanbanx/kanbanx/internal/llm"
	"github.com/kanbanx/kanbanx/internal/notify"
	"github.com/kanbanx/kanbanx/internal/server"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the KanbanX API server",
		Long:  "Migrates the store, seeds the admin user and chat agent, starts the stale-owner sweeper, and serves the REST API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to KanbanX config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	// A missing .env is fine; environment variables win either way.
	godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Port = port
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	if err := db.SeedAdmin(gormDB); err != nil {
		return err
	}
	if _, err := db.SeedChatAgent(gormDB); err != nil {
		return err
	}

	tokens, err := auth.NewTokens(auth.TokensOpts{
		Secret:   cfg.Auth.JWTSecret,
		HumanTTL: cfg.Auth.HumanTokenTTL,
		AgentTTL: cfg.Auth.AgentTokenTTL,
	})
	if err != nil {
		return err
	}

	fanout, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}
	var notifier audit.Notifier
	if fanout.Enabled() {
		notifier = fanout
	}
	recorder := audit.NewRecorder(notifier)

	var llmClient *llm.Client
	if cfg.LLMEnabled() {
		llmClient, err = llm.New(llm.ClientOpts{
			Endpoint:   cfg.LLM.Endpoint,
			APIKey:     cfg.LLM.APIKey,
			Deployment: cfg.LLM.Deployment,
			APIVersion: cfg.LLM.APIVersion,
			Timeout:    cfg.LLM.Timeout,
		})
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "No LLM configured; chat uses rule-based parsing and templated replies")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	startSweeper(ctx, gormDB, cfg)

	return server.Start(ctx, server.StartOpts{
		DB:       gormDB,
		Config:   cfg,
		Tokens:   tokens,
		Recorder: recorder,
		LLM:      llmClient,
		Out:      cmd.OutOrStdout(),
	})
}

func startSweeper(ctx context.Context, gormDB *gorm.DB, cfg *config.Config) {
	if !cfg.Sweep.Enabled {
		return
	}
	sweeper, err := lease.NewSweeper(gormDB, cfg.Sweep.Interval)
	if err != nil {
		log.Printf("serve: sweeper disabled: %v", err)
		return
	}
	go func() {
		if err := sweeper.Start(ctx); err != nil {
			log.Printf("serve: sweeper stopped: %v", err)
		}
	}()
}
