// Package server exposes the KanbanX REST API: board and task CRUD for
// humans, the agent work surface, and the conversational chat endpoint.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/auth"
	"github.com/kanbanx/kanbanx/internal/chat"
	"github.com/kanbanx/kanbanx/internal/config"
	"github.com/kanbanx/kanbanx/internal/llm"
	"github.com/rs/cors"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the API server.
type StartOpts struct {
	DB       *gorm.DB
	Config   *config.Config
	Tokens   *auth.Tokens
	Recorder *audit.Recorder
	LLM      *llm.Client // nil disables the model tier
	Out      io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("server: db is required")
	}
	if opts.Config == nil {
		return fmt.Errorf("server: config is required")
	}
	if opts.Tokens == nil {
		return fmt.Errorf("server: tokens are required")
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NewRecorder(nil)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, deps{
		db:         opts.DB,
		tokens:     opts.Tokens,
		recorder:   opts.Recorder,
		classifier: chat.NewComposite(opts.LLM),
		dispatcher: &chat.Dispatcher{
			DB:       opts.DB,
			Recorder: opts.Recorder,
			LLM:      opts.LLM,
		},
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   opts.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)

	addr := fmt.Sprintf(":%d", opts.Config.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "KanbanX API listening at http://localhost:%d\n", opts.Config.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
