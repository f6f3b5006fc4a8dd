package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naiolune/zenithwell/internal/adapter/llm"
	"github.com/naiolune/zenithwell/internal/config"
	"github.com/naiolune/zenithwell/internal/ledger"
	"github.com/naiolune/zenithwell/internal/lifecycle"
	"github.com/naiolune/zenithwell/internal/presence"
	"github.com/naiolune/zenithwell/internal/prompt"
	"github.com/naiolune/zenithwell/internal/realtime"
	store "github.com/naiolune/zenithwell/internal/repository"
	"github.com/naiolune/zenithwell/internal/service"
	"github.com/naiolune/zenithwell/internal/toolexec"
	handler "github.com/naiolune/zenithwell/internal/transport/http"
	"github.com/naiolune/zenithwell/policy"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting session orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Model provider: %s (%s)", cfg.LLMBaseURL, cfg.LLMModel)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize realtime hub
	hub := realtime.NewHub()
	go hub.Run()

	// Initialize core components
	lc := lifecycle.New(db)
	svc := service.New(
		db,
		ledger.New(db),
		lc,
		presence.New(cfg.HeartbeatInterval),
		prompt.New(),
		toolexec.New(db, lc, policyEngine),
		llmClient,
		hub,
	)

	// Create the HTTP server
	e := handler.NewServer(svc, hub)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Orchestrator stopped")
}
