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

	"artboard/internal/api"
	"artboard/internal/auth"
	"artboard/internal/collab"
	"artboard/internal/config"
	"artboard/internal/db"
	"artboard/internal/repository"
	"artboard/internal/telemetry"
)

func main() {
	log.Println("starting artboard server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Tracing first so everything after it reports spans.
	jaegerShutdown, err := telemetry.InitJaeger("artboard", cfg.JaegerEndpoint)
	if err != nil {
		log.Printf("failed to initialize tracing: %v (continuing without it)", err)
		jaegerShutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			log.Printf("failed to shut down tracing: %v", err)
		}
	}()

	database, err := db.NewGorm(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	userRepo := repository.NewUserRepository(database.DB)
	canvasRepo := repository.NewCanvasRepository(database.DB)
	snapshotRepo := repository.NewSnapshotRepository(database.DB)

	tokens := auth.NewTokens(cfg.JWTSecret)

	// Live sync: snapshots flow through the bridge, sessions through the
	// registry, connections through the gate.
	bridge := collab.NewPersistenceBridge(canvasRepo, snapshotRepo)
	registry := collab.NewRegistry(bridge, cfg.DebounceFlush, cfg.MaxDebounceFlush)
	gate := collab.NewGate(tokens, canvasRepo)
	wsHandler := collab.NewWebSocketHandler(registry, gate)

	handler := api.NewHandler(userRepo, canvasRepo, snapshotRepo, tokens, cfg.SnapshotKeep)
	router := api.SetupRoutes(handler, tokens, wsHandler)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on http://%s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	// Flush every dirty document before the process exits.
	registry.Shutdown(ctx)

	log.Println("server shutdown complete")
}
