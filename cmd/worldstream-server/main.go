package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/worldstream/server/internal/api"
	"github.com/worldstream/server/internal/config"
	"github.com/worldstream/server/internal/database"
)

// main starts the worldstream server: the layout archive, the session
// registry and its idle sweeper, and the HTTP/WebSocket API.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if closeLog := setupLogging(cfg.Logging); closeLog != nil {
		defer closeLog()
	}

	ctx, cancel := signalContext()
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := database.Open(openCtx, cfg.Database.Driver, cfg.Database.DatabaseURL(), database.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	openCancel()
	if err != nil {
		log.Fatalf("Failed to open layout archive: %v", err)
	}
	defer db.Close()

	svc := api.NewServices(cfg, db)
	go svc.Registry.Run(ctx, sweepInterval(cfg.Streaming.SessionIdle))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(svc),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		log.Printf("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		// Hijacked stream connections are not tracked by Shutdown.
		svc.Hub.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("worldstream server starting on %s (env=%s, db=%s, strategy=%s)",
		srv.Addr, cfg.Server.Environment, cfg.Database.Driver, cfg.Streaming.Strategy)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	svc.Registry.CloseAll()
}

// setupLogging applies the log level and optional output file. The returned
// function closes the file.
func setupLogging(cfg config.LoggingConfig) func() {
	if cfg.IsDebug() {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	if cfg.OutputPath == "" {
		return nil
	}
	f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("Warning: cannot open log file %s: %v", cfg.OutputPath, err)
		return nil
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() { _ = f.Close() }
}

// sweepInterval checks for idle sessions a few times per idle period.
func sweepInterval(idle time.Duration) time.Duration {
	if idle <= 0 {
		return time.Minute
	}
	return max(idle/4, time.Second)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
