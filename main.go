package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wardsight/occupancy.report/internal/api"
	"github.com/wardsight/occupancy.report/internal/config"
	"github.com/wardsight/occupancy.report/internal/db"
	"github.com/wardsight/occupancy.report/internal/monitor"
	"github.com/wardsight/occupancy.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "occupancy.db", "Path to sqlite db")
	configPath = flag.String("config", "", "Optional tuning config (JSON)")
)

func main() {
	flag.Parse()

	// Subcommands (currently only "migrate") run and exit without
	// starting the server.
	if flag.NArg() > 0 {
		if err := runCommand(*dbPath, flag.Args()); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("occupancy-report %s (%s)", version.Version, version.GitSHA)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// JSON API for precomputed runs
		mux.Handle("/api/", api.NewServer(database, tuning).ServeMux())

		// debugging chart views (no auth)
		mux.Handle("/charts/", monitor.NewChartServer(database).ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
