/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Read config from environment, command-line flags override
  2. Initialize SQLite store
  3. Build handler, processor and router
  4. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the processor, drain active requests (30s
  timeout), close the database, exit.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fintrack/schedule-engine/api"
	"github.com/fintrack/schedule-engine/config"
	"github.com/fintrack/schedule-engine/rates"
	"github.com/fintrack/schedule-engine/store/sqlite"
)

func main() {
	cfg := config.FromEnvironment()

	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	baseCurrency := flag.String("currency", cfg.BaseCurrency, "Base currency for valuation totals")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	rateTable := rates.New()

	handler := api.NewHandler(store, rateTable, log, *baseCurrency)

	processor := api.NewProcessor(store, log)
	processor.CheckInterval = cfg.ProcessorInterval
	handler.Processor = processor
	processor.Start()
	defer processor.Stop()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}

	log.Info("server stopped")
}
