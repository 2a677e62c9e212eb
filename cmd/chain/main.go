package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/japaniel/chain/pkg/chat"
	"github.com/japaniel/chain/pkg/config"
	"github.com/japaniel/chain/pkg/db"
	"github.com/japaniel/chain/pkg/logger"
	"github.com/japaniel/chain/pkg/metrics"
	"github.com/japaniel/chain/pkg/morph"
	"github.com/japaniel/chain/pkg/server"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	configFlag := flag.String("config", "", "Path to a YAML config file (default: chain.yaml when present)")
	dbFlag := flag.String("db", "", "Path to SQLite database (overrides config)")
	modeFlag := flag.String("mode", "talk", "init | talk | tweet | serve")
	nFlag := flag.Int("n", 10, "Number of texts to generate in tweet mode")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbFlag != "" {
		cfg.DBPath = *dbFlag
	}

	if err := logger.Init(cfg.Env); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *modeFlag, *nFlag, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("chain failed", zap.String("mode", *modeFlag), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, mode string, n int, log *zap.Logger) error {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()
	// One connection keeps every mutation on a single writer.
	conn.SetMaxOpenConns(1)

	if err := db.InitDB(conn); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	log.Debug("database initialized", zap.String("path", cfg.DBPath))

	analyzer, err := morph.NewAnalyzer()
	if err != nil {
		return fmt.Errorf("create analyzer: %w", err)
	}

	collector := metrics.NewCollector("chain")
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	session := chat.NewSession(conn, cfg, analyzer, r, collector, log)

	switch mode {
	case "init":
		return session.Initialize(ctx)
	case "talk":
		return session.Run(ctx, os.Stdin, os.Stdout)
	case "tweet":
		tweets, err := session.Tweets(n)
		for _, t := range tweets {
			fmt.Println(t)
		}
		return err
	case "serve":
		return serve(ctx, cfg, session, collector, log)
	}
	return fmt.Errorf("unknown mode %q", mode)
}

func serve(ctx context.Context, cfg *config.Config, session *chat.Session, collector *metrics.Collector, log *zap.Logger) error {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(session, collector, log).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	log.Info("Server started", zap.String("addr", cfg.HTTPAddr))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	// Topic scores catch up with everything said while serving.
	if err := session.Sleep(); err != nil {
		return err
	}
	log.Info("Server exited")
	return nil
}
