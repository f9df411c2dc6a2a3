package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"

	"github.com/etitcombe/blogpom/config"
	"github.com/etitcombe/blogpom/db"
	"github.com/etitcombe/blogpom/flash"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := db.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	key, generated, err := cfg.Key()
	if err != nil {
		return err
	}
	if generated {
		logger.Warn("FLASH_KEY not set, using a random key for this process")
	}

	server, err := newServer(logger, store, flash.NewCodec(key), options{
		StaticDir:    cfg.StaticDir,
		Page:         cfg.Page(),
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		return err
	}

	ln, err := acquireListener(socketActivation{listeners: activation.Listeners}, tcpBind{addr: cfg.Addr()})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		ErrorLog:          server.errorLog,
		Handler:           server,
		ReadHeaderTimeout: time.Second * 5,
		WriteTimeout:      time.Second * 15,
		ReadTimeout:       time.Second * 15,
		IdleTimeout:       time.Second * 60,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			// Error from closing listeners, or context timeout:
			logger.Error("HTTP server Shutdown", "err", err)
		}
		close(idleConnsClosed)
	}()

	logger.Info("blogpom listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		// Error starting or closing listener:
		return fmt.Errorf("HTTP server Serve: %w", err)
	}

	<-idleConnsClosed
	return nil
}
