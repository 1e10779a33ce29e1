package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dungeon-club/internal/account"
	"github.com/DoyleJ11/dungeon-club/internal/asset"
	"github.com/DoyleJ11/dungeon-club/internal/config"
	"github.com/DoyleJ11/dungeon-club/internal/httpapi"
	"github.com/DoyleJ11/dungeon-club/internal/logging"
	"github.com/DoyleJ11/dungeon-club/internal/mail"
	"github.com/DoyleJ11/dungeon-club/internal/server"
	"github.com/DoyleJ11/dungeon-club/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	mailer, err := mail.New(cfg.Mail, log)
	if err != nil {
		return err
	}

	s := server.New(context.Background(), server.Deps{
		Store:  st,
		Tokens: account.NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Assets: asset.NewManager(cfg.AssetDir, cfg.MaxUploadBytes, log),
		Mail:   mailer,
		WS:     cfg.WS.Options(),
	}, log)

	httpSrv := &http.Server{Addr: cfg.Addr, Handler: httpapi.SetupRoutes(s, log)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("database", cfg.DatabaseDriver))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		// Websocket handlers are hijacked, so the hub closes them before the HTTP server drains.
		return multierr.Combine(s.Shutdown(shutdownCtx), httpSrv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
