// Command medalert-sandbox starts the in-memory MedAlert backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/and161185/medalert/internal/config"
	"github.com/and161185/medalert/internal/limiter"
	"github.com/and161185/medalert/internal/sandbox"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewSandboxViper()
	cmd := &cobra.Command{
		Use:           "medalert-sandbox",
		Short:         "In-memory MedAlert backend for local development",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadSandbox(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("jwt-key", "", "HS256 signing key (required)")
	f.Duration("access-ttl", 24*time.Hour, "access token TTL")
	f.String("tls-cert", "", "TLS certificate (PEM)")
	f.String("tls-key", "", "TLS private key (PEM)")
	f.Int("login-max-fails", 5, "failed logins before a block")
	f.Duration("login-window", 15*time.Minute, "failed login window")
	f.Duration("login-block-for", 15*time.Minute, "login block duration")
	f.Bool("seed", true, "create demo accounts and caretakers")
	f.String("log-level", "info", "debug|info|warn|error")
	bindFlags(v, cmd)
	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for _, name := range []string{
		"addr", "jwt-key", "access-ttl", "tls-cert", "tls-key",
		"login-max-fails", "login-window", "login-block-for", "seed", "log-level",
	} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), cmd.Flags().Lookup(name))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Sandbox) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	store := sandbox.NewStore()
	lim := limiter.NewMemory(cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
	auth := sandbox.NewAuthService(store, []byte(cfg.JWTKey), cfg.AccessTTL, lim)
	if cfg.Seed {
		if err := sandbox.Seed(ctx, auth); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("seeded demo patient", zap.String("email", sandbox.DemoEmail))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           sandbox.New(auth, store, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCert != "" {
			logger.Info("listening (TLS)", zap.String("addr", cfg.Addr))
			errCh <- srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			return
		}
		logger.Warn("listening without TLS", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}

	logger.Info("shutdown complete")
	return nil
}
