package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/engine"
	"github.com/spigell/interviewpilot/internal/identity"
	"github.com/spigell/interviewpilot/internal/logger"
	"github.com/spigell/interviewpilot/internal/secrets"
	"github.com/spigell/interviewpilot/internal/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interview HTTP service",
	Run: func(cmd *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (overrides http.listen)")
	viper.BindPFlag("http.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the interviewpilot", zap.String("version", version))

	resolver, err := newResolver(config.Auth)
	if err != nil {
		logger.Fatal("configuring authentication", zap.Error(err),
			zap.String("hint", "set auth.secret-file or the "+envPrefix+"_AUTH_SECRET environment variable"),
		)
	}

	svc, err := buildServices(ctx, config, logger, buildOptions{})
	if err != nil {
		logger.Fatal("building services", zap.Error(err))
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("closing services", zap.Error(err))
		}
	}()

	scheduler, err := scheduleSweep(svc.engine, config.Interview.SweepInterval, logger)
	if err != nil {
		logger.Fatal("scheduling session expiry", zap.Error(err))
	}
	if scheduler != nil {
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				logger.Warn("stopping scheduler", zap.Error(err))
			}
		}()
	}

	srv, err := server.New(config.HTTP, server.Deps{
		Engine:   svc.engine,
		Resolver: resolver,
		Checks:   svc.checks,
		Registry: svc.registry,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("building http server", zap.Error(err))
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Listen()
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down", zap.String("reason", "signal received"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}
}

func newResolver(cfg AuthConfig) (*identity.Resolver, error) {
	secret, err := loadAuthSecret(cfg)
	if err != nil {
		return nil, err
	}
	return identity.NewResolver(secret, cfg.Issuer)
}

func loadAuthSecret(cfg AuthConfig) (string, error) {
	return secrets.Load(secrets.Source{
		Name:  "jwt secret",
		File:  cfg.SecretFile,
		Value: cfg.Secret,
		Env:   envPrefix + "_AUTH_SECRET",
	})
}

// scheduleSweep runs Engine.ExpireStale every interval. It returns a nil
// scheduler when expiry is disabled.
func scheduleSweep(eng *engine.Engine, interval time.Duration, logger *zap.Logger) (gocron.Scheduler, error) {
	if eng.Config().MaxDuration <= 0 || interval <= 0 {
		logger.Info("stale session expiry disabled")
		return nil, nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := eng.ExpireStale(ctx); err != nil {
				logger.Warn("expire stale sessions", zap.Error(err))
			}
		}),
		gocron.WithName("expire-stale-sessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}

	scheduler.Start()
	logger.Info("stale session expiry scheduled",
		zap.Duration("interval", interval),
		zap.Duration("max_duration", eng.Config().MaxDuration),
	)
	return scheduler, nil
}
