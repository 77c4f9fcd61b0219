package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"pressiotrack/internal/auth"
	"pressiotrack/internal/config"
	"pressiotrack/internal/handler"
	"pressiotrack/internal/mail"
	"pressiotrack/internal/metrics"
	"pressiotrack/internal/service"
	"pressiotrack/internal/storage"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const (
	driverPostgres = "postgres"
	driverMemory   = "memory"
)

func main() {
	//PARSE ARGS
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the YAML config file")

	flag.Parse()
	if configPath == "" {
		log.Fatal("failed get config path from flags")
	}

	cfg := config.MustLoadConfig(configPath)

	//INIT LOGGER
	lgr := setupLogger(cfg.Env)
	lgr.Info("starting pressiotrack", slog.String("env", cfg.Env))

	if err := run(cfg, lgr); err != nil {
		lgr.Error("pressiotrack stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	lgr.Info("pressiotrack stopped")
}

func run(cfg *config.Config, lgr *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//INIT DB
	store, err := setupStorage(ctx, cfg.DB, lgr)
	if err != nil {
		return err
	}
	defer store.Close()

	//INIT MAIL
	sender, err := setupSender(cfg.Mail, lgr)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notifier := mail.NewNotifier(sender, lgr, m,
		mail.WithMaxTries(cfg.Mail.MaxTries),
		mail.WithSendTimeout(cfg.Mail.SendTimeout),
	)

	srvc := service.NewService(service.Deps{
		Storage:  store,
		Signer:   auth.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.InviteTTL),
		Notifier: notifier,
		Composer: mail.NewComposer(cfg.Mail.FrontendURL, cfg.Auth.InviteTTL, cfg.Auth.ResetTokenTTL),
		Metrics:  m,
		Log:      lgr,
		ResetTTL: cfg.Auth.ResetTokenTTL,
	})

	//INIT SERVER
	if cfg.Env != envLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	h := handler.NewHandler(srvc, lgr, handler.Options{
		AllowedOrigins: cfg.HTTPServer.AllowedOrigins,
		SecureCookies:  cfg.HTTPServer.SecureCookies,
		Gatherer:       reg,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      h.InitRoutes(),
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lgr.Info("http server listening", slog.String("address", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		lgr.Info("shutting down http server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)

		// Requests are drained; let detached emails finish before the
		// storage is closed.
		notifier.Wait()

		return err
	})

	return g.Wait()
}

func setupStorage(ctx context.Context, cfg config.DB, lgr *slog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case driverMemory:
		lgr.Warn("using in-memory storage, data is lost on restart")

		return storage.NewMemoryStorage(), nil
	case driverPostgres:
		pg, err := storage.NewPostgresStorage(ctx, cfg.DbURL)
		if err != nil {
			return nil, err
		}

		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}

		return pg, nil
	default:
		return nil, errors.New("unknown db driver " + cfg.Driver)
	}
}

func setupSender(cfg config.Mail, lgr *slog.Logger) (mail.Sender, error) {
	if cfg.Host == "" {
		lgr.Warn("mail host not configured, emails will only be logged")

		return mail.NewLogSender(lgr), nil
	}

	return mail.NewSMTPSender(cfg)
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
