package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	httpAdapter "github.com/iho/paywatch/internal/adapter/http"
	"github.com/iho/paywatch/internal/adapter/mail"
	"github.com/iho/paywatch/internal/adapter/render"
	postgresRepo "github.com/iho/paywatch/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/paywatch/internal/adapter/repository/redis"
	"github.com/iho/paywatch/internal/infrastructure/config"
	"github.com/iho/paywatch/internal/infrastructure/logger"
	"github.com/iho/paywatch/internal/infrastructure/metrics"
	"github.com/iho/paywatch/internal/infrastructure/postgres"
	"github.com/iho/paywatch/internal/infrastructure/redis"
	"github.com/iho/paywatch/internal/usecase"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "paywatch",
		Short: "Bank movement reconciliation and invoice reminders",
		Long: `paywatch sweeps a notification mailbox for bank movement emails,
matches incoming payments against open invoices and escalates
payment reminders for invoices past due.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newReconcileCmd(),
		newAlertsCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newMovementCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired collaborators shared by the commands.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	ingest *usecase.IngestUseCase
	alerts *usecase.AlertUseCase
	recon  *usecase.ReconcileUseCase

	pool        *pgxpool.Pool
	redisClient *goredis.Client
	close       func()
}

// buildApp loads configuration and wires the full dependency graph. The
// returned close function releases the database and cache connections.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	closers := []func(){pool.Close}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	// Redis is a fast-path dedup cache only; a missing instance degrades to
	// database dedup instead of failing startup.
	var seen usecase.SeenStore
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, dedup falls back to the database")
	} else {
		closers = append(closers, func() { _ = redisClient.Close() })
		seen = redisRepo.NewSeenStore(redisClient)
	}

	renderer, err := render.NewFileRenderer(cfg.DocumentDir)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("document renderer: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}

	mailbox := mail.NewIMAPMailbox(mail.IMAPConfig{
		Address:  cfg.IMAPAddress,
		Username: cfg.IMAPUsername,
		Password: cfg.IMAPPassword,
		Folder:   cfg.IMAPFolder,
	}, log)

	txManager := postgresRepo.NewTxManager(pool)
	movementRepo := postgresRepo.NewMovementRepository(pool)
	invoiceRepo := postgresRepo.NewInvoiceRepository(pool)
	historyRepo := postgresRepo.NewHistoryRepository(pool)
	currencyRepo := postgresRepo.NewCurrencyRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(log)

	recon := usecase.NewReconcileUseCase(
		txManager, movementRepo, invoiceRepo, historyRepo, currencyRepo,
		renderer, idGen, retrier, cfg.BankAccountName, log,
	)

	ingest := usecase.NewIngestUseCase(mailbox, recon, seen, usecase.IngestConfig{
		AllowedSenders: cfg.AllowedSenders,
		SearchWindow:   cfg.SearchWindow,
		SeenTTL:        cfg.SeenTTL,
	}, log)

	alerts := usecase.NewAlertUseCase(
		txManager, invoiceRepo, historyRepo, renderer, mailer, idGen,
		usecase.AlertConfig{
			FirstOffset:    cfg.AlertFirstOffset,
			SecondOffset:   cfg.AlertSecondOffset,
			ThirdOffset:    cfg.AlertThirdOffset,
			FirstGrace:     cfg.AlertFirstGrace,
			SecondGrace:    cfg.AlertSecondGrace,
			ThirdGrace:     cfg.AlertThirdGrace,
			CopyRecipients: cfg.CopyRecipients,
			FromAddress:    cfg.FromAddress,
			ReplyTo:        cfg.ReplyTo,
		}, log,
	)

	return &app{
		cfg:         cfg,
		log:         log,
		ingest:      ingest,
		alerts:      alerts,
		recon:       recon,
		pool:        pool,
		redisClient: redisClient,
		close:       closeAll,
	}, nil
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Sweep the notification mailbox once and reconcile movements",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.ingest.Sweep(ctx)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Run one reminder escalation pass over unpaid invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.alerts.Run(ctx)
			if err != nil {
				return err
			}

			report.Render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run sweeps and escalation on timers, with ops endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return runServe(ctx, a)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, log)
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return postgres.RunMigrationsDown(cfg.DatabaseURL, cfg.MigrationsPath, log)
		},
	})

	return migrateCmd
}

func newMovementCmd() *cobra.Command {
	movementCmd := &cobra.Command{
		Use:   "movement",
		Short: "Operator actions on recorded movements",
	}

	movementCmd.AddCommand(&cobra.Command{
		Use:   "done <movement-id>",
		Short: "Close a reviewed movement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			movement, err := a.recon.MarkDone(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "movement %s marked %s\n", movement.ID, movement.Status)
			return nil
		},
	})

	return movementCmd
}

// runServe drives the sweep and escalation tickers and serves the ops
// endpoints until the context is cancelled.
func runServe(ctx context.Context, a *app) error {
	m := metrics.New()

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Pool:        a.pool,
		RedisClient: a.redisClient,
	})

	server := &http.Server{
		Addr:         ":" + a.cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  a.cfg.HTTPReadTimeout,
		WriteTimeout: a.cfg.HTTPWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("port", a.cfg.HTTPPort).Msg("ops endpoints listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sweepTicker := time.NewTicker(a.cfg.SweepInterval)
	defer sweepTicker.Stop()
	alertTicker := time.NewTicker(a.cfg.AlertInterval)
	defer alertTicker.Stop()

	runSweep(ctx, a, m)

	for {
		select {
		case <-sweepTicker.C:
			runSweep(ctx, a, m)
		case <-alertTicker.C:
			runAlerts(ctx, a, m)
		case err := <-errCh:
			return fmt.Errorf("ops server: %w", err)
		case <-ctx.Done():
			a.log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}
}

func runSweep(ctx context.Context, a *app, m *metrics.Metrics) {
	start := time.Now()

	report, err := a.ingest.Sweep(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("mailbox sweep failed")
		m.SweepFailures.WithLabelValues("sweep").Inc()
		return
	}

	m.SweepDuration.Observe(time.Since(start).Seconds())
	m.SweepsTotal.Inc()
	for status, n := range report.ByStatus {
		m.MovementsProcessed.WithLabelValues(string(status)).Add(float64(n))
	}
	m.SweepFailures.WithLabelValues("fetch").Add(float64(report.FetchErrors))
	m.SweepFailures.WithLabelValues("parse").Add(float64(report.ParseFailures))
	m.SweepFailures.WithLabelValues("reconcile").Add(float64(report.ReconcileErrors))

	a.log.Info().
		Int("messages", report.Messages).
		Int("blocks", report.Blocks).
		Int("duplicates", report.Duplicates).
		Msg("mailbox sweep finished")
}

func runAlerts(ctx context.Context, a *app, m *metrics.Metrics) {
	start := time.Now()

	report, err := a.alerts.Run(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("escalation run failed")
		return
	}

	m.AlertDuration.Observe(time.Since(start).Seconds())
	m.AlertRuns.Inc()
	m.AlertErrors.Add(float64(report.Errors))
	for _, row := range report.Rows {
		switch row.Outcome {
		case usecase.OutcomeAlertOne, usecase.OutcomeAlertTwo, usecase.OutcomeAlertThree:
			m.AlertsFired.WithLabelValues(string(row.Outcome)).Inc()
		}
	}

	a.log.Info().
		Int("fired", report.Fired).
		Int("waiting", report.Waiting).
		Int("errors", report.Errors).
		Msg("escalation run finished")
}
