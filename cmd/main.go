package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/credential-payments/internal/api"
	"github.com/akylbek/payment-system/credential-payments/internal/config"
	"github.com/akylbek/payment-system/credential-payments/internal/interfaces"
	"github.com/akylbek/payment-system/credential-payments/internal/ledger"
	"github.com/akylbek/payment-system/credential-payments/internal/lock"
	"github.com/akylbek/payment-system/credential-payments/internal/models"
	"github.com/akylbek/payment-system/credential-payments/internal/notifier"
	"github.com/akylbek/payment-system/credential-payments/internal/publisher"
	"github.com/akylbek/payment-system/credential-payments/internal/repository"
	"github.com/akylbek/payment-system/credential-payments/internal/scheduler"
	"github.com/akylbek/payment-system/credential-payments/internal/security"
	"github.com/akylbek/payment-system/credential-payments/internal/service"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
	"github.com/akylbek/payment-system/credential-payments/internal/verifier"
	"github.com/akylbek/payment-system/credential-payments/internal/worker"
)

const serviceName = "credential-payments"

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     serviceName,
		Short:   "Credential-based payment authorization service",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cleanupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the cleanup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Expire stale payment requests and purge old ones, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := telemetry.InitTelemetry(serviceName, ""); err != nil {
				return err
			}
			defer telemetry.Shutdown(context.Background())

			app, err := build(cfg)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.orchestrator.Cleanup(cmd.Context(), cfg.RetentionWindow)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func serve() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry(serviceName, cfg.JaegerEndpoint); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Credential Payments", zap.String("version", Version))

	app, err := build(cfg)
	if err != nil {
		telemetry.Logger.Error("Failed to build service", zap.Error(err))
		return err
	}
	defer app.close()

	cleanup := scheduler.NewCleanupScheduler(app.orchestrator, cfg.CleanupSchedule, cfg.RetentionWindow)
	if err := cleanup.Start(); err != nil {
		return err
	}
	defer cleanup.Stop()

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(app.orchestrator, cfg.RetentionWindow, cleanup),
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		telemetry.Logger.Info("Credential Payments starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		telemetry.Logger.Error("Failed to start server", zap.Error(err))
		return err
	}

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
	return nil
}

type application struct {
	orchestrator *service.Orchestrator
	closers      []func()
}

// close runs closers in reverse order of creation.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func build(cfg *config.Config) (*application, error) {
	app := &application{}

	repo, attempts, accounts, err := openStores(cfg, app)
	if err != nil {
		app.close()
		return nil, err
	}

	locker := newLocker(cfg, app)

	var pub interfaces.Publisher = publisher.Discard{}
	var notify interfaces.Notifier = notifier.LogNotifier{}
	if cfg.Brokers != "" {
		kafkaPub := publisher.NewKafkaPublisher(cfg.Brokers, []string{
			models.TopicPaymentStateChanged,
			models.TopicPaymentAttemptRecorded,
			models.TopicSecurityNotifications,
		}, cfg.PublisherRetry())
		app.closers = append(app.closers, func() {
			if err := kafkaPub.Close(); err != nil {
				telemetry.Logger.Error("Failed to close Kafka writers", zap.Error(err))
			}
		})
		pub = kafkaPub
		notify = notifier.NewEventNotifier(kafkaPub)
	} else {
		telemetry.Logger.Warn("KAFKA_BROKERS not set, events are dropped and notifications only logged")
	}

	// Connect to NATS
	nc, err := nats.Connect(cfg.NatsURL,
		nats.Name(serviceName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	app.closers = append(app.closers, nc.Close)
	credentials := verifier.NewNATSVerifier(nc, cfg.Verifier.Timeout)

	dispatcher := worker.NewDispatcher(cfg.WorkerConfig())
	app.closers = append(app.closers, dispatcher.Close)

	policy, _, err := cfg.SecurityPolicy()
	if err != nil {
		app.close()
		return nil, err
	}
	attemptLedger := ledger.New(attempts)
	engine := security.NewEngine(policy, attemptLedger, credentials, notify, dispatcher)
	telemetry.Logger.Info("Security policy loaded",
		zap.Int("alert_threshold", policy.AlertThreshold),
		zap.Int("revoke_threshold", policy.RevokeThreshold),
	)

	app.orchestrator = service.NewOrchestrator(service.Dependencies{
		Repo:       repo,
		Ledger:     attemptLedger,
		Engine:     engine,
		Accounts:   accounts,
		Verifier:   credentials,
		Notifier:   notify,
		Publisher:  pub,
		Locker:     locker,
		Dispatcher: dispatcher,
	},
		service.WithPaymentWindow(cfg.PaymentWindow),
		service.WithLockTimeout(cfg.LockTimeout),
	)
	return app, nil
}

func openStores(cfg *config.Config, app *application) (interfaces.PaymentRequestRepository, interfaces.AttemptStore, interfaces.AccountStore, error) {
	if cfg.DatabaseURL == "" {
		telemetry.Logger.Warn("DATABASE_URL not set, using in-memory stores")
		accounts := repository.NewMemoryAccountStore()
		if cfg.AccountsSeedFile != "" {
			seeded, err := repository.LoadAccountsYAML(cfg.AccountsSeedFile)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, a := range seeded {
				accounts.Put(a)
			}
			telemetry.Logger.Info("Accounts seeded", zap.Int("count", len(seeded)))
		}
		return repository.NewMemoryPaymentRequestRepository(), repository.NewMemoryAttemptStore(), accounts, nil
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.closers = append(app.closers, func() { db.Close() })

	repo := repository.NewPaymentRequestRepository(db)
	attempts := repository.NewAttemptRepository(db)
	accounts := repository.NewAccountRepository(db)
	for _, initDB := range []func() error{repo.InitDB, attempts.InitDB, accounts.InitDB} {
		if err := initDB(); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}
	return repo, attempts, accounts, nil
}

func newLocker(cfg *config.Config, app *application) interfaces.Locker {
	if cfg.RedisURL == "" {
		return lock.NewKeyedMutex()
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	app.closers = append(app.closers, func() { redisClient.Close() })
	return lock.NewRedisLocker(redisClient, cfg.LockTTL)
}
