package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagement-service/internal/app"
	"engagement-service/internal/clock"
	"engagement-service/internal/config"
	"engagement-service/internal/infra/gcs"
	"engagement-service/internal/infra/memory"
	"engagement-service/internal/infra/postgres"
	redisinfra "engagement-service/internal/infra/redis"
	"engagement-service/internal/logger"
	transport "engagement-service/internal/transport/http"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the engagement server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.ShouldAutoMigrate() {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "ping redis at %s", cfg.Redis.Addr)
		}
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return errors.Wrap(err, "connect postgres")
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		log.Warn("postgres not configured, keeping all data in memory")
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.CacheTTL, 30*time.Second)
	var locks app.Locker
	if redisClient != nil {
		store = redisinfra.NewCatalogCache(store, redisClient, catalogTTL)
		locks = redisinfra.NewLocker(redisClient, config.TTLDuration(cfg.Redis.LockTTL, 10*time.Second))
	} else {
		store = memory.NewCatalogCache(store, catalogTTL)
		locks = memory.NewLocker()
	}

	var objects app.ObjectStore
	switch cfg.Storage.Driver {
	case config.StorageGCS:
		gcsStore, err := gcs.NewObjectStore(ctx, gcs.Config{
			Bucket:          cfg.Storage.GCS.Bucket,
			Prefix:          cfg.Storage.GCS.Prefix,
			CredentialsFile: cfg.Storage.GCS.CredentialsFile,
			Endpoint:        cfg.Storage.GCS.Endpoint,
		}, log)
		if err != nil {
			return err
		}
		defer gcsStore.Close()
		objects = gcsStore
	default:
		objects = memory.NewObjectStore()
	}

	clk := clock.System()
	defaults := app.AssignmentDefaults{
		AllowedExtensions: cfg.Assignment.AllowedExtensions,
		MaxFileSizeMB:     cfg.Assignment.MaxFileSizeMB,
	}
	quizzes := app.NewQuizEngine(store, locks, clk, log)
	services := transport.Services{
		Events:        app.NewEventService(store, locks, clk, log),
		Quizzes:       quizzes,
		Assignments:   app.NewAssignmentService(store, objects, locks, clk, log, defaults),
		Registrations: app.NewRegistrationService(store, clk, log),
		Grading:       app.NewGradingService(store, quizzes, locks, clk, log),
	}

	// per-event size limits are checked by the assignment service
	api := transport.NewServer(services, transport.NewWSHandler(quizzes, log), log, 0)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting engagement service", "port", finalPort, "storage", cfg.Storage.Driver, "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-serveErr:
		if err != nil {
			return errors.Wrap(err, "serve")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
