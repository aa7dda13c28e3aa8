package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classbook/internal/api"
	"classbook/internal/auth"
	"classbook/internal/config"
	"classbook/internal/database"
	"classbook/internal/domain"
	"classbook/internal/events"
	"classbook/internal/logging"
	"classbook/internal/metrics"
	"classbook/internal/models"
	"classbook/internal/repository"
	"classbook/internal/service"
	"classbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// stores bundles the configured persistence backend.
type stores struct {
	bookings domain.BookingStore
	users    domain.UserStore
	ready    func(ctx context.Context) error
	close    func() error
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if err := loadRooms(cfg, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	st, err := initStores(ctx, cfg, redisClient, &logger)
	if err != nil {
		return err
	}
	defer (func() { _ = st.close() })()

	bus := events.NewEventBus()
	forwarderDone := startEventForwarder(ctx, cfg, bus, &logger)

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	limiter := initRateLimiter(redisClient, &logger)

	bookingService := service.NewBookingService(st.bookings, bus, cfg.Reservations.StrictOwnership, logging.Component(&logger, "booking"))
	generatorService, err := service.NewGeneratorService(bookingService, cfg.Generator, logging.Component(&logger, "generator"))
	if err != nil {
		return err
	}
	userService := service.NewUserService(st.users, jwtManager, limiter, cfg.Auth, logging.Component(&logger, "users"))

	handler := api.NewHandler(api.Deps{
		Bookings:  bookingService,
		Generator: generatorService,
		Users:     userService,
		Identity:  jwtManager,
		SheetName: cfg.Exports.SheetName,
		Ready:     st.ready,
		Logger:    logging.Component(&logger, "http"),
	})
	httpServer := api.NewHTTPServer(cfg.API.HTTP, api.NewRouter(handler, cfg.API), &logger)

	startMetrics(ctx, cfg, &logger)

	err = serve(ctx, httpServer, &logger)
	stop()
	<-forwarderDone
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadRooms replaces the generator room list with the active rooms of the
// catalog file, when one exists.
func loadRooms(cfg *config.Config, logger *zerolog.Logger) error {
	roomsPath := os.Getenv("ROOMS_PATH")
	if roomsPath == "" {
		roomsPath = "configs/rooms.yaml"
	}
	roomsData, err := os.ReadFile(roomsPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("rooms_path", roomsPath).Msg("rooms catalog not found, using generator.rooms")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("read rooms")
		return err
	}

	var roomsConfig struct {
		Rooms []models.Room `yaml:"rooms"`
	}
	if err := yaml.Unmarshal(roomsData, &roomsConfig); err != nil {
		logger.Error().Err(err).Str("rooms_path", roomsPath).Msg("parse rooms")
		return err
	}
	if err := config.ValidateRooms(roomsConfig.Rooms); err != nil {
		return fmt.Errorf("rooms catalog: %w", err)
	}

	if names := models.ActiveRoomNames(roomsConfig.Rooms); len(names) > 0 {
		cfg.Generator.Rooms = names
	}
	logger.Info().Int("rooms", len(cfg.Generator.Rooms)).Msg("rooms catalog loaded")
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initStores(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (*stores, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, err
		}
		return &stores{bookings: db, users: db, ready: db.Ping, close: db.Close}, nil

	case config.DriverRedis:
		if redisClient == nil {
			return nil, errors.New("redis driver selected but redis is unavailable")
		}
		return &stores{
			bookings: repository.NewRedisBookingStore(redisClient),
			users:    repository.NewRedisUserStore(redisClient),
			ready:    func(ctx context.Context) error { return repository.Ping(ctx, redisClient) },
			close:    func() error { return nil },
		}, nil

	case config.DriverMongo:
		client, err := repository.ConnectMongo(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Database.Mongo.Database)
		bookingStore := repository.NewMongoBookingStore(db, cfg.Database.Mongo)
		if err := bookingStore.EnsureIndexes(ctx); err != nil {
			logger.Warn().Err(err).Msg("mongo index creation failed")
		}
		return &stores{
			bookings: bookingStore,
			users:    repository.NewMongoUserStore(db, cfg.Database.Mongo),
			ready:    func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return client.Disconnect(ctx)
			},
		}, nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory stores; data is lost on restart")
		return &stores{
			bookings: repository.NewMemoryBookingStore(),
			users:    repository.NewMemoryUserStore(),
			close:    func() error { return nil },
		}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func initRateLimiter(redisClient *redis.Client, logger *zerolog.Logger) domain.RateLimiter {
	memory := repository.NewMemoryRateLimiter()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverRateLimiter(repository.NewRedisRateLimiter(redisClient), memory, logging.Component(logger, "rate-limiter"))
}

// startEventForwarder attaches a Kafka forwarder to the bus when enabled. The
// returned channel closes once the forwarder has drained.
func startEventForwarder(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	kafkaCfg := cfg.Events.Kafka
	if !kafkaCfg.Enabled {
		close(done)
		return done
	}

	sink := events.NewKafkaSink(kafkaCfg.Brokers, kafkaCfg.Topic)
	forwarder := worker.NewEventForwarder(sink, kafkaCfg.QueueSize, worker.RetryPolicy{MaxRetries: kafkaCfg.MaxRetries}, logging.Component(logger, "event-forwarder"))
	forwarder.Attach(bus)

	go func() {
		defer close(done)
		forwarder.Run(ctx)
		if err := sink.Close(); err != nil {
			logger.Warn().Err(err).Msg("kafka writer close failed")
		}
	}()

	logger.Info().Strs("brokers", kafkaCfg.Brokers).Str("topic", kafkaCfg.Topic).Msg("kafka event forwarding enabled")
	return done
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
