package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/petcare/internal/api"
	"example.com/petcare/internal/config"
	"example.com/petcare/internal/consumer"
	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/outbox"
	"example.com/petcare/internal/persistence/memory"
	"example.com/petcare/internal/persistence/postgres"
	"example.com/petcare/internal/persistence/sqlite"
	httptransport "example.com/petcare/internal/transport/http"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		address    string
	)

	cmd := &cobra.Command{
		Use:          "petcare-api",
		Short:        "Pet activity tracker API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.HTTPAddress = address
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	cmd.Flags().StringVar(&address, "addr", "", "listen address (overrides HTTP_ADDRESS)")
	return cmd
}

func newLogger(cfg config.Config) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "petcare",
	})
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

func run(cfg config.Config) error {
	logger := newLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	calendar := domain.NewCalendar(loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, history, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	group, groupCtx := errgroup.WithContext(ctx)

	opts := []domain.Option{
		domain.WithFutureSkew(cfg.FutureSkew),
		domain.WithReminderHour(cfg.ReminderHour),
		domain.WithGoals(domain.DailyTotals{WalkMinutes: cfg.WalkGoalMinutes, Meals: cfg.MealGoal, Meds: cfg.MedGoal}),
	}

	if cfg.KafkaEnabled() {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher := outbox.NewDispatcher(producer, outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL), outbox.Config{
			Topic:        cfg.ActivityTopic,
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			QueueSize:    cfg.OutboxQueueSize,
			MaxRetries:   cfg.DLQMaxRetries,
			BaseDelay:    cfg.DLQBaseDelay,
		}, logger.WithPrefix("outbox"))

		// The dispatcher outlives the errgroup so events published by
		// in-flight requests and consumers are flushed before the producer closes.
		dispatchCtx, stopDispatcher := context.WithCancel(context.Background())
		go dispatcher.Start(dispatchCtx)
		defer func() {
			stopDispatcher()
			dispatcher.Wait()
		}()
		opts = append(opts, domain.WithPublisher(dispatcher))
	}

	service := domain.NewService(repo, calendar, opts...)
	responder := domain.NewResponder(history, service, cfg.ChatHistoryWindow, nil)

	if cfg.KafkaEnabled() {
		ingest := consumer.NewIngestHandler(service, logger.WithPrefix("ingest"))
		for _, topic := range cfg.IngestTopics {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:         cfg.KafkaBrokers,
				GroupID:         cfg.ConsumerGroupID,
				Topic:           topic,
				MinBytes:        1,
				MaxBytes:        10e6,
				CommitInterval:  time.Second,
				ReadLagInterval: -1,
			})
			proc := consumer.NewProcessor(reader, ingest, consumer.WithLogger(logger.WithPrefix("consumer")))

			group.Go(func() error {
				defer reader.Close()
				logger.Info("consumer started", "topic", topic, "group", cfg.ConsumerGroupID)
				if err := proc.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("consumer %s: %w", topic, err)
				}
				return nil
			})
		}
	}

	handler := api.NewHandler(service, responder, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Recover(logger, httptransport.RequestLogger(logger, httptransport.CORS(cfg.CORSOrigin, mux))))

	group.Go(func() error {
		logger.Info("petcare api listening", "addr", cfg.HTTPAddress, "store", cfg.StoreBackend, "timezone", loc.String(), "kafka", cfg.KafkaEnabled())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("stopped with error", "err", err)
		return err
	}
	return nil
}

// openStore selects the activity store and chat history for the configured backend.
func openStore(ctx context.Context, cfg config.Config) (domain.ActivityRepository, domain.ChatHistory, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return memory.NewActivityStore(), memory.NewChatHistory(), func() {}, nil
	case "sqlite":
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo.ChatHistory(), func() { _ = repo.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return postgres.NewRepository(pool), memory.NewChatHistory(), pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
