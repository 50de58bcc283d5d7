package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/werpoz/chatrelay/internal/alias"
	"github.com/werpoz/chatrelay/internal/config"
	"github.com/werpoz/chatrelay/internal/db"
	"github.com/werpoz/chatrelay/internal/kafka"
	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/metrics"
	"github.com/werpoz/chatrelay/internal/outbox"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/service/ingest"
	"github.com/werpoz/chatrelay/internal/stream"
	"github.com/werpoz/chatrelay/internal/worker"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume raw protocol events from Kafka and persist them",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.LogLevel)

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// 3) redis stream (publish target)
		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		redisStream := stream.NewRedisStream(redisClient, cfg.Stream.Name, cfg.Stream.MaxLen)

		// 4) clickhouse archive (best effort)
		var archiveRepo repository.ArchiveRepository
		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			log.Printf("clickhouse unavailable, archiving disabled: %v", err)
		} else {
			defer func() { _ = chDB.Close() }()
			archiveRepo = repository.NewArchiveRepository(chDB)
		}

		// 5) repositories -> publisher -> ingest service
		outboxRepo := repository.NewOutboxRepository(dbx)
		aliasRepo := repository.NewChatAliasRepository(dbx)
		messagesRepo := repository.NewMessagesRepository(dbx)
		contactsRepo := repository.NewContactsRepository(dbx)

		publisher := outbox.NewPublisher(outboxRepo, redisStream, archiveRepo)
		resolver := alias.NewResolver(aliasRepo)
		svc := ingest.New(resolver, messagesRepo, contactsRepo, publisher)

		// 6) kafka consumer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "chatrelay-ingest"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := worker.NewIngestKafka(consumer, svc)

		// tune knobs
		if cfg.Ingest.WorkerCount > 0 {
			w.Workers = cfg.Ingest.WorkerCount
		}

		// 7) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> ingest started topic=%s group=%s workers=%d",
			cfg.Kafka.Topic, groupID, w.Workers)

		return w.Run(ctx)
	},
}
