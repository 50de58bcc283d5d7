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

	"github.com/werpoz/chatrelay/internal/config"
	"github.com/werpoz/chatrelay/internal/db"
	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/metrics"
	"github.com/werpoz/chatrelay/internal/outbox"
	"github.com/werpoz/chatrelay/internal/repository"
	"github.com/werpoz/chatrelay/internal/stream"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Retry pending outbox rows and route exhausted ones to the dead letter table",
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

		breaker := outbox.NewMicroBreaker(
			cfg.Outbox.Breaker.FailThreshold,
			time.Duration(cfg.Outbox.Breaker.OpenForMs)*time.Millisecond,
		)

		d := outbox.NewDispatcher(
			dbx,
			repository.NewOutboxRepository(dbx),
			repository.NewDeadLetterRepository(dbx),
			redisStream,
			archiveRepo,
			breaker,
		)

		// tune knobs
		if cfg.Outbox.BatchSize > 0 {
			d.BatchSize = cfg.Outbox.BatchSize
		}
		if cfg.Outbox.Interval > 0 {
			d.Interval = cfg.Outbox.Interval
		}
		if cfg.Outbox.MaxAttempts > 0 {
			d.MaxAttempts = cfg.Outbox.MaxAttempts
		}

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> dispatcher started stream=%s batchSize=%d interval=%s maxAttempts=%d",
			cfg.Stream.Name, d.BatchSize, d.Interval, d.MaxAttempts)

		return d.Run(ctx)
	},
}
