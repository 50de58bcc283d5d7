package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/werpoz/chatrelay/internal/config"
	"github.com/werpoz/chatrelay/internal/db"
	httpSrv "github.com/werpoz/chatrelay/internal/http"
	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/realtime"
	"github.com/werpoz/chatrelay/internal/stream"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server and realtime stream tailer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.LogLevel)

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

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

		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer func() {
			_ = chDB.Close()
		}()

		// realtime plumbing: broker stream -> tailer -> hub -> websockets
		hub := realtime.NewHub()
		redisStream := stream.NewRedisStream(redisClient, cfg.Stream.Name, cfg.Stream.MaxLen)
		cursorStore := stream.NewRedisCursorStore(redisClient)

		tailer := realtime.NewTailer(redisStream, cursorStore, hub, cfg.Stream.Consumer)
		if cfg.Stream.Block > 0 {
			tailer.Block = cfg.Stream.Block
		}
		if cfg.Stream.ReadCount > 0 {
			tailer.ReadCount = cfg.Stream.ReadCount
		}

		server := httpSrv.NewServer(cfg, mysqlDB, chDB, redisClient, hub)

		errCh := make(chan error, 2)

		// A dead tailer means realtime delivery is gone; treat it like a
		// failed HTTP listener and shut the whole process down.
		tailCtx, tailStop := context.WithCancel(context.Background())
		defer tailStop()
		go func() {
			if err := tailer.Run(tailCtx); err != nil && tailCtx.Err() == nil {
				errCh <- fmt.Errorf("stream tailer exited: %w", err)
			}
		}()

		go func() {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("fatal: %v, shutting down...", err)
			}
		}

		tailStop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
