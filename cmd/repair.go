package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/werpoz/chatrelay/internal/alias"
	"github.com/werpoz/chatrelay/internal/config"
	"github.com/werpoz/chatrelay/internal/db"
	"github.com/werpoz/chatrelay/internal/logger"
	"github.com/werpoz/chatrelay/internal/repository"
)

var repairSessionID string

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile chat aliases split across identifier forms",
	RunE: func(cmd *cobra.Command, args []string) error {
		if repairSessionID == "" {
			return fmt.Errorf("--session is required")
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.LogLevel)

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

		aliasRepo := repository.NewChatAliasRepository(dbx)
		contactsRepo := repository.NewContactsRepository(dbx)

		rep := alias.NewRepair(aliasRepo, contactsRepo)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		stats, err := rep.Run(ctx, repairSessionID)
		if err != nil {
			return fmt.Errorf("repair session %s: %w", repairSessionID, err)
		}

		log.Printf(">> repair done session=%s merged=%d created=%d skipped=%d",
			repairSessionID, stats.Merged, stats.Created, stats.Skipped)
		return nil
	},
}

func init() {
	repairCmd.Flags().StringVar(&repairSessionID, "session", "", "session id to repair")
}
