package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/werpoz/chatrelay/internal/config"
	"github.com/werpoz/chatrelay/internal/db"
	"github.com/werpoz/chatrelay/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo tenants and sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo tenants...")

		if err := seedTenants(sqlDB); err != nil {
			return err
		}
		if err := seedSessions(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedTenants inserts deterministic demo tenants (idempotent).
func seedTenants(dbx *sqlx.DB) error {
	tenants := []model.Tenant{
		{
			ID:     "t-acme",
			Name:   "Acme Corp",
			APIKey: "11111111111111111111111111111111",
			Status: "active",
		},
		{
			ID:     "t-foobar",
			Name:   "Foobar LLC",
			APIKey: "22222222222222222222222222222222",
			Status: "active",
		},
		{
			ID:     "t-beta",
			Name:   "Beta Testers",
			APIKey: "33333333333333333333333333333333",
			Status: "active",
		},
		{
			ID:     "t-frozen",
			Name:   "Suspended Inc",
			APIKey: "44444444444444444444444444444444",
			Status: "suspended",
		},
	}

	// idempotent upsert based on api_key (UNIQUE)
	const q = `
INSERT INTO tenants
    (id, name, api_key, status, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name       = VALUES(name),
    status     = VALUES(status),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, t := range tenants {
		if _, err := tx.Exec(q, t.ID, t.Name, t.APIKey, t.Status, now, now); err != nil {
			return fmt.Errorf("insert tenant %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenants: %w", err)
	}
	return nil
}

// seedSessions creates one offline session per active demo tenant.
func seedSessions(dbx *sqlx.DB) error {
	const q = `
INSERT INTO sessions (id, tenant_id, name, status, jid, created_at, updated_at)
SELECT CONCAT('s-', t.id), t.id, CONCAT(t.name, ' main'), 'offline', '', NOW(), NOW()
FROM tenants t
LEFT JOIN sessions s ON s.tenant_id = t.id
WHERE s.id IS NULL AND t.status = 'active'
`
	if _, err := dbx.Exec(q); err != nil {
		return fmt.Errorf("ensure sessions: %w", err)
	}
	return nil
}
