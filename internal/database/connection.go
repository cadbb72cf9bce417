// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		}
	} else {
		gormConfig = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Info),
			TranslateError: true,
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.User{},
		&models.Contract{},
		&models.Signature{},
		&models.ContractStatusChange{},
		&models.EscrowEntry{},
		&models.EscrowStatusChange{},
		&models.Dispute{},
		&models.OtpChallenge{},
		&models.AuditLog{},
		&models.CompensationLog{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// CreateIndexes adds the indexes AutoMigrate cannot express. The partial
// unique index on disputes is load-bearing: it is what rejects the second
// concurrent Open for the same escrow entry across service instances.
func CreateIndexes(db *gorm.DB) error {
	indexes := []string{
		// One non-terminal dispute per escrow entry, enforced at the data
		// layer.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_disputes_open_entry ON disputes(escrow_entry_id) WHERE status IN ('open', 'mediator_assigned') AND escrow_entry_id IS NOT NULL",

		// Contract indexes
		"CREATE INDEX IF NOT EXISTS idx_contracts_parties ON contracts(landlord_id, tenant_id)",
		"CREATE INDEX IF NOT EXISTS idx_contracts_status_retraction ON contracts(status, retraction_deadline)",
		"CREATE INDEX IF NOT EXISTS idx_contracts_created_at ON contracts(created_at DESC)",

		// One escrow entry per rent period. Rent scheduling relies on this
		// across service instances, the same way dispute Open relies on
		// idx_disputes_open_entry.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_escrow_entries_period ON escrow_entries(contract_id, due_date)",

		// Escrow indexes for the sweep
		"CREATE INDEX IF NOT EXISTS idx_escrow_entries_status_release ON escrow_entries(status, auto_release_at)",
		"CREATE INDEX IF NOT EXISTS idx_escrow_entries_attention ON escrow_entries(needs_attention, status)",

		// Dispute indexes
		"CREATE INDEX IF NOT EXISTS idx_disputes_status_created ON disputes(status, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_disputes_mediator ON disputes(mediator_id, status)",

		// OTP challenge lookup and issue-rate accounting
		"CREATE INDEX IF NOT EXISTS idx_otp_challenges_subject ON otp_challenges(subject_id, purpose, created_at DESC)",

		// Audit
		"CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id)",
		"CREATE INDEX IF NOT EXISTS idx_compensation_logs_open ON compensation_logs(entity_type, resolved_at)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Seed initial data
func SeedInitialData(db *gorm.DB) error {
	log.Println("Seeding initial data...")

	var adminCount int64
	db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&adminCount)

	if adminCount == 0 {
		admin := &models.User{
			Username: "admin",
			Email:    "admin@ndako.app",
			Phone:    "+237600000000",
			Role:     models.UserRoleAdmin,
			Status:   models.UserStatusActive,
			ProfileData: models.JSONB{
				"first_name": "System",
				"last_name":  "Administrator",
			},
		}

		if err := admin.SetPassword("admin123!@#"); err != nil {
			return fmt.Errorf("failed to set admin password: %w", err)
		}

		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		log.Println("Default admin user created successfully")
	}

	log.Println("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
