package database

import (
	"fmt"

	"github.com/finbooks/recon-api/internal/database/migrations"
	"github.com/finbooks/recon-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "ledger.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate the ledger schemas
	err = db.AutoMigrate(
		&types.Company{},
		&types.Currency{},
		&types.Account{},
		&types.Journal{},
		&types.Move{},
		&types.MoveLine{},
		&types.Rate{},
		&types.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddReconciliation(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
