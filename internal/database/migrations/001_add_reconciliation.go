package migrations

import (
	"github.com/finbooks/recon-api/internal/types"
	"gorm.io/gorm"
)

// AddReconciliation creates the settlement bookkeeping tables and the
// lookup indexes the residual computation depends on.
func AddReconciliation(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.PartialReconcile{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&types.FullReconcile{}); err != nil {
		return err
	}

	// Residuals are recomputed from the partials touching a line, so both
	// sides need an index. The account+partner index serves the
	// auto-matcher's candidate queries.
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_partial_reconciles_debit_credit ON partial_reconciles(debit_line_id, credit_line_id)`,
		`CREATE INDEX IF NOT EXISTS idx_move_lines_account_partner ON move_lines(account_id, partner_id)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
