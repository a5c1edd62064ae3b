package reconciliation

import (
	"fmt"

	"github.com/finbooks/recon-api/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithTx returns a Database bound to the given transaction so every query
// of one reconcile call shares the same unit of work.
func (d *Database) WithTx(tx *gorm.DB) *Database {
	return &Database{db: tx}
}

// GormDB exposes the underlying connection for transaction management
func (d *Database) GormDB() *gorm.DB {
	return d.db
}

// GetLinesForUpdate reads the lines under an exclusive row lock so two
// concurrent reconcile calls cannot double-settle the same residual.
// SQLite serializes writers at the database level and rejects FOR
// UPDATE, so the row lock is only emitted on server databases.
func (d *Database) GetLinesForUpdate(lineIDs []string) ([]types.MoveLine, error) {
	query := d.db
	if d.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var lines []types.MoveLine
	err := query.
		Where("line_id IN ?", lineIDs).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock lines: %w", err)
	}
	return lines, nil
}

func (d *Database) GetLine(lineID string) (*types.MoveLine, error) {
	var line types.MoveLine
	if err := d.db.Where("line_id = ?", lineID).First(&line).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch line: %w", err)
	}
	return &line, nil
}

func (d *Database) GetMove(moveID string) (*types.Move, error) {
	var move types.Move
	if err := d.db.Where("move_id = ?", moveID).First(&move).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch move: %w", err)
	}
	return &move, nil
}

func (d *Database) GetAccount(accountID string) (*types.Account, error) {
	var account types.Account
	if err := d.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch account: %w", err)
	}
	return &account, nil
}

func (d *Database) GetJournal(journalID string) (*types.Journal, error) {
	var journal types.Journal
	if err := d.db.Where("journal_id = ?", journalID).First(&journal).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch journal: %w", err)
	}
	return &journal, nil
}

func (d *Database) GetCompany(companyID string) (*types.Company, error) {
	var company types.Company
	if err := d.db.Where("company_id = ?", companyID).First(&company).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch company: %w", err)
	}
	return &company, nil
}

func (d *Database) GetCurrency(code string) (*types.Currency, error) {
	var currency types.Currency
	if err := d.db.Where("code = ?", code).First(&currency).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch currency: %w", err)
	}
	return &currency, nil
}

// GetPartialsTouching returns every partial referencing the line on either
// side, in creation order.
func (d *Database) GetPartialsTouching(lineID string) ([]types.PartialReconcile, error) {
	var partials []types.PartialReconcile
	err := d.db.Where("debit_line_id = ? OR credit_line_id = ?", lineID, lineID).
		Order("id ASC").
		Find(&partials).Error
	if err != nil {
		return nil, err
	}
	return partials, nil
}

func (d *Database) GetPartial(partialID string) (*types.PartialReconcile, error) {
	var partial types.PartialReconcile
	if err := d.db.Where("partial_id = ?", partialID).First(&partial).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch partial: %w", err)
	}
	return &partial, nil
}

func (d *Database) CreatePartial(partial *types.PartialReconcile) error {
	return d.db.Create(partial).Error
}

func (d *Database) DeletePartial(partial *types.PartialReconcile) error {
	return d.db.Unscoped().Where("partial_id = ?", partial.PartialID).Delete(&types.PartialReconcile{}).Error
}

func (d *Database) CreateFullReconcile(full *types.FullReconcile) error {
	return d.db.Create(full).Error
}

func (d *Database) GetFullReconcile(fullReconcileID string) (*types.FullReconcile, error) {
	var full types.FullReconcile
	if err := d.db.Where("full_reconcile_id = ?", fullReconcileID).First(&full).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch full reconcile: %w", err)
	}
	return &full, nil
}

func (d *Database) DeleteFullReconcile(full *types.FullReconcile) error {
	return d.db.Unscoped().Where("full_reconcile_id = ?", full.FullReconcileID).Delete(&types.FullReconcile{}).Error
}

func (d *Database) GetPartialsOfFull(fullReconcileID string) ([]types.PartialReconcile, error) {
	var partials []types.PartialReconcile
	err := d.db.Where("full_reconcile_id = ?", fullReconcileID).
		Order("id ASC").
		Find(&partials).Error
	if err != nil {
		return nil, err
	}
	return partials, nil
}

func (d *Database) GetLinesOfFull(fullReconcileID string) ([]types.MoveLine, error) {
	var lines []types.MoveLine
	err := d.db.Where("full_reconcile_id = ?", fullReconcileID).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// MarkLineReconciled stamps the closure reference on a line. The empty
// string clears it.
func (d *Database) MarkLineReconciled(lineID, fullReconcileID string) error {
	return d.db.Model(&types.MoveLine{}).
		Where("line_id = ?", lineID).
		Update("full_reconcile_id", fullReconcileID).Error
}

// MarkPartialReconciled stamps the closure reference on a partial. The
// empty string clears it.
func (d *Database) MarkPartialReconciled(partialID, fullReconcileID string) error {
	return d.db.Model(&types.PartialReconcile{}).
		Where("partial_id = ?", partialID).
		Update("full_reconcile_id", fullReconcileID).Error
}

// CreateMoveWithLines persists a synthesized move (exchange difference,
// write-off or reversal) inside the current transaction.
func (d *Database) CreateMoveWithLines(move *types.Move, lines []types.MoveLine) error {
	if err := d.db.Create(move).Error; err != nil {
		return err
	}
	for i := range lines {
		if err := d.db.Create(&lines[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) GetMoveLines(moveID string) ([]types.MoveLine, error) {
	var lines []types.MoveLine
	if err := d.db.Where("move_id = ?", moveID).Order("id ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

// GetOpenLinesOnAccount returns posted lines on the account that are not
// yet part of a full reconciliation, used by the auto-matcher.
func (d *Database) GetOpenLinesOnAccount(accountID string) ([]types.MoveLine, error) {
	var lines []types.MoveLine
	err := d.db.Where("account_id = ? AND (full_reconcile_id IS NULL OR full_reconcile_id = '')", accountID).
		Order("id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// GetReconcilableAccounts lists accounts that track open balances per line
func (d *Database) GetReconcilableAccounts() ([]types.Account, error) {
	var accounts []types.Account
	if err := d.db.Where("reconcilable = ?", true).Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
