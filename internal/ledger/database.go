package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/finbooks/recon-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GormDB exposes the underlying connection for services that need to share
// a transaction with the ledger store.
func (d *Database) GormDB() *gorm.DB {
	return d.db
}

func (d *Database) CreateCompany(company *types.Company) error {
	return d.db.Create(company).Error
}

func (d *Database) GetCompany(companyID string) (*types.Company, error) {
	var company types.Company
	if err := d.db.Where("company_id = ?", companyID).First(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (d *Database) UpdateCompany(company *types.Company) error {
	return d.db.Save(company).Error
}

func (d *Database) CreateCurrency(currency *types.Currency) error {
	return d.db.Create(currency).Error
}

func (d *Database) GetCurrency(code string) (*types.Currency, error) {
	var currency types.Currency
	if err := d.db.Where("code = ?", code).First(&currency).Error; err != nil {
		return nil, err
	}
	return &currency, nil
}

func (d *Database) UpdateCurrency(currency *types.Currency) error {
	return d.db.Save(currency).Error
}

// CurrencyHasPostedLines reports whether the currency has been used to
// round posted amounts, either as a line's foreign currency or as the
// reporting currency of a company with posted lines.
func (d *Database) CurrencyHasPostedLines(code string) (bool, error) {
	var count int64
	err := d.db.Model(&types.MoveLine{}).
		Where("currency_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}

	err = d.db.Model(&types.MoveLine{}).
		Joins("JOIN companies ON companies.company_id = move_lines.company_id").
		Where("companies.currency_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (d *Database) CreateAccount(account *types.Account) error {
	return d.db.Create(account).Error
}

func (d *Database) GetAccount(accountID string) (*types.Account, error) {
	var account types.Account
	if err := d.db.Where("account_id = ?", accountID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (d *Database) CreateJournal(journal *types.Journal) error {
	return d.db.Create(journal).Error
}

func (d *Database) GetJournal(journalID string) (*types.Journal, error) {
	var journal types.Journal
	if err := d.db.Where("journal_id = ?", journalID).First(&journal).Error; err != nil {
		return nil, err
	}
	return &journal, nil
}

// CreateMoveWithLines persists a posted move and its lines atomically,
// recording the idempotency key inside the same transaction.
func (d *Database) CreateMoveWithLines(move *types.Move, lines []types.MoveLine, idempotencyKey string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(move).Error; err != nil {
			return err
		}
		for i := range lines {
			if err := tx.Create(&lines[i]).Error; err != nil {
				return err
			}
		}
		if idempotencyKey != "" {
			record := types.IdempotencyRecord{
				IdempotencyKey: idempotencyKey,
				ResourceID:     move.MoveID,
				ResourceType:   "move",
				ExpiresAt:      time.Now().Add(24 * time.Hour),
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Database) GetMove(moveID string) (*types.Move, error) {
	var move types.Move
	if err := d.db.Where("move_id = ?", moveID).First(&move).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch move: %w", err)
	}
	return &move, nil
}

func (d *Database) GetMoveLines(moveID string) ([]types.MoveLine, error) {
	var lines []types.MoveLine
	if err := d.db.Where("move_id = ?", moveID).Order("id ASC").Find(&lines).Error; err != nil {
		return nil, err
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

func (d *Database) GetIdempotencyRecord(idempotencyKey string) (*types.IdempotencyRecord, error) {
	if idempotencyKey == "" {
		return nil, errors.New("empty idempotency key")
	}
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", idempotencyKey).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
