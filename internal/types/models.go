package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Move states
const (
	MoveStateDraft  = "DRAFT"
	MoveStatePosted = "POSTED"
)

// Journal types
const (
	JournalTypeGeneral  = "GENERAL"
	JournalTypeSale     = "SALE"
	JournalTypePurchase = "PURCHASE"
	JournalTypeBank     = "BANK"
	JournalTypeExchange = "EXCHANGE"
)

// Company holds the reporting currency and the exchange-difference
// configuration required to book rate fluctuations.
type Company struct {
	gorm.Model        `json:"-"`
	CompanyID         string `gorm:"uniqueIndex" json:"company_id"`
	Name              string `json:"name"`
	CurrencyCode      string `json:"currency_code"`
	ExchangeJournalID string `json:"exchange_journal_id"`
	GainAccountID     string `json:"gain_account_id"`
	LossAccountID     string `json:"loss_account_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Account is a chart-of-accounts entry. Only accounts flagged as
// reconcilable track open/settled balances per line.
type Account struct {
	gorm.Model   `json:"-"`
	AccountID    string `gorm:"uniqueIndex" json:"account_id"`
	CompanyID    string `gorm:"index" json:"company_id"`
	Code         string `json:"code"`
	Name         string `json:"name"`
	InternalType string `json:"internal_type"` // RECEIVABLE, PAYABLE, LIQUIDITY, INCOME, EXPENSE, OTHER
	Reconcilable bool   `json:"reconcilable"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Journal groups journal entries of one kind for a company.
type Journal struct {
	gorm.Model `json:"-"`
	JournalID  string `gorm:"uniqueIndex" json:"journal_id"`
	CompanyID  string `gorm:"index" json:"company_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Move is a journal entry. Its lines are immutable once the move is
// posted, except for the reconciliation bookkeeping references.
type Move struct {
	gorm.Model `json:"-"`
	MoveID     string    `gorm:"uniqueIndex" json:"move_id"`
	CompanyID  string    `gorm:"index" json:"company_id"`
	JournalID  string    `gorm:"index" json:"journal_id"`
	Ref        string    `json:"ref"`
	Date       time.Time `json:"date"`
	State      string    `json:"state"` // DRAFT, POSTED
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MoveLine is one row of a journal entry. Debit and credit are expressed
// in the company currency; AmountCurrency carries the optional foreign
// amount denominated in CurrencyCode. An empty CurrencyCode means the line
// lives in the company currency only.
type MoveLine struct {
	gorm.Model      `json:"-"`
	LineID          string          `gorm:"uniqueIndex" json:"line_id"`
	MoveID          string          `gorm:"index" json:"move_id"`
	CompanyID       string          `gorm:"index" json:"company_id"`
	AccountID       string          `gorm:"index" json:"account_id"`
	PartnerID       string          `gorm:"index" json:"partner_id"`
	Name            string          `json:"name"`
	Debit           decimal.Decimal `gorm:"type:decimal(20,6)" json:"debit"`
	Credit          decimal.Decimal `gorm:"type:decimal(20,6)" json:"credit"`
	CurrencyCode    string          `json:"currency_code,omitempty"`
	AmountCurrency  decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount_currency"`
	Date            time.Time       `json:"date"`
	FullReconcileID string          `gorm:"index" json:"full_reconcile_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Balance returns debit - credit in company currency.
func (l *MoveLine) Balance() decimal.Decimal {
	return l.Debit.Sub(l.Credit)
}

// HasForeignCurrency reports whether the line carries a foreign amount.
func (l *MoveLine) HasForeignCurrency() bool {
	return l.CurrencyCode != ""
}

// PartialReconcile matches one debit line against one credit line for a
// settled amount. Amount is always positive and expressed in the company
// currency; AmountCurrency is denominated in CurrencyCode, which is the
// currency shared by both lines or the company currency when they differ.
type PartialReconcile struct {
	gorm.Model      `json:"-"`
	PartialID       string          `gorm:"uniqueIndex" json:"partial_id"`
	CompanyID       string          `gorm:"index" json:"company_id"`
	DebitLineID     string          `gorm:"index" json:"debit_line_id"`
	CreditLineID    string          `gorm:"index" json:"credit_line_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount"`
	AmountCurrency  decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount_currency"`
	CurrencyCode    string          `json:"currency_code"`
	FullReconcileID string          `gorm:"index" json:"full_reconcile_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Touches reports whether the partial references the given line on either
// side.
func (p *PartialReconcile) Touches(lineID string) bool {
	return p.DebitLineID == lineID || p.CreditLineID == lineID
}

// FullReconcile asserts that a closed group of lines nets to zero residual
// in both units. ExchangeMoveID references the correcting entry when an
// exchange difference had to be booked to reach closure.
type FullReconcile struct {
	gorm.Model      `json:"-"`
	FullReconcileID string    `gorm:"uniqueIndex" json:"full_reconcile_id"`
	CompanyID       string    `gorm:"index" json:"company_id"`
	ExchangeMoveID  string    `json:"exchange_move_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IdempotencyRecord prevents duplicate resource creation when a client
// retries a posting request.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
