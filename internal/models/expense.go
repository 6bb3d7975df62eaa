package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseStatus represents the booking state of an expense
type ExpenseStatus string

const (
	ExpenseStatusDraft     ExpenseStatus = "draft"
	ExpenseStatusConfirmed ExpenseStatus = "confirmed"
)

// Expense is a realized expense record. Expenses materialized from a
// recurring template carry TemplateID and OccurrenceDate; OccurrenceDate
// (formatted YYYY-MM-DD) is the reconciliation key that marks a computed
// occurrence as already billed.
type Expense struct {
	Base
	TenantID    uint            `gorm:"not null;index" json:"tenant_id"`
	CreatedByID uint            `gorm:"not null" json:"created_by_id"`
	CategoryID  *uint           `gorm:"index" json:"category_id,omitempty"`
	Title       string          `gorm:"not null" json:"title"`
	Description string          `json:"description"`
	ExpenseDate time.Time       `gorm:"not null;index" json:"expense_date"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency    string          `gorm:"not null;default:'EUR'" json:"currency"`

	VATRate             decimal.Decimal `gorm:"type:decimal(20,4);default:21" json:"vat_rate"`
	VATAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"vat_amount"`
	DeductibleVATAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deductible_vat_amount"`

	Status        ExpenseStatus `gorm:"not null;default:'draft'" json:"status"`
	PaymentMethod string        `json:"payment_method,omitempty"`

	// Back-reference to the recurring template this expense was
	// materialized from, if any.
	TemplateID     *uint      `gorm:"index" json:"template_id,omitempty"`
	OccurrenceDate *time.Time `json:"occurrence_date,omitempty"`

	// Relationships
	Category *ExpenseCategory          `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Template *RecurringExpenseTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
}
