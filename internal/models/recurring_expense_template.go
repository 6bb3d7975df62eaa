package models

import (
	"time"

	"github.com/shopspring/decimal"

	"florijn/internal/recurrence"
)

// RecurringExpenseTemplate is the recurring billing rule for an expense.
// Amount is gross (BTW-inclusive). NextOccurrence is a query optimization
// cache maintained by the service layer; the recurrence calculator derives
// the authoritative occurrence set from Frequency and StartDate alone.
type RecurringExpenseTemplate struct {
	Base
	TenantID    uint                 `gorm:"not null;index" json:"tenant_id"`
	CreatedByID uint                 `gorm:"not null" json:"created_by_id"`
	CategoryID  *uint                `gorm:"index" json:"category_id,omitempty"`
	Name        string               `gorm:"not null" json:"name"`
	Description string               `json:"description"`
	Amount      decimal.Decimal      `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency    string               `gorm:"not null;default:'EUR'" json:"currency"`
	Frequency   recurrence.Frequency `gorm:"not null" json:"frequency"`
	StartDate   time.Time            `gorm:"not null" json:"start_date"`
	EndDate     *time.Time           `json:"end_date,omitempty"`
	DayOfMonth  int                  `gorm:"default:0" json:"day_of_month,omitempty"`

	// Dutch BTW breakdown inputs. VATRate and BusinessUsePercentage are
	// percentages, EscalationPercentage is the annual compound increase.
	VATRate               decimal.Decimal `gorm:"type:decimal(20,4);default:21" json:"vat_rate"`
	IsVATDeductible       bool            `gorm:"default:true" json:"is_vat_deductible"`
	BusinessUsePercentage decimal.Decimal `gorm:"type:decimal(20,4);default:100" json:"business_use_percentage"`
	EscalationPercentage  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"escalation_percentage"`

	PaymentMethod  string    `json:"payment_method,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	NextOccurrence time.Time `gorm:"not null;index" json:"next_occurrence"`

	// Relationships
	Category *ExpenseCategory `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// Schedule converts the template's date fields into a recurrence schedule.
func (t *RecurringExpenseTemplate) Schedule() recurrence.Schedule {
	return recurrence.Schedule{
		Frequency:  t.Frequency,
		StartDate:  t.StartDate,
		EndDate:    t.EndDate,
		DayOfMonth: t.DayOfMonth,
	}
}

// Costing converts the template's monetary fields into a recurrence costing.
func (t *RecurringExpenseTemplate) Costing() recurrence.Costing {
	return recurrence.Costing{
		GrossAmount:           t.Amount,
		VATRate:               t.VATRate,
		VATDeductible:         t.IsVATDeductible,
		BusinessUsePercentage: t.BusinessUsePercentage,
		EscalationPercentage:  t.EscalationPercentage,
	}
}
