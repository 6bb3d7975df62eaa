package models

// ExpenseCategory groups expenses and recurring templates within a tenant.
type ExpenseCategory struct {
	Base
	TenantID    uint   `gorm:"not null;index" json:"tenant_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`

	// Relationships
	Expenses  []Expense                  `gorm:"foreignKey:CategoryID" json:"expenses,omitempty"`
	Templates []RecurringExpenseTemplate `gorm:"foreignKey:CategoryID" json:"templates,omitempty"`
}
