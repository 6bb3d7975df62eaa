package services

import (
	"time"

	"github.com/shopspring/decimal"

	"florijn/internal/models"
	"florijn/internal/pagination"
	"florijn/internal/recurrence"
)

// UserServicer defines the contract for user and tenant related business logic.
type UserServicer interface {
	Register(tenantName, email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id uint) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID uint, tokenHash string) error
	GetRefreshTokenHash(userID uint) (string, error)
}

// CategoryServicer defines the contract for expense-category business logic.
type CategoryServicer interface {
	CreateCategory(tenantID uint, name, description string) (*models.ExpenseCategory, error)
	GetTenantCategories(tenantID uint, page pagination.PageRequest) (*pagination.PageResponse[models.ExpenseCategory], error)
	GetCategoryByID(tenantID, categoryID uint) (*models.ExpenseCategory, error)
	UpdateCategory(tenantID, categoryID uint, name, description string) (*models.ExpenseCategory, error)
	DeleteCategory(tenantID, categoryID uint) error
}

// ExpenseFilter holds optional filter parameters for listing expenses.
type ExpenseFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Status     *models.ExpenseStatus
	CategoryID *uint
	TemplateID *uint
}

// CreateExpenseInput carries the fields for a manually recorded expense.
type CreateExpenseInput struct {
	CategoryID    *uint
	Title         string
	Description   string
	ExpenseDate   time.Time
	Amount        decimal.Decimal
	Currency      string
	VATRate       decimal.Decimal
	Status        models.ExpenseStatus
	PaymentMethod string
}

// UpdateExpenseInput carries optional updates; nil fields are left unchanged.
type UpdateExpenseInput struct {
	Title         string
	Description   *string
	ExpenseDate   *time.Time
	Amount        *decimal.Decimal
	VATRate       *decimal.Decimal
	Status        *models.ExpenseStatus
	PaymentMethod *string
	CategoryID    *uint
}

// ExpenseServicer defines the contract for expense business logic.
type ExpenseServicer interface {
	CreateExpense(tenantID, userID uint, input CreateExpenseInput) (*models.Expense, error)
	GetTenantExpenses(tenantID uint, page pagination.PageRequest, filter ExpenseFilter) (*pagination.PageResponse[models.Expense], error)
	GetExpenseByID(tenantID, expenseID uint) (*models.Expense, error)
	UpdateExpense(tenantID, expenseID uint, input UpdateExpenseInput) (*models.Expense, error)
	DeleteExpense(tenantID, expenseID uint) error
}

// CreateTemplateInput carries the fields for a new recurring expense template.
type CreateTemplateInput struct {
	CategoryID            *uint
	Name                  string
	Description           string
	Amount                decimal.Decimal
	Currency              string
	Frequency             recurrence.Frequency
	StartDate             time.Time
	EndDate               *time.Time
	DayOfMonth            int
	VATRate               *decimal.Decimal
	IsVATDeductible       *bool
	BusinessUsePercentage *decimal.Decimal
	EscalationPercentage  *decimal.Decimal
	PaymentMethod         string
	Notes                 string
}

// UpdateTemplateInput carries optional template updates; nil fields are left
// unchanged. Changing schedule or amount never rewrites expenses that were
// already materialized.
type UpdateTemplateInput struct {
	Name                  string
	Description           *string
	CategoryID            *uint
	Amount                *decimal.Decimal
	Frequency             *recurrence.Frequency
	StartDate             *time.Time
	EndDate               *time.Time
	DayOfMonth            *int
	VATRate               *decimal.Decimal
	IsVATDeductible       *bool
	BusinessUsePercentage *decimal.Decimal
	EscalationPercentage  *decimal.Decimal
	PaymentMethod         *string
	Notes                 *string
	IsActive              *bool
}

// TemplateOverview is a template annotated with computed reconciliation data
// for list views.
type TemplateOverview struct {
	Template                  models.RecurringExpenseTemplate `json:"template"`
	AnnualCost                decimal.Decimal                 `json:"annual_cost"`
	NextOccurrences           []recurrence.Occurrence         `json:"next_occurrences"`
	ExpectedOccurrences       int                             `json:"expected_occurrences"`
	RecordedOccurrences       int                             `json:"recorded_occurrences"`
	OutstandingOccurrences    int                             `json:"outstanding_occurrences"`
	OutstandingAmount         decimal.Decimal                 `json:"outstanding_amount"`
	NextOutstandingOccurrence string                          `json:"next_outstanding_occurrence,omitempty"`
}

// DueTemplate is a template with at least one outstanding occurrence.
type DueTemplate struct {
	Template           models.RecurringExpenseTemplate `json:"template"`
	OccurrencesDue     int                             `json:"occurrences_due"`
	TotalAmount        decimal.Decimal                 `json:"total_amount"`
	NextOccurrenceDate string                          `json:"next_occurrence_date"`
	LastOccurrenceDate string                          `json:"last_occurrence_date"`
}

// PreviewMetrics summarizes a preview of future occurrences.
type PreviewMetrics struct {
	Count              int             `json:"count"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	AnnualCost         decimal.Decimal `json:"annual_cost"`
	AverageMonthlyCost decimal.Decimal `json:"average_monthly_cost"`
}

// TemplatePreview is the result of projecting future occurrences.
type TemplatePreview struct {
	Template    models.RecurringExpenseTemplate `json:"template"`
	Occurrences []recurrence.Occurrence         `json:"occurrences"`
	Metrics     PreviewMetrics                  `json:"metrics"`
}

// MaterializeResult reports the expenses created from outstanding occurrences.
type MaterializeResult struct {
	TemplateID      uint             `json:"template_id"`
	Created         []models.Expense `json:"created"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	NextOccurrence  string           `json:"next_occurrence,omitempty"`
	ScheduleExpired bool             `json:"schedule_expired"`
}

// RecurringSummary aggregates annualized recurring costs for a tenant.
type RecurringSummary struct {
	TenantID        uint                                     `json:"tenant_id"`
	ActiveTemplates int                                      `json:"active_templates"`
	AnnualTotal     decimal.Decimal                          `json:"annual_total"`
	MonthlyAverage  decimal.Decimal                          `json:"monthly_average"`
	ByFrequency     map[recurrence.Frequency]decimal.Decimal `json:"by_frequency"`
}

// RecurringExpenseServicer defines the contract for recurring-expense
// template business logic, including reconciliation of computed occurrences
// against recorded expenses.
type RecurringExpenseServicer interface {
	CreateTemplate(tenantID, userID uint, input CreateTemplateInput) (*models.RecurringExpenseTemplate, error)
	GetTemplateByID(tenantID, templateID uint) (*models.RecurringExpenseTemplate, error)
	ListTemplates(tenantID uint, page pagination.PageRequest, isActive *bool, categoryID *uint, today time.Time) (*pagination.PageResponse[TemplateOverview], error)
	UpdateTemplate(tenantID, templateID uint, input UpdateTemplateInput) (*models.RecurringExpenseTemplate, error)
	DeleteTemplate(tenantID, templateID uint) error
	Due(tenantID uint, today time.Time) ([]DueTemplate, error)
	Preview(tenantID, templateID uint, count int, from time.Time) (*TemplatePreview, error)
	Materialize(tenantID, userID, templateID uint, today time.Time) (*MaterializeResult, error)
	MaterializeAllTenants(today time.Time) ([]MaterializeResult, error)
	Summary(tenantID uint) (*RecurringSummary, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(tenantID, userID uint, action, resourceType string, resourceID uint, ipAddress string, changes map[string]interface{})
}
