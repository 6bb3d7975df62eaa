package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"florijn/internal/models"
	"florijn/internal/recurrence"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestTenant creates a tenant.
func CreateTestTenant(t *testing.T, db *gorm.DB) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{
		Name:     fmt.Sprintf("Test Business %d", nextID()),
		Currency: "EUR",
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to create test tenant: %v", err)
	}
	return tenant
}

// CreateTestUser creates a user in its own tenant with a hashed password and
// unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	tenant := CreateTestTenant(t, db)
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, tenant.ID, email)
}

// CreateTestUserWithEmail creates a user in the given tenant with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, tenantID uint, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		TenantID: tenantID,
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestCategory creates an expense category in the given tenant.
func CreateTestCategory(t *testing.T, db *gorm.DB, tenantID uint) *models.ExpenseCategory {
	t.Helper()

	category := &models.ExpenseCategory{
		TenantID: tenantID,
		Name:     fmt.Sprintf("Test Category %d", nextID()),
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTemplate creates an active monthly template starting on the given
// date with a gross amount of 121.00 at the 21% rate.
func CreateTestTemplate(t *testing.T, db *gorm.DB, tenantID, userID uint, startDate time.Time) *models.RecurringExpenseTemplate {
	t.Helper()
	return CreateTestTemplateWith(t, db, tenantID, userID, recurrence.FrequencyMonthly, decimal.NewFromInt(121), startDate)
}

// CreateTestTemplateWith creates an active template with the given frequency,
// gross amount, and start date.
func CreateTestTemplateWith(t *testing.T, db *gorm.DB, tenantID, userID uint, frequency recurrence.Frequency, amount decimal.Decimal, startDate time.Time) *models.RecurringExpenseTemplate {
	t.Helper()

	template := &models.RecurringExpenseTemplate{
		TenantID:              tenantID,
		CreatedByID:           userID,
		Name:                  fmt.Sprintf("Test Template %d", nextID()),
		Amount:                amount,
		Currency:              "EUR",
		Frequency:             frequency,
		StartDate:             startDate,
		VATRate:               decimal.NewFromInt(21),
		IsVATDeductible:       true,
		BusinessUsePercentage: decimal.NewFromInt(100),
		EscalationPercentage:  decimal.Zero,
		IsActive:              true,
		NextOccurrence:        startDate,
	}
	if err := db.Create(template).Error; err != nil {
		t.Fatalf("failed to create test template: %v", err)
	}
	return template
}

// CreateTestExpense creates a manually recorded expense.
func CreateTestExpense(t *testing.T, db *gorm.DB, tenantID, userID uint, amount decimal.Decimal, expenseDate time.Time) *models.Expense {
	t.Helper()

	expense := &models.Expense{
		TenantID:    tenantID,
		CreatedByID: userID,
		Title:       fmt.Sprintf("Test Expense %d", nextID()),
		ExpenseDate: expenseDate,
		Amount:      amount,
		Currency:    "EUR",
		VATRate:     decimal.NewFromInt(21),
		Status:      models.ExpenseStatusDraft,
	}
	if err := db.Create(expense).Error; err != nil {
		t.Fatalf("failed to create test expense: %v", err)
	}
	return expense
}

// CreateTestMaterializedExpense creates an expense correlated to a template
// occurrence, marking that occurrence as recorded.
func CreateTestMaterializedExpense(t *testing.T, db *gorm.DB, template *models.RecurringExpenseTemplate, occurrenceDate time.Time) *models.Expense {
	t.Helper()

	expense := &models.Expense{
		TenantID:       template.TenantID,
		CreatedByID:    template.CreatedByID,
		CategoryID:     template.CategoryID,
		Title:          fmt.Sprintf("%s (%s)", template.Name, occurrenceDate.Format(recurrence.DateLayout)),
		ExpenseDate:    occurrenceDate,
		Amount:         template.Amount,
		Currency:       template.Currency,
		VATRate:        template.VATRate,
		Status:         models.ExpenseStatusDraft,
		TemplateID:     &template.ID,
		OccurrenceDate: &occurrenceDate,
	}
	if err := db.Create(expense).Error; err != nil {
		t.Fatalf("failed to create test materialized expense: %v", err)
	}
	return expense
}
