package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "florijn/internal/errors"
	"florijn/internal/models"
	"florijn/internal/pagination"
	"florijn/internal/recurrence"
)

// expenseService handles expense business logic.
type expenseService struct {
	db *gorm.DB
}

// NewExpenseService creates a new ExpenseServicer.
func NewExpenseService(db *gorm.DB) ExpenseServicer {
	return &expenseService{db: db}
}

// CreateExpense records a manual expense. The VAT breakdown is computed from
// the gross amount server-side; clients never submit VAT amounts directly.
func (s *expenseService) CreateExpense(tenantID, userID uint, input CreateExpenseInput) (*models.Expense, error) {
	if input.Title == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "expense title is required")
	}
	if input.Amount.Sign() <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "expense amount must be positive")
	}
	if input.ExpenseDate.IsZero() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "expense date is required")
	}

	if input.CategoryID != nil {
		if err := s.checkCategory(tenantID, *input.CategoryID); err != nil {
			return nil, err
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = "EUR"
	}
	status := input.Status
	if status == "" {
		status = models.ExpenseStatusDraft
	}

	vat, deductible := recurrence.VATBreakdown(input.Amount, input.VATRate, true, decimal.Zero)

	expense := &models.Expense{
		TenantID:            tenantID,
		CreatedByID:         userID,
		CategoryID:          input.CategoryID,
		Title:               input.Title,
		Description:         input.Description,
		ExpenseDate:         input.ExpenseDate,
		Amount:              input.Amount,
		Currency:            currency,
		VATRate:             input.VATRate,
		VATAmount:           vat,
		DeductibleVATAmount: deductible,
		Status:              status,
		PaymentMethod:       input.PaymentMethod,
	}

	if err := s.db.Create(expense).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return expense, nil
}

// GetTenantExpenses retrieves a paginated, filtered list of expenses for a
// tenant, newest expense date first.
func (s *expenseService) GetTenantExpenses(tenantID uint, page pagination.PageRequest, filter ExpenseFilter) (*pagination.PageResponse[models.Expense], error) {
	page.Defaults()

	base := s.db.Model(&models.Expense{}).Where("tenant_id = ?", tenantID)
	if filter.FromDate != nil {
		base = base.Where("expense_date >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		base = base.Where("expense_date <= ?", *filter.ToDate)
	}
	if filter.Status != nil {
		base = base.Where("status = ?", *filter.Status)
	}
	if filter.CategoryID != nil {
		base = base.Where("category_id = ?", *filter.CategoryID)
	}
	if filter.TemplateID != nil {
		base = base.Where("template_id = ?", *filter.TemplateID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var expenses []models.Expense
	if err := base.Preload("Category").
		Order("expense_date DESC, id DESC").
		Scopes(pagination.Paginate(page)).
		Find(&expenses).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(expenses, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetExpenseByID retrieves an expense by ID within a tenant.
func (s *expenseService) GetExpenseByID(tenantID, expenseID uint) (*models.Expense, error) {
	var expense models.Expense
	if err := s.db.Preload("Category").
		Where("id = ? AND tenant_id = ?", expenseID, tenantID).
		First(&expense).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrExpenseNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &expense, nil
}

// UpdateExpense applies partial updates to an expense. Changing the amount or
// VAT rate recomputes the stored VAT breakdown. The occurrence correlation
// columns are immutable: an expense materialized from a template keeps its
// occurrence date even when its payable amount is edited afterwards.
func (s *expenseService) UpdateExpense(tenantID, expenseID uint, input UpdateExpenseInput) (*models.Expense, error) {
	expense, err := s.GetExpenseByID(tenantID, expenseID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if input.Title != "" {
		updates["title"] = input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.ExpenseDate != nil {
		updates["expense_date"] = *input.ExpenseDate
	}
	if input.Status != nil {
		updates["status"] = *input.Status
	}
	if input.PaymentMethod != nil {
		updates["payment_method"] = *input.PaymentMethod
	}
	if input.CategoryID != nil {
		if err := s.checkCategory(tenantID, *input.CategoryID); err != nil {
			return nil, err
		}
		updates["category_id"] = *input.CategoryID
	}

	amount := expense.Amount
	vatRate := expense.VATRate
	recompute := false
	if input.Amount != nil {
		if input.Amount.Sign() <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "expense amount must be positive")
		}
		amount = *input.Amount
		updates["amount"] = amount
		recompute = true
	}
	if input.VATRate != nil {
		vatRate = *input.VATRate
		updates["vat_rate"] = vatRate
		recompute = true
	}
	if recompute {
		vat, deductible := recurrence.VATBreakdown(amount, vatRate, true, decimal.Zero)
		updates["vat_amount"] = vat
		updates["deductible_vat_amount"] = deductible
	}

	if len(updates) > 0 {
		if err := s.db.Model(expense).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetExpenseByID(tenantID, expenseID)
}

// DeleteExpense soft-deletes an expense. Deleting a materialized expense
// reopens its occurrence: the reconciliation pass will report it outstanding
// again on the next due check.
func (s *expenseService) DeleteExpense(tenantID, expenseID uint) error {
	expense, err := s.GetExpenseByID(tenantID, expenseID)
	if err != nil {
		return err
	}
	if err := s.db.Delete(expense).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// checkCategory verifies the category exists within the tenant.
func (s *expenseService) checkCategory(tenantID, categoryID uint) error {
	var count int64
	if err := s.db.Model(&models.ExpenseCategory{}).
		Where("id = ? AND tenant_id = ?", categoryID, tenantID).
		Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return apperrors.ErrCategoryNotFound
	}
	return nil
}
