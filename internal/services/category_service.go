package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "florijn/internal/errors"
	"florijn/internal/models"
	"florijn/internal/pagination"
)

// categoryService handles expense-category business logic.
type categoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB) CategoryServicer {
	return &categoryService{db: db}
}

// CreateCategory creates a new expense category for a tenant.
func (s *categoryService) CreateCategory(tenantID uint, name, description string) (*models.ExpenseCategory, error) {
	// Validate input
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}

	// Check if a category with the same name already exists for this tenant
	var count int64
	if err := s.db.Model(&models.ExpenseCategory{}).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category with this name already exists")
	}

	category := &models.ExpenseCategory{
		TenantID:    tenantID,
		Name:        name,
		Description: description,
	}

	if err := s.db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return category, nil
}

// GetTenantCategories retrieves a paginated list of categories for a tenant.
func (s *categoryService) GetTenantCategories(tenantID uint, page pagination.PageRequest) (*pagination.PageResponse[models.ExpenseCategory], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.ExpenseCategory{}).Where("tenant_id = ?", tenantID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.ExpenseCategory
	if err := base.Scopes(pagination.Paginate(page)).Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoryByID retrieves a category by ID within a tenant.
func (s *categoryService) GetCategoryByID(tenantID, categoryID uint) (*models.ExpenseCategory, error) {
	var category models.ExpenseCategory
	if err := s.db.Where("id = ? AND tenant_id = ?", categoryID, tenantID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// UpdateCategory updates an existing category's name and description.
func (s *categoryService) UpdateCategory(tenantID, categoryID uint, name, description string) (*models.ExpenseCategory, error) {
	category, err := s.GetCategoryByID(tenantID, categoryID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name != "" && name != category.Name {
		var count int64
		if err := s.db.Model(&models.ExpenseCategory{}).
			Where("tenant_id = ? AND name = ? AND id <> ?", tenantID, name, categoryID).
			Count(&count).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category with this name already exists")
		}
		updates["name"] = name
	}
	if description != "" {
		updates["description"] = description
	}

	if len(updates) > 0 {
		if err := s.db.Model(category).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return category, nil
}

// DeleteCategory soft-deletes a category. Categories referenced by expenses
// or recurring templates are protected.
func (s *categoryService) DeleteCategory(tenantID, categoryID uint) error {
	category, err := s.GetCategoryByID(tenantID, categoryID)
	if err != nil {
		return err
	}

	var expenseCount int64
	if err := s.db.Model(&models.Expense{}).
		Where("tenant_id = ? AND category_id = ?", tenantID, categoryID).
		Count(&expenseCount).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	var templateCount int64
	if err := s.db.Model(&models.RecurringExpenseTemplate{}).
		Where("tenant_id = ? AND category_id = ?", tenantID, categoryID).
		Count(&templateCount).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if expenseCount > 0 || templateCount > 0 {
		return apperrors.ErrCategoryInUse
	}

	if err := s.db.Delete(category).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
