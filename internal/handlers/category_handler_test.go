package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "florijn/internal/errors"
	"florijn/internal/models"
	"florijn/internal/pagination"
	"florijn/internal/services"
)

// --- mock category service ---

type mockCategoryService struct {
	createCategoryFn      func(tenantID uint, name, description string) (*models.ExpenseCategory, error)
	getTenantCategoriesFn func(tenantID uint, page pagination.PageRequest) (*pagination.PageResponse[models.ExpenseCategory], error)
	getCategoryByIDFn     func(tenantID, categoryID uint) (*models.ExpenseCategory, error)
	updateCategoryFn      func(tenantID, categoryID uint, name, description string) (*models.ExpenseCategory, error)
	deleteCategoryFn      func(tenantID, categoryID uint) error
}

func (m *mockCategoryService) CreateCategory(tenantID uint, name, description string) (*models.ExpenseCategory, error) {
	if m.createCategoryFn != nil {
		return m.createCategoryFn(tenantID, name, description)
	}
	return &models.ExpenseCategory{}, nil
}

func (m *mockCategoryService) GetTenantCategories(tenantID uint, page pagination.PageRequest) (*pagination.PageResponse[models.ExpenseCategory], error) {
	if m.getTenantCategoriesFn != nil {
		return m.getTenantCategoriesFn(tenantID, page)
	}
	resp := pagination.NewPageResponse([]models.ExpenseCategory{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockCategoryService) GetCategoryByID(tenantID, categoryID uint) (*models.ExpenseCategory, error) {
	if m.getCategoryByIDFn != nil {
		return m.getCategoryByIDFn(tenantID, categoryID)
	}
	return &models.ExpenseCategory{}, nil
}

func (m *mockCategoryService) UpdateCategory(tenantID, categoryID uint, name, description string) (*models.ExpenseCategory, error) {
	if m.updateCategoryFn != nil {
		return m.updateCategoryFn(tenantID, categoryID, name, description)
	}
	return &models.ExpenseCategory{}, nil
}

func (m *mockCategoryService) DeleteCategory(tenantID, categoryID uint) error {
	if m.deleteCategoryFn != nil {
		return m.deleteCategoryFn(tenantID, categoryID)
	}
	return nil
}

var _ services.CategoryServicer = (*mockCategoryService)(nil)

func setupCategoryRouter(handler *CategoryHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectAuth(1, 1))
	auth.POST("/categories", handler.CreateCategory)
	auth.GET("/categories", handler.GetCategories)
	auth.GET("/categories/:id", handler.GetCategory)
	auth.PUT("/categories/:id", handler.UpdateCategory)
	auth.DELETE("/categories/:id", handler.DeleteCategory)
	return r
}

func TestCategoryHandler_CreateCategory(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		catSvc := &mockCategoryService{
			createCategoryFn: func(tenantID uint, name, description string) (*models.ExpenseCategory, error) {
				return &models.ExpenseCategory{
					Base:        models.Base{ID: 1},
					TenantID:    tenantID,
					Name:        name,
					Description: description,
				}, nil
			},
		}
		handler := NewCategoryHandler(catSvc, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "POST", "/categories", `{"name":"Software","description":"SaaS subscriptions"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		cat := result["category"].(map[string]interface{})
		if cat["name"] != "Software" {
			t.Errorf("expected Software, got %v", cat["name"])
		}
	})

	t.Run("returns 400 on missing name", func(t *testing.T) {
		handler := NewCategoryHandler(&mockCategoryService{}, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "POST", "/categories", `{"description":"no name"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCategoryHandler_GetCategories(t *testing.T) {
	t.Run("returns 200 with page", func(t *testing.T) {
		catSvc := &mockCategoryService{
			getTenantCategoriesFn: func(_ uint, _ pagination.PageRequest) (*pagination.PageResponse[models.ExpenseCategory], error) {
				resp := pagination.NewPageResponse([]models.ExpenseCategory{
					{Base: models.Base{ID: 1}, Name: "Software"},
					{Base: models.Base{ID: 2}, Name: "Hosting"},
				}, 1, 20, 2)
				return &resp, nil
			},
		}
		handler := NewCategoryHandler(catSvc, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "GET", "/categories", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		result := parseJSON(t, rec)
		if result["total_items"] != float64(2) {
			t.Errorf("expected total_items 2, got %v", result["total_items"])
		}
	})

	t.Run("returns 400 on invalid page size", func(t *testing.T) {
		handler := NewCategoryHandler(&mockCategoryService{}, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "GET", "/categories?page_size=1000", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCategoryHandler_GetCategory(t *testing.T) {
	t.Run("returns 404 when missing", func(t *testing.T) {
		catSvc := &mockCategoryService{
			getCategoryByIDFn: func(_, _ uint) (*models.ExpenseCategory, error) {
				return nil, apperrors.ErrCategoryNotFound
			},
		}
		handler := NewCategoryHandler(catSvc, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "GET", "/categories/42", "")

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_NOT_FOUND")
	})

	t.Run("returns 400 on bad id", func(t *testing.T) {
		handler := NewCategoryHandler(&mockCategoryService{}, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "GET", "/categories/abc", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCategoryHandler_DeleteCategory(t *testing.T) {
	t.Run("returns 204 on success", func(t *testing.T) {
		handler := NewCategoryHandler(&mockCategoryService{}, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "DELETE", "/categories/1", "")

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("returns 409 when in use", func(t *testing.T) {
		catSvc := &mockCategoryService{
			deleteCategoryFn: func(_, _ uint) error {
				return apperrors.ErrCategoryInUse
			},
		}
		handler := NewCategoryHandler(catSvc, &mockAuditService{})
		r := setupCategoryRouter(handler)

		rec := doRequest(r, "DELETE", "/categories/1", "")

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "CATEGORY_IN_USE")
	})
}
