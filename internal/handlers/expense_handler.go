package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "florijn/internal/errors"
	"florijn/internal/models"
	"florijn/internal/pagination"
	"florijn/internal/services"
)

// ExpenseHandler handles expense-related requests
type ExpenseHandler struct {
	expenseService services.ExpenseServicer
	auditService   services.AuditServicer
}

// NewExpenseHandler creates a new ExpenseHandler
func NewExpenseHandler(expenseService services.ExpenseServicer, auditService services.AuditServicer) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService, auditService: auditService}
}

// CreateExpenseRequest represents the request payload for recording an expense.
// Amount is gross (BTW-inclusive); the VAT breakdown is computed server-side.
type CreateExpenseRequest struct {
	CategoryID    *uint           `json:"category_id"`
	Title         string          `json:"title" binding:"required,max=255"`
	Description   string          `json:"description" binding:"max=1000"`
	ExpenseDate   string          `json:"expense_date" binding:"required"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Currency      string          `json:"currency" binding:"omitempty,iso4217"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	Status        string          `json:"status" binding:"omitempty,expense_status"`
	PaymentMethod string          `json:"payment_method" binding:"omitempty,payment_method"`
}

// UpdateExpenseRequest represents the request payload for updating an expense
type UpdateExpenseRequest struct {
	Title         string           `json:"title" binding:"max=255"`
	Description   *string          `json:"description" binding:"omitempty,max=1000"`
	ExpenseDate   *string          `json:"expense_date"`
	Amount        *decimal.Decimal `json:"amount"`
	VATRate       *decimal.Decimal `json:"vat_rate"`
	Status        *string          `json:"status" binding:"omitempty,expense_status"`
	PaymentMethod *string          `json:"payment_method" binding:"omitempty,payment_method"`
	CategoryID    *uint            `json:"category_id"`
}

// CreateExpense handles recording a new expense
// @Summary     Record an expense
// @Description Record a manual expense; the VAT breakdown is derived from the gross amount
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateExpenseRequest true "Expense details"
// @Success     201 {object} models.Expense "Expense recorded"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses [post]
func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	expenseDate, err := parseFlexibleTime(req.ExpenseDate)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	expense, err := h.expenseService.CreateExpense(tenantID, userID, services.CreateExpenseInput{
		CategoryID:    req.CategoryID,
		Title:         req.Title,
		Description:   req.Description,
		ExpenseDate:   expenseDate,
		Amount:        req.Amount,
		Currency:      req.Currency,
		VATRate:       req.VATRate,
		Status:        models.ExpenseStatus(req.Status),
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "CREATE_EXPENSE", "expense", expense.ID, c.ClientIP(),
		map[string]interface{}{"title": req.Title, "amount": req.Amount.String()})

	c.JSON(http.StatusCreated, gin.H{"expense": expense})
}

// GetExpenses handles the paginated retrieval of the tenant's expenses
// @Summary     Get expenses
// @Description Get a paginated list of the tenant's expenses with optional filters
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Param       from_date   query string false "Filter by start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date     query string false "Filter by end date (RFC3339 or YYYY-MM-DD)"
// @Param       status      query string false "Filter by status (draft, confirmed)"
// @Param       category_id query int    false "Filter by category ID"
// @Param       template_id query int    false "Filter by originating recurring template ID"
// @Success     200 {object} pagination.PageResponse[models.Expense] "Paginated expenses"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses [get]
func (h *ExpenseHandler) GetExpenses(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := parseExpenseFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.expenseService.GetTenantExpenses(tenantID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetExpense handles the retrieval of a single expense
// @Summary     Get an expense
// @Description Get a single expense by ID
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Expense ID"
// @Success     200 {object} models.Expense "Expense"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Expense not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/{id} [get]
func (h *ExpenseHandler) GetExpense(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	expenseID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	expense, err := h.expenseService.GetExpenseByID(tenantID, expenseID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expense": expense})
}

// UpdateExpense handles updating an expense
// @Summary     Update an expense
// @Description Update an expense; amount or VAT rate changes recompute the stored VAT breakdown
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path int                  true "Expense ID"
// @Param       request body UpdateExpenseRequest true "Expense updates"
// @Success     200 {object} models.Expense "Expense updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Expense not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/{id} [put]
func (h *ExpenseHandler) UpdateExpense(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	expenseID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input := services.UpdateExpenseInput{
		Title:         req.Title,
		Description:   req.Description,
		Amount:        req.Amount,
		VATRate:       req.VATRate,
		PaymentMethod: req.PaymentMethod,
		CategoryID:    req.CategoryID,
	}
	if req.ExpenseDate != nil && *req.ExpenseDate != "" {
		parsed, parseErr := parseFlexibleTime(*req.ExpenseDate)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, parseErr.Error()))
			return
		}
		input.ExpenseDate = &parsed
	}
	if req.Status != nil {
		status := models.ExpenseStatus(*req.Status)
		input.Status = &status
	}

	expense, err := h.expenseService.UpdateExpense(tenantID, expenseID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "UPDATE_EXPENSE", "expense", expenseID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"expense": expense})
}

// DeleteExpense handles deleting an expense
// @Summary     Delete an expense
// @Description Delete an expense; a materialized occurrence becomes outstanding again
// @Tags        expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Expense ID"
// @Success     204 "Expense deleted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Expense not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /expenses/{id} [delete]
func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	expenseID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.expenseService.DeleteExpense(tenantID, expenseID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "DELETE_EXPENSE", "expense", expenseID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// parseExpenseFilter parses the optional expense list filters from query
// parameters.
func parseExpenseFilter(c *gin.Context) (services.ExpenseFilter, error) {
	var filter services.ExpenseFilter

	if v := c.Query("from_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.FromDate = &t
	}

	if v := c.Query("to_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.ToDate = &t
	}

	if v := c.Query("status"); v != "" {
		status := models.ExpenseStatus(v)
		switch status {
		case models.ExpenseStatusDraft, models.ExpenseStatusConfirmed:
			filter.Status = &status
		default:
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid status, must be draft or confirmed")
		}
	}

	if v := c.Query("category_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid category_id")
		}
		catID := uint(id)
		filter.CategoryID = &catID
	}

	if v := c.Query("template_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid template_id")
		}
		tmplID := uint(id)
		filter.TemplateID = &tmplID
	}

	return filter, nil
}
