package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "florijn/internal/errors"
	"florijn/internal/pagination"
	"florijn/internal/recurrence"
	"florijn/internal/services"
)

// RecurringExpenseHandler handles recurring-expense template requests
type RecurringExpenseHandler struct {
	recurringService services.RecurringExpenseServicer
	auditService     services.AuditServicer
}

// NewRecurringExpenseHandler creates a new RecurringExpenseHandler
func NewRecurringExpenseHandler(recurringService services.RecurringExpenseServicer, auditService services.AuditServicer) *RecurringExpenseHandler {
	return &RecurringExpenseHandler{recurringService: recurringService, auditService: auditService}
}

// CreateTemplateRequest represents the request payload for creating a
// recurring expense template. Amount is gross (BTW-inclusive).
type CreateTemplateRequest struct {
	CategoryID            *uint            `json:"category_id"`
	Name                  string           `json:"name" binding:"required,max=255"`
	Description           string           `json:"description" binding:"max=1000"`
	Amount                decimal.Decimal  `json:"amount" binding:"required"`
	Currency              string           `json:"currency" binding:"omitempty,iso4217"`
	Frequency             string           `json:"frequency" binding:"required,frequency"`
	StartDate             string           `json:"start_date" binding:"required"`
	EndDate               *string          `json:"end_date"`
	DayOfMonth            int              `json:"day_of_month" binding:"min=0,max=31"`
	VATRate               *decimal.Decimal `json:"vat_rate"`
	IsVATDeductible       *bool            `json:"is_vat_deductible"`
	BusinessUsePercentage *decimal.Decimal `json:"business_use_percentage"`
	EscalationPercentage  *decimal.Decimal `json:"escalation_percentage"`
	PaymentMethod         string           `json:"payment_method" binding:"omitempty,payment_method"`
	Notes                 string           `json:"notes" binding:"max=1000"`
}

// UpdateTemplateRequest represents the request payload for updating a template
type UpdateTemplateRequest struct {
	Name                  string           `json:"name" binding:"max=255"`
	Description           *string          `json:"description" binding:"omitempty,max=1000"`
	CategoryID            *uint            `json:"category_id"`
	Amount                *decimal.Decimal `json:"amount"`
	Frequency             *string          `json:"frequency" binding:"omitempty,frequency"`
	StartDate             *string          `json:"start_date"`
	EndDate               *string          `json:"end_date"`
	DayOfMonth            *int             `json:"day_of_month" binding:"omitempty,min=0,max=31"`
	VATRate               *decimal.Decimal `json:"vat_rate"`
	IsVATDeductible       *bool            `json:"is_vat_deductible"`
	BusinessUsePercentage *decimal.Decimal `json:"business_use_percentage"`
	EscalationPercentage  *decimal.Decimal `json:"escalation_percentage"`
	PaymentMethod         *string          `json:"payment_method" binding:"omitempty,payment_method"`
	Notes                 *string          `json:"notes" binding:"omitempty,max=1000"`
	IsActive              *bool            `json:"is_active"`
}

// CreateTemplate handles the creation of a recurring expense template
// @Summary     Create a recurring expense template
// @Description Create a recurring expense template with a validated schedule
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateTemplateRequest true "Template details"
// @Success     201 {object} models.RecurringExpenseTemplate "Template created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Category not found"
// @Failure     422 {object} ErrorResponse "Invalid schedule"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses [post]
func (h *RecurringExpenseHandler) CreateTemplate(c *gin.Context) {
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

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	startDate, err := parseFlexibleTime(req.StartDate)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	var endDate *time.Time
	if req.EndDate != nil && *req.EndDate != "" {
		parsed, parseErr := parseFlexibleTime(*req.EndDate)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, parseErr.Error()))
			return
		}
		endDate = &parsed
	}

	template, err := h.recurringService.CreateTemplate(tenantID, userID, services.CreateTemplateInput{
		CategoryID:            req.CategoryID,
		Name:                  req.Name,
		Description:           req.Description,
		Amount:                req.Amount,
		Currency:              req.Currency,
		Frequency:             recurrence.Frequency(req.Frequency),
		StartDate:             startDate,
		EndDate:               endDate,
		DayOfMonth:            req.DayOfMonth,
		VATRate:               req.VATRate,
		IsVATDeductible:       req.IsVATDeductible,
		BusinessUsePercentage: req.BusinessUsePercentage,
		EscalationPercentage:  req.EscalationPercentage,
		PaymentMethod:         req.PaymentMethod,
		Notes:                 req.Notes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "CREATE_RECURRING_TEMPLATE", "recurring_expense_template", template.ID, c.ClientIP(),
		map[string]interface{}{"name": req.Name, "frequency": req.Frequency, "amount": req.Amount.String()})

	c.JSON(http.StatusCreated, gin.H{"template": template})
}

// ListTemplates handles the paginated retrieval of templates with
// reconciliation overviews
// @Summary     Get recurring expense templates
// @Description Get a paginated list of templates annotated with annual cost, upcoming occurrences, and outstanding counts
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page        query int    false "Page number (default 1)"
// @Param       page_size   query int    false "Items per page (default 20, max 100)"
// @Param       is_active   query bool   false "Filter by active flag"
// @Param       category_id query int    false "Filter by category ID"
// @Param       as_of       query string false "Reference date for reconciliation (YYYY-MM-DD, default today)"
// @Success     200 {object} pagination.PageResponse[services.TemplateOverview] "Paginated template overviews"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses [get]
func (h *RecurringExpenseHandler) ListTemplates(c *gin.Context) {
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

	var isActive *bool
	if v := c.Query("is_active"); v != "" {
		active, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid is_active"))
			return
		}
		isActive = &active
	}
	var categoryID *uint
	if v := c.Query("category_id"); v != "" {
		id, parseErr := strconv.ParseUint(v, 10, 32)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid category_id"))
			return
		}
		catID := uint(id)
		categoryID = &catID
	}
	asOf, err := parseAsOf(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.recurringService.ListTemplates(tenantID, page, isActive, categoryID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTemplate handles the retrieval of a single template
// @Summary     Get a recurring expense template
// @Description Get a single recurring expense template by ID
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Template ID"
// @Success     200 {object} models.RecurringExpenseTemplate "Template"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/{id} [get]
func (h *RecurringExpenseHandler) GetTemplate(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	template, err := h.recurringService.GetTemplateByID(tenantID, templateID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"template": template})
}

// UpdateTemplate handles updating a template
// @Summary     Update a recurring expense template
// @Description Update a template; schedule changes are re-validated and never rewrite materialized expenses
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path int                   true "Template ID"
// @Param       request body UpdateTemplateRequest true "Template updates"
// @Success     200 {object} models.RecurringExpenseTemplate "Template updated"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Failure     422 {object} ErrorResponse "Invalid schedule"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/{id} [put]
func (h *RecurringExpenseHandler) UpdateTemplate(c *gin.Context) {
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
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	input := services.UpdateTemplateInput{
		Name:                  req.Name,
		Description:           req.Description,
		CategoryID:            req.CategoryID,
		Amount:                req.Amount,
		DayOfMonth:            req.DayOfMonth,
		VATRate:               req.VATRate,
		IsVATDeductible:       req.IsVATDeductible,
		BusinessUsePercentage: req.BusinessUsePercentage,
		EscalationPercentage:  req.EscalationPercentage,
		PaymentMethod:         req.PaymentMethod,
		Notes:                 req.Notes,
		IsActive:              req.IsActive,
	}
	if req.Frequency != nil {
		freq := recurrence.Frequency(*req.Frequency)
		input.Frequency = &freq
	}
	if req.StartDate != nil && *req.StartDate != "" {
		parsed, parseErr := parseFlexibleTime(*req.StartDate)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, parseErr.Error()))
			return
		}
		input.StartDate = &parsed
	}
	if req.EndDate != nil && *req.EndDate != "" {
		parsed, parseErr := parseFlexibleTime(*req.EndDate)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, parseErr.Error()))
			return
		}
		input.EndDate = &parsed
	}

	template, err := h.recurringService.UpdateTemplate(tenantID, templateID, input)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "UPDATE_RECURRING_TEMPLATE", "recurring_expense_template", templateID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"template": template})
}

// DeleteTemplate handles deleting a template
// @Summary     Delete a recurring expense template
// @Description Delete a template that has no materialized expenses
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Template ID"
// @Success     204 "Template deleted"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Failure     409 {object} ErrorResponse "Template has materialized expenses"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/{id} [delete]
func (h *RecurringExpenseHandler) DeleteTemplate(c *gin.Context) {
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
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.recurringService.DeleteTemplate(tenantID, templateID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "DELETE_RECURRING_TEMPLATE", "recurring_expense_template", templateID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}

// Due handles the reconciliation report of templates with outstanding
// occurrences
// @Summary     Get due templates
// @Description Get templates with occurrences due on or before the reference date and no matching recorded expense
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       as_of query string false "Reference date (YYYY-MM-DD, default today)"
// @Success     200 {array} services.DueTemplate "Templates with outstanding occurrences"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/due [get]
func (h *RecurringExpenseHandler) Due(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	asOf, err := parseAsOf(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	due, err := h.recurringService.Due(tenantID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"due": due, "count": len(due)})
}

// Preview handles projecting a template's future occurrences
// @Summary     Preview future occurrences
// @Description Project the template's next occurrences without creating expenses
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int    true  "Template ID"
// @Param       count query int    false "Number of occurrences (1-100, default 12)"
// @Param       from  query string false "Project occurrences strictly after this date (YYYY-MM-DD, default today)"
// @Success     200 {object} services.TemplatePreview "Projected occurrences and metrics"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/{id}/preview [get]
func (h *RecurringExpenseHandler) Preview(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	count := 12
	if v := c.Query("count"); v != "" {
		parsed, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid count"))
			return
		}
		count = parsed
	}

	from := time.Now()
	if v := c.Query("from"); v != "" {
		parsed, parseErr := parseFlexibleTime(v)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, parseErr.Error()))
			return
		}
		from = parsed
	}

	preview, err := h.recurringService.Preview(tenantID, templateID, count, from)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

// Materialize handles creating expenses from outstanding occurrences
// @Summary     Materialize outstanding occurrences
// @Description Create one draft expense per outstanding occurrence of the template
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  int    true  "Template ID"
// @Param       as_of query string false "Reference date (YYYY-MM-DD, default today)"
// @Success     201 {object} services.MaterializeResult "Created expenses"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Template not found"
// @Failure     409 {object} ErrorResponse "Template inactive or nothing outstanding"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/{id}/materialize [post]
func (h *RecurringExpenseHandler) Materialize(c *gin.Context) {
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
	templateID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	asOf, err := parseAsOf(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.recurringService.Materialize(tenantID, userID, templateID, asOf)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(tenantID, userID, "MATERIALIZE_RECURRING_TEMPLATE", "recurring_expense_template", templateID, c.ClientIP(),
		map[string]interface{}{"created": len(result.Created), "total_amount": result.TotalAmount.String()})

	c.JSON(http.StatusCreated, result)
}

// Summary handles the annualized cost summary for the tenant
// @Summary     Get recurring cost summary
// @Description Get the tenant's annualized recurring cost totals, grouped by frequency
// @Tags        recurring-expenses
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.RecurringSummary "Recurring cost summary"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /recurring-expenses/summary [get]
func (h *RecurringExpenseHandler) Summary(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.recurringService.Summary(tenantID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// parseAsOf parses the optional as_of reference date, defaulting to now.
func parseAsOf(c *gin.Context) (time.Time, error) {
	v := c.Query("as_of")
	if v == "" {
		return time.Now(), nil
	}
	t, err := parseFlexibleTime(v)
	if err != nil {
		return time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid as_of format, use RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
