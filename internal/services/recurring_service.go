package services

import (
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "florijn/internal/errors"
	"florijn/internal/models"
	"florijn/internal/pagination"
	"florijn/internal/recurrence"
)

const (
	// upcomingOccurrences is how many future dates a template overview shows.
	upcomingOccurrences = 3

	summaryCacheTTL     = 5 * time.Minute
	summaryCacheCleanup = 10 * time.Minute
)

var twelve = decimal.NewFromInt(12)

// recurringExpenseService handles recurring-expense template business logic.
// Reconciliation is recomputed from scratch on every call: the set of
// outstanding occurrences is the computed occurrence sequence minus the
// occurrence dates already recorded as expenses. No materialization state is
// stored beyond the expenses themselves.
type recurringExpenseService struct {
	db      *gorm.DB
	summary *gocache.Cache
}

// NewRecurringExpenseService creates a new RecurringExpenseServicer.
func NewRecurringExpenseService(db *gorm.DB) RecurringExpenseServicer {
	return &recurringExpenseService{
		db:      db,
		summary: gocache.New(summaryCacheTTL, summaryCacheCleanup),
	}
}

// CreateTemplate creates a recurring expense template. The schedule is
// validated up front so the calculator never sees a malformed template.
func (s *recurringExpenseService) CreateTemplate(tenantID, userID uint, input CreateTemplateInput) (*models.RecurringExpenseTemplate, error) {
	if input.Name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "template name is required")
	}
	if input.Amount.Sign() <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "template amount must be positive")
	}

	schedule := recurrence.Schedule{
		Frequency:  input.Frequency,
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		DayOfMonth: input.DayOfMonth,
	}
	if err := schedule.Validate(); err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
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
	vatRate := decimal.NewFromInt(21)
	if input.VATRate != nil {
		vatRate = *input.VATRate
	}
	deductible := true
	if input.IsVATDeductible != nil {
		deductible = *input.IsVATDeductible
	}
	businessUse := decimal.NewFromInt(100)
	if input.BusinessUsePercentage != nil {
		businessUse = *input.BusinessUsePercentage
	}
	escalation := decimal.Zero
	if input.EscalationPercentage != nil {
		escalation = *input.EscalationPercentage
	}

	template := &models.RecurringExpenseTemplate{
		TenantID:              tenantID,
		CreatedByID:           userID,
		CategoryID:            input.CategoryID,
		Name:                  input.Name,
		Description:           input.Description,
		Amount:                input.Amount,
		Currency:              currency,
		Frequency:             input.Frequency,
		StartDate:             input.StartDate,
		EndDate:               input.EndDate,
		DayOfMonth:            input.DayOfMonth,
		VATRate:               vatRate,
		IsVATDeductible:       deductible,
		BusinessUsePercentage: businessUse,
		EscalationPercentage:  escalation,
		PaymentMethod:         input.PaymentMethod,
		Notes:                 input.Notes,
		IsActive:              true,
		NextOccurrence:        input.StartDate,
	}

	if err := s.db.Create(template).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidateSummary(tenantID)
	return template, nil
}

// GetTemplateByID retrieves a template by ID within a tenant.
func (s *recurringExpenseService) GetTemplateByID(tenantID, templateID uint) (*models.RecurringExpenseTemplate, error) {
	var template models.RecurringExpenseTemplate
	if err := s.db.Preload("Category").
		Where("id = ? AND tenant_id = ?", templateID, tenantID).
		First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTemplateNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &template, nil
}

// ListTemplates retrieves a paginated list of templates, each annotated with
// its annual cost, upcoming occurrences, and reconciliation counts as of the
// given reference date.
func (s *recurringExpenseService) ListTemplates(tenantID uint, page pagination.PageRequest, isActive *bool, categoryID *uint, today time.Time) (*pagination.PageResponse[TemplateOverview], error) {
	page.Defaults()

	base := s.db.Model(&models.RecurringExpenseTemplate{}).Where("tenant_id = ?", tenantID)
	if isActive != nil {
		base = base.Where("is_active = ?", *isActive)
	}
	if categoryID != nil {
		base = base.Where("category_id = ?", *categoryID)
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var templates []models.RecurringExpenseTemplate
	if err := base.Preload("Category").
		Order("name ASC, id ASC").
		Scopes(pagination.Paginate(page)).
		Find(&templates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	ids := make([]uint, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	recorded, err := s.recordedDates(tenantID, ids)
	if err != nil {
		return nil, err
	}

	overviews := make([]TemplateOverview, 0, len(templates))
	for _, t := range templates {
		overview, err := s.overviewFor(t, recorded[t.ID], today)
		if err != nil {
			return nil, err
		}
		overviews = append(overviews, *overview)
	}

	result := pagination.NewPageResponse(overviews, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// UpdateTemplate applies partial updates to a template. Schedule changes are
// re-validated as a whole, and the cached next occurrence is recomputed.
// Already-materialized expenses are never rewritten.
func (s *recurringExpenseService) UpdateTemplate(tenantID, templateID uint, input UpdateTemplateInput) (*models.RecurringExpenseTemplate, error) {
	template, err := s.GetTemplateByID(tenantID, templateID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if input.Name != "" {
		updates["name"] = input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.CategoryID != nil {
		if err := s.checkCategory(tenantID, *input.CategoryID); err != nil {
			return nil, err
		}
		updates["category_id"] = *input.CategoryID
	}
	if input.Amount != nil {
		if input.Amount.Sign() <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "template amount must be positive")
		}
		updates["amount"] = *input.Amount
	}
	if input.VATRate != nil {
		updates["vat_rate"] = *input.VATRate
	}
	if input.IsVATDeductible != nil {
		updates["is_vat_deductible"] = *input.IsVATDeductible
	}
	if input.BusinessUsePercentage != nil {
		updates["business_use_percentage"] = *input.BusinessUsePercentage
	}
	if input.EscalationPercentage != nil {
		updates["escalation_percentage"] = *input.EscalationPercentage
	}
	if input.PaymentMethod != nil {
		updates["payment_method"] = *input.PaymentMethod
	}
	if input.Notes != nil {
		updates["notes"] = *input.Notes
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	// Re-validate the schedule as it would look after the update.
	schedule := template.Schedule()
	scheduleChanged := false
	if input.Frequency != nil {
		schedule.Frequency = *input.Frequency
		updates["frequency"] = *input.Frequency
		scheduleChanged = true
	}
	if input.StartDate != nil {
		schedule.StartDate = *input.StartDate
		updates["start_date"] = *input.StartDate
		scheduleChanged = true
	}
	if input.EndDate != nil {
		schedule.EndDate = input.EndDate
		updates["end_date"] = *input.EndDate
		scheduleChanged = true
	}
	if input.DayOfMonth != nil {
		schedule.DayOfMonth = *input.DayOfMonth
		updates["day_of_month"] = *input.DayOfMonth
		scheduleChanged = true
	}
	if scheduleChanged {
		if err := schedule.Validate(); err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
		}
		next, ok, err := schedule.Next(time.Now().AddDate(0, 0, -1))
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
		}
		if ok {
			updates["next_occurrence"] = next
		} else {
			// The new schedule has no occurrence left; deactivate.
			updates["is_active"] = false
		}
	}

	if len(updates) > 0 {
		if err := s.db.Model(template).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	s.invalidateSummary(tenantID)
	return s.GetTemplateByID(tenantID, templateID)
}

// DeleteTemplate soft-deletes a template. Templates with materialized
// expenses are protected: deleting them would orphan the occurrence
// correlation on those expenses.
func (s *recurringExpenseService) DeleteTemplate(tenantID, templateID uint) error {
	template, err := s.GetTemplateByID(tenantID, templateID)
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.Model(&models.Expense{}).
		Where("tenant_id = ? AND template_id = ?", tenantID, templateID).
		Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrTemplateHasExpenses
	}

	if err := s.db.Delete(template).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.invalidateSummary(tenantID)
	return nil
}

// Due returns the tenant's active templates that have at least one occurrence
// due on or before the reference date with no matching recorded expense.
func (s *recurringExpenseService) Due(tenantID uint, today time.Time) ([]DueTemplate, error) {
	var templates []models.RecurringExpenseTemplate
	if err := s.db.Preload("Category").
		Where("tenant_id = ? AND is_active = ? AND start_date <= ?", tenantID, true, today).
		Order("next_occurrence ASC, id ASC").
		Find(&templates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	ids := make([]uint, 0, len(templates))
	for _, t := range templates {
		ids = append(ids, t.ID)
	}
	recorded, err := s.recordedDates(tenantID, ids)
	if err != nil {
		return nil, err
	}

	due := []DueTemplate{}
	for _, t := range templates {
		outstanding, err := s.outstanding(&t, recorded[t.ID], today)
		if err != nil {
			return nil, err
		}
		if len(outstanding) == 0 {
			continue
		}
		total := decimal.Zero
		for _, occ := range outstanding {
			total = total.Add(occ.GrossAmount)
		}
		due = append(due, DueTemplate{
			Template:           t,
			OccurrencesDue:     len(outstanding),
			TotalAmount:        total,
			NextOccurrenceDate: outstanding[0].Date,
			LastOccurrenceDate: outstanding[len(outstanding)-1].Date,
		})
	}
	return due, nil
}

// Preview projects the template's next occurrences after the given date
// without touching any expense records.
func (s *recurringExpenseService) Preview(tenantID, templateID uint, count int, from time.Time) (*TemplatePreview, error) {
	template, err := s.GetTemplateByID(tenantID, templateID)
	if err != nil {
		return nil, err
	}

	occurrences, err := template.Schedule().Preview(template.Costing(), from, count)
	if err != nil {
		if errors.Is(err, recurrence.ErrInvalidCount) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
		}
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}

	total := decimal.Zero
	for _, occ := range occurrences {
		total = total.Add(occ.GrossAmount)
	}
	annual, err := recurrence.AnnualCost(template.Costing(), template.Frequency)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}

	return &TemplatePreview{
		Template:    *template,
		Occurrences: occurrences,
		Metrics: PreviewMetrics{
			Count:              len(occurrences),
			TotalCost:          total,
			AnnualCost:         annual,
			AverageMonthlyCost: annual.Div(twelve).Round(2),
		},
	}, nil
}

// Materialize creates one draft expense per outstanding occurrence of the
// template and advances its cached next occurrence. The operation is
// idempotent: a second call on the same day finds nothing outstanding.
func (s *recurringExpenseService) Materialize(tenantID, userID, templateID uint, today time.Time) (*MaterializeResult, error) {
	template, err := s.GetTemplateByID(tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if !template.IsActive {
		return nil, apperrors.ErrTemplateInactive
	}

	recorded, err := s.recordedDates(tenantID, []uint{templateID})
	if err != nil {
		return nil, err
	}
	outstanding, err := s.outstanding(template, recorded[templateID], today)
	if err != nil {
		return nil, err
	}
	if len(outstanding) == 0 {
		return nil, apperrors.ErrNothingOutstanding
	}

	result, err := s.materialize(template, userID, outstanding, today)
	if err != nil {
		return nil, err
	}

	s.invalidateSummary(tenantID)
	return result, nil
}

// MaterializeAllTenants runs materialization for every active template across
// all tenants. Templates with nothing outstanding are skipped; the result
// contains one entry per template that produced expenses. This is the batch
// entry point used by the scheduled pipeline.
func (s *recurringExpenseService) MaterializeAllTenants(today time.Time) ([]MaterializeResult, error) {
	var templates []models.RecurringExpenseTemplate
	if err := s.db.
		Where("is_active = ? AND start_date <= ?", true, today).
		Order("tenant_id ASC, id ASC").
		Find(&templates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	results := []MaterializeResult{}
	for i := range templates {
		t := &templates[i]
		recorded, err := s.recordedDates(t.TenantID, []uint{t.ID})
		if err != nil {
			return results, err
		}
		outstanding, err := s.outstanding(t, recorded[t.ID], today)
		if err != nil {
			return results, err
		}
		if len(outstanding) == 0 {
			continue
		}
		result, err := s.materialize(t, t.CreatedByID, outstanding, today)
		if err != nil {
			return results, err
		}
		results = append(results, *result)
		s.invalidateSummary(t.TenantID)
	}
	return results, nil
}

// Summary aggregates the annualized cost of the tenant's active templates.
// The result is cached; template writes invalidate it.
func (s *recurringExpenseService) Summary(tenantID uint) (*RecurringSummary, error) {
	key := summaryCacheKey(tenantID)
	if cached, found := s.summary.Get(key); found {
		summary := cached.(RecurringSummary)
		return &summary, nil
	}

	var templates []models.RecurringExpenseTemplate
	if err := s.db.
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Find(&templates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	total := decimal.Zero
	byFrequency := make(map[recurrence.Frequency]decimal.Decimal)
	for _, t := range templates {
		annual, err := recurrence.AnnualCost(t.Costing(), t.Frequency)
		if err != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
		}
		total = total.Add(annual)
		byFrequency[t.Frequency] = byFrequency[t.Frequency].Add(annual)
	}

	result := RecurringSummary{
		TenantID:        tenantID,
		ActiveTemplates: len(templates),
		AnnualTotal:     total,
		MonthlyAverage:  total.Div(twelve).Round(2),
		ByFrequency:     byFrequency,
	}
	s.summary.Set(key, result, gocache.DefaultExpiration)
	return &result, nil
}

// materialize writes one draft expense per outstanding occurrence inside a
// single transaction and advances the template's next occurrence. When the
// schedule end date leaves no further occurrence the template is deactivated.
func (s *recurringExpenseService) materialize(template *models.RecurringExpenseTemplate, userID uint, outstanding []recurrence.Occurrence, today time.Time) (*MaterializeResult, error) {
	created := make([]models.Expense, 0, len(outstanding))
	total := decimal.Zero

	next, hasNext, err := template.Schedule().Next(today)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, occ := range outstanding {
			date, err := time.Parse(recurrence.DateLayout, occ.Date)
			if err != nil {
				return err
			}
			expense := models.Expense{
				TenantID:            template.TenantID,
				CreatedByID:         userID,
				CategoryID:          template.CategoryID,
				Title:               fmt.Sprintf("%s (%s)", template.Name, occ.Date),
				Description:         template.Description,
				ExpenseDate:         date,
				Amount:              occ.GrossAmount,
				Currency:            template.Currency,
				VATRate:             template.VATRate,
				VATAmount:           occ.VATAmount,
				DeductibleVATAmount: occ.DeductibleVATAmount,
				Status:              models.ExpenseStatusDraft,
				PaymentMethod:       template.PaymentMethod,
				TemplateID:          &template.ID,
				OccurrenceDate:      &date,
			}
			if err := tx.Create(&expense).Error; err != nil {
				return err
			}
			created = append(created, expense)
			total = total.Add(occ.GrossAmount)
		}

		updates := map[string]interface{}{}
		if hasNext {
			updates["next_occurrence"] = next
		} else {
			updates["is_active"] = false
		}
		return tx.Model(template).Updates(updates).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := &MaterializeResult{
		TemplateID:      template.ID,
		Created:         created,
		TotalAmount:     total,
		ScheduleExpired: !hasNext,
	}
	if hasNext {
		result.NextOccurrence = next.Format(recurrence.DateLayout)
	}
	return result, nil
}

// outstanding computes the template's occurrences due through the reference
// date and removes those already recorded. Dates are matched by exact string
// equality in the canonical layout.
func (s *recurringExpenseService) outstanding(template *models.RecurringExpenseTemplate, recorded map[string]bool, today time.Time) ([]recurrence.Occurrence, error) {
	occurrences, err := template.Schedule().OccurrencesFromStart(template.Costing(), today)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}

	outstanding := []recurrence.Occurrence{}
	for _, occ := range occurrences {
		if recorded[occ.Date] {
			continue
		}
		outstanding = append(outstanding, occ)
	}
	return outstanding, nil
}

// overviewFor annotates a template with its computed costs and
// reconciliation counts.
func (s *recurringExpenseService) overviewFor(template models.RecurringExpenseTemplate, recorded map[string]bool, today time.Time) (*TemplateOverview, error) {
	annual, err := recurrence.AnnualCost(template.Costing(), template.Frequency)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}
	upcoming, err := template.Schedule().Preview(template.Costing(), today, upcomingOccurrences)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}
	expected, err := template.Schedule().OccurrencesFromStart(template.Costing(), today)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidTemplate, err.Error())
	}

	overview := &TemplateOverview{
		Template:            template,
		AnnualCost:          annual,
		NextOccurrences:     upcoming,
		ExpectedOccurrences: len(expected),
		OutstandingAmount:   decimal.Zero,
	}
	for _, occ := range expected {
		if recorded[occ.Date] {
			overview.RecordedOccurrences++
			continue
		}
		overview.OutstandingOccurrences++
		overview.OutstandingAmount = overview.OutstandingAmount.Add(occ.GrossAmount)
		if overview.NextOutstandingOccurrence == "" {
			overview.NextOutstandingOccurrence = occ.Date
		}
	}
	return overview, nil
}

// recordedDates loads the occurrence dates already recorded as expenses for
// the given templates, keyed by template ID. Soft-deleted expenses do not
// count: deleting a materialized expense reopens its occurrence.
func (s *recurringExpenseService) recordedDates(tenantID uint, templateIDs []uint) (map[uint]map[string]bool, error) {
	result := make(map[uint]map[string]bool, len(templateIDs))
	if len(templateIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		TemplateID     uint
		OccurrenceDate time.Time
	}
	if err := s.db.Model(&models.Expense{}).
		Select("template_id, occurrence_date").
		Where("tenant_id = ? AND template_id IN ? AND occurrence_date IS NOT NULL", tenantID, templateIDs).
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	for _, row := range rows {
		dates := result[row.TemplateID]
		if dates == nil {
			dates = make(map[string]bool)
			result[row.TemplateID] = dates
		}
		dates[row.OccurrenceDate.Format(recurrence.DateLayout)] = true
	}
	return result, nil
}

// checkCategory verifies the category exists within the tenant.
func (s *recurringExpenseService) checkCategory(tenantID, categoryID uint) error {
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

func summaryCacheKey(tenantID uint) string {
	return fmt.Sprintf("recurring-summary:%d", tenantID)
}

func (s *recurringExpenseService) invalidateSummary(tenantID uint) {
	s.summary.Delete(summaryCacheKey(tenantID))
}
