package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"florijn/internal/models"
	"florijn/internal/pagination"
	"florijn/internal/recurrence"
	"florijn/internal/testutil"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateTemplate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template, err := svc.CreateTemplate(user.TenantID, user.ID, CreateTemplateInput{
			Name:      "Adobe subscription",
			Amount:    decimal.RequireFromString("60.50"),
			Frequency: recurrence.FrequencyMonthly,
			StartDate: start,
		})
		testutil.AssertNoError(t, err)

		if template.ID == 0 {
			t.Fatal("expected non-zero template ID")
		}
		if !template.NextOccurrence.Equal(start) {
			t.Errorf("expected next occurrence at start date, got %v", template.NextOccurrence)
		}
		if !template.IsActive {
			t.Error("expected new template to be active")
		}
		// Dutch defaults apply when not specified.
		testutil.AssertDecimalEqual(t, "21", template.VATRate)
		testutil.AssertDecimalEqual(t, "100", template.BusinessUsePercentage)
	})

	t.Run("end_before_start", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		end := date(2023, 12, 1)
		_, err := svc.CreateTemplate(user.TenantID, user.ID, CreateTemplateInput{
			Name:      "Broken",
			Amount:    decimal.NewFromInt(10),
			Frequency: recurrence.FrequencyMonthly,
			StartDate: date(2024, 1, 1),
			EndDate:   &end,
		})
		testutil.AssertAppError(t, err, "INVALID_TEMPLATE")
	})

	t.Run("unknown_frequency", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		_, err := svc.CreateTemplate(user.TenantID, user.ID, CreateTemplateInput{
			Name:      "Broken",
			Amount:    decimal.NewFromInt(10),
			Frequency: "fortnightly",
			StartDate: date(2024, 1, 1),
		})
		testutil.AssertAppError(t, err, "INVALID_TEMPLATE")
	})

	t.Run("non_positive_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		_, err := svc.CreateTemplate(user.TenantID, user.ID, CreateTemplateInput{
			Name:      "Free",
			Amount:    decimal.Zero,
			Frequency: recurrence.FrequencyMonthly,
			StartDate: date(2024, 1, 1),
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestDue(t *testing.T) {
	t.Run("counts_unrecorded_occurrences", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)
		// Record January; February and March stay outstanding.
		testutil.CreateTestMaterializedExpense(t, db, template, start)

		due, err := svc.Due(user.TenantID, date(2024, 3, 20))
		testutil.AssertNoError(t, err)

		if len(due) != 1 {
			t.Fatalf("expected 1 due template, got %d", len(due))
		}
		if due[0].OccurrencesDue != 2 {
			t.Errorf("expected 2 outstanding occurrences, got %d", due[0].OccurrencesDue)
		}
		if due[0].NextOccurrenceDate != "2024-02-15" {
			t.Errorf("expected next outstanding 2024-02-15, got %s", due[0].NextOccurrenceDate)
		}
		if due[0].LastOccurrenceDate != "2024-03-15" {
			t.Errorf("expected last outstanding 2024-03-15, got %s", due[0].LastOccurrenceDate)
		}
		// Two occurrences of 121.00 each.
		testutil.AssertDecimalEqual(t, "242", due[0].TotalAmount)
	})

	t.Run("fully_recorded_template_excluded", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)
		testutil.CreateTestMaterializedExpense(t, db, template, start)
		testutil.CreateTestMaterializedExpense(t, db, template, date(2024, 2, 15))

		due, err := svc.Due(user.TenantID, date(2024, 2, 20))
		testutil.AssertNoError(t, err)
		if len(due) != 0 {
			t.Errorf("expected no due templates, got %d", len(due))
		}
	})

	t.Run("future_start_excluded", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2030, 1, 1))

		due, err := svc.Due(user.TenantID, date(2024, 3, 20))
		testutil.AssertNoError(t, err)
		if len(due) != 0 {
			t.Errorf("expected no due templates, got %d", len(due))
		}
	})

	t.Run("deleted_expense_reopens_occurrence", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)
		expense := testutil.CreateTestMaterializedExpense(t, db, template, start)

		due, err := svc.Due(user.TenantID, date(2024, 1, 20))
		testutil.AssertNoError(t, err)
		if len(due) != 0 {
			t.Fatalf("expected no due templates while recorded, got %d", len(due))
		}

		testutil.AssertNoError(t, db.Delete(expense).Error)

		due, err = svc.Due(user.TenantID, date(2024, 1, 20))
		testutil.AssertNoError(t, err)
		if len(due) != 1 || due[0].OccurrencesDue != 1 {
			t.Fatalf("expected the January occurrence to be outstanding again, got %+v", due)
		}
	})
}

func TestMaterialize(t *testing.T) {
	t.Run("creates_draft_expenses_and_advances", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)

		result, err := svc.Materialize(user.TenantID, user.ID, template.ID, date(2024, 3, 20))
		testutil.AssertNoError(t, err)

		if len(result.Created) != 3 {
			t.Fatalf("expected 3 expenses for Jan-Mar, got %d", len(result.Created))
		}
		testutil.AssertDecimalEqual(t, "363", result.TotalAmount)
		if result.NextOccurrence != "2024-04-15" {
			t.Errorf("expected next occurrence 2024-04-15, got %s", result.NextOccurrence)
		}

		first := result.Created[0]
		if first.Status != models.ExpenseStatusDraft {
			t.Errorf("expected draft status, got %s", first.Status)
		}
		if first.TemplateID == nil || *first.TemplateID != template.ID {
			t.Error("expected expense to reference its template")
		}
		if first.OccurrenceDate == nil || first.OccurrenceDate.Format(recurrence.DateLayout) != "2024-01-15" {
			t.Error("expected expense to carry its occurrence date")
		}
		testutil.AssertDecimalEqual(t, "21.00", first.VATAmount)

		var stored models.RecurringExpenseTemplate
		testutil.AssertNoError(t, db.First(&stored, template.ID).Error)
		if stored.NextOccurrence.Format(recurrence.DateLayout) != "2024-04-15" {
			t.Errorf("expected stored next occurrence 2024-04-15, got %v", stored.NextOccurrence)
		}
	})

	t.Run("idempotent_on_same_day", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))

		_, err := svc.Materialize(user.TenantID, user.ID, template.ID, date(2024, 3, 20))
		testutil.AssertNoError(t, err)

		_, err = svc.Materialize(user.TenantID, user.ID, template.ID, date(2024, 3, 20))
		testutil.AssertAppError(t, err, "NOTHING_OUTSTANDING")

		var count int64
		testutil.AssertNoError(t, db.Model(&models.Expense{}).
			Where("template_id = ?", template.ID).Count(&count).Error)
		if count != 3 {
			t.Errorf("expected 3 expenses after repeated materialization, got %d", count)
		}
	})

	t.Run("expired_schedule_deactivates", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))
		end := date(2024, 2, 28)
		testutil.AssertNoError(t, db.Model(template).Update("end_date", end).Error)

		result, err := svc.Materialize(user.TenantID, user.ID, template.ID, date(2024, 6, 1))
		testutil.AssertNoError(t, err)

		if len(result.Created) != 2 {
			t.Fatalf("expected 2 expenses within the end date, got %d", len(result.Created))
		}
		if !result.ScheduleExpired {
			t.Error("expected schedule to be reported expired")
		}

		var stored models.RecurringExpenseTemplate
		testutil.AssertNoError(t, db.First(&stored, template.ID).Error)
		if stored.IsActive {
			t.Error("expected expired template to be deactivated")
		}
	})

	t.Run("inactive_template_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))
		testutil.AssertNoError(t, db.Model(template).Update("is_active", false).Error)

		_, err := svc.Materialize(user.TenantID, user.ID, template.ID, date(2024, 3, 20))
		testutil.AssertAppError(t, err, "TEMPLATE_INACTIVE")
	})

	t.Run("not_found_for_other_tenant", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		owner := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, owner.TenantID, owner.ID, date(2024, 1, 15))

		_, err := svc.Materialize(other.TenantID, other.ID, template.ID, date(2024, 3, 20))
		testutil.AssertAppError(t, err, "TEMPLATE_NOT_FOUND")
	})
}

func TestMaterializeAllTenants(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewRecurringExpenseService(db)

	userA := testutil.CreateTestUser(t, db)
	userB := testutil.CreateTestUser(t, db)
	testutil.CreateTestTemplate(t, db, userA.TenantID, userA.ID, date(2024, 1, 15))
	testutil.CreateTestTemplate(t, db, userB.TenantID, userB.ID, date(2024, 2, 1))
	// Future template produces nothing.
	testutil.CreateTestTemplate(t, db, userB.TenantID, userB.ID, date(2030, 1, 1))

	results, err := svc.MaterializeAllTenants(date(2024, 3, 20))
	testutil.AssertNoError(t, err)

	if len(results) != 2 {
		t.Fatalf("expected results for 2 templates, got %d", len(results))
	}

	var count int64
	testutil.AssertNoError(t, db.Model(&models.Expense{}).
		Where("template_id IS NOT NULL").Count(&count).Error)
	// 3 occurrences for tenant A (Jan-Mar) + 2 for tenant B (Feb, Mar).
	if count != 5 {
		t.Errorf("expected 5 materialized expenses, got %d", count)
	}
}

func TestPreviewTemplate(t *testing.T) {
	t.Run("projects_future_occurrences", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))

		preview, err := svc.Preview(user.TenantID, template.ID, 3, date(2024, 3, 20))
		testutil.AssertNoError(t, err)

		if len(preview.Occurrences) != 3 {
			t.Fatalf("expected 3 occurrences, got %d", len(preview.Occurrences))
		}
		if preview.Occurrences[0].Date != "2024-04-15" {
			t.Errorf("expected first projected occurrence 2024-04-15, got %s", preview.Occurrences[0].Date)
		}
		testutil.AssertDecimalEqual(t, "363", preview.Metrics.TotalCost)
		// 121 monthly = 1452 per year.
		testutil.AssertDecimalEqual(t, "1452.00", preview.Metrics.AnnualCost)
		testutil.AssertDecimalEqual(t, "121.00", preview.Metrics.AverageMonthlyCost)
	})

	t.Run("invalid_count", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))

		_, err := svc.Preview(user.TenantID, template.ID, 0, date(2024, 3, 20))
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.Preview(user.TenantID, template.ID, 101, date(2024, 3, 20))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestListTemplates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	svc := NewRecurringExpenseService(db)

	user := testutil.CreateTestUser(t, db)
	start := date(2024, 1, 15)
	template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)
	testutil.CreateTestMaterializedExpense(t, db, template, start)

	result, err := svc.ListTemplates(user.TenantID, pagination.PageRequest{}, nil, nil, date(2024, 3, 20))
	testutil.AssertNoError(t, err)

	if result.TotalItems != 1 {
		t.Fatalf("expected 1 template, got %d", result.TotalItems)
	}
	overview := result.Data[0]
	if overview.ExpectedOccurrences != 3 {
		t.Errorf("expected 3 expected occurrences, got %d", overview.ExpectedOccurrences)
	}
	if overview.RecordedOccurrences != 1 {
		t.Errorf("expected 1 recorded occurrence, got %d", overview.RecordedOccurrences)
	}
	if overview.OutstandingOccurrences != 2 {
		t.Errorf("expected 2 outstanding occurrences, got %d", overview.OutstandingOccurrences)
	}
	if overview.NextOutstandingOccurrence != "2024-02-15" {
		t.Errorf("expected next outstanding 2024-02-15, got %s", overview.NextOutstandingOccurrence)
	}
	if len(overview.NextOccurrences) != 3 {
		t.Errorf("expected 3 upcoming occurrences, got %d", len(overview.NextOccurrences))
	}
	testutil.AssertDecimalEqual(t, "1452.00", overview.AnnualCost)
}

func TestUpdateTemplateSchedule(t *testing.T) {
	t.Run("invalid_schedule_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 6, 1))

		end := date(2024, 1, 1)
		_, err := svc.UpdateTemplate(user.TenantID, template.ID, UpdateTemplateInput{EndDate: &end})
		testutil.AssertAppError(t, err, "INVALID_TEMPLATE")
	})

	t.Run("deactivate_and_reactivate", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))

		inactive := false
		updated, err := svc.UpdateTemplate(user.TenantID, template.ID, UpdateTemplateInput{IsActive: &inactive})
		testutil.AssertNoError(t, err)
		if updated.IsActive {
			t.Error("expected template to be deactivated")
		}

		active := true
		updated, err = svc.UpdateTemplate(user.TenantID, template.ID, UpdateTemplateInput{IsActive: &active})
		testutil.AssertNoError(t, err)
		if !updated.IsActive {
			t.Error("expected template to be reactivated")
		}
	})

	t.Run("amount_change_leaves_existing_expenses", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)
		expense := testutil.CreateTestMaterializedExpense(t, db, template, start)

		newAmount := decimal.NewFromInt(200)
		_, err := svc.UpdateTemplate(user.TenantID, template.ID, UpdateTemplateInput{Amount: &newAmount})
		testutil.AssertNoError(t, err)

		var stored models.Expense
		testutil.AssertNoError(t, db.First(&stored, expense.ID).Error)
		testutil.AssertDecimalEqual(t, "121", stored.Amount)
	})
}

func TestDeleteTemplate(t *testing.T) {
	t.Run("deletes_unreferenced", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, date(2024, 1, 15))

		testutil.AssertNoError(t, svc.DeleteTemplate(user.TenantID, template.ID))

		_, err := svc.GetTemplateByID(user.TenantID, template.ID)
		testutil.AssertAppError(t, err, "TEMPLATE_NOT_FOUND")
	})

	t.Run("refuses_when_materialized", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		start := date(2024, 1, 15)
		template := testutil.CreateTestTemplate(t, db, user.TenantID, user.ID, start)
		testutil.CreateTestMaterializedExpense(t, db, template, start)

		err := svc.DeleteTemplate(user.TenantID, template.ID)
		testutil.AssertAppError(t, err, "TEMPLATE_HAS_EXPENSES")
	})
}

func TestSummary(t *testing.T) {
	t.Run("aggregates_by_frequency", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestTemplateWith(t, db, user.TenantID, user.ID,
			recurrence.FrequencyMonthly, decimal.NewFromInt(100), date(2024, 1, 1))
		testutil.CreateTestTemplateWith(t, db, user.TenantID, user.ID,
			recurrence.FrequencyYearly, decimal.NewFromInt(980), date(2024, 1, 1))

		summary, err := svc.Summary(user.TenantID)
		testutil.AssertNoError(t, err)

		if summary.ActiveTemplates != 2 {
			t.Errorf("expected 2 active templates, got %d", summary.ActiveTemplates)
		}
		// 100 monthly = 1200/year, plus 980 yearly.
		testutil.AssertDecimalEqual(t, "2180.00", summary.AnnualTotal)
		testutil.AssertDecimalEqual(t, "181.67", summary.MonthlyAverage)
		testutil.AssertDecimalEqual(t, "1200.00", summary.ByFrequency[recurrence.FrequencyMonthly])
		testutil.AssertDecimalEqual(t, "980.00", summary.ByFrequency[recurrence.FrequencyYearly])
	})

	t.Run("cache_invalidated_on_create", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewRecurringExpenseService(db)

		user := testutil.CreateTestUser(t, db)
		testutil.CreateTestTemplateWith(t, db, user.TenantID, user.ID,
			recurrence.FrequencyMonthly, decimal.NewFromInt(100), date(2024, 1, 1))

		summary, err := svc.Summary(user.TenantID)
		testutil.AssertNoError(t, err)
		if summary.ActiveTemplates != 1 {
			t.Fatalf("expected 1 active template, got %d", summary.ActiveTemplates)
		}

		_, err = svc.CreateTemplate(user.TenantID, user.ID, CreateTemplateInput{
			Name:      "Second",
			Amount:    decimal.NewFromInt(50),
			Frequency: recurrence.FrequencyMonthly,
			StartDate: date(2024, 2, 1),
		})
		testutil.AssertNoError(t, err)

		summary, err = svc.Summary(user.TenantID)
		testutil.AssertNoError(t, err)
		if summary.ActiveTemplates != 2 {
			t.Errorf("expected cache to be invalidated, got %d active templates", summary.ActiveTemplates)
		}
	})
}
