// Package recurrence computes the deterministic billing occurrences of a
// recurring expense schedule. It is pure: no I/O, no clock reads, no shared
// state. For a fixed schedule, costing, and reference date every function
// returns the same result, so callers may invoke it concurrently and rely on
// the output as a reconciliation key.
package recurrence

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical occurrence date format. Recorded expenses are
// matched against computed occurrences by exact string equality on this
// format, so it must never change.
const DateLayout = "2006-01-02"

// Preview count bounds enforced for occurrence previews.
const (
	MinPreviewCount = 1
	MaxPreviewCount = 100
)

// Frequency is the cadence of a recurring schedule.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Valid reports whether f is a recognized frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}

// months returns the period length in calendar months, or 0 for weekly.
func (f Frequency) months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyQuarterly:
		return 3
	case FrequencyYearly:
		return 12
	}
	return 0
}

// Calculator errors. ErrInvalidSchedule is a data error the caller must fix;
// ErrInvalidCount is a caller input error. Neither is retryable.
var (
	ErrInvalidSchedule = fmt.Errorf("invalid recurrence schedule")
	ErrInvalidCount    = fmt.Errorf("preview count must be between %d and %d", MinPreviewCount, MaxPreviewCount)
)

// Schedule is the date dimension of a recurring template.
type Schedule struct {
	Frequency Frequency
	StartDate time.Time
	// EndDate, when set, is the last calendar date on which an occurrence
	// may fall.
	EndDate *time.Time
	// DayOfMonth optionally overrides the anchor day for monthly, quarterly
	// and yearly cadences. Zero means "use the start date's day".
	DayOfMonth int
}

// Costing is the monetary dimension of a recurring template. GrossAmount is
// BTW-inclusive; VAT is extracted from it, never added on top.
type Costing struct {
	GrossAmount decimal.Decimal
	// VATRate is a percentage, e.g. 21 for the Dutch high rate.
	VATRate       decimal.Decimal
	VATDeductible bool
	// BusinessUsePercentage scales the deductible VAT portion. Zero is
	// treated as 100 (fully business).
	BusinessUsePercentage decimal.Decimal
	// EscalationPercentage, when positive, compounds the gross amount on
	// every calendar anniversary of the schedule start.
	EscalationPercentage decimal.Decimal
}

// Occurrence is a single projected billing event.
type Occurrence struct {
	// Date is the occurrence date in DateLayout form. It is the sole
	// correlation key between computed occurrences and recorded expenses.
	Date                string          `json:"date"`
	GrossAmount         decimal.Decimal `json:"gross_amount"`
	VATAmount           decimal.Decimal `json:"vat_amount"`
	DeductibleVATAmount decimal.Decimal `json:"deductible_vat_amount"`
}

var (
	oneHundred     = decimal.NewFromInt(100)
	weeksPerYear   = decimal.NewFromFloat(365.25).Div(decimal.NewFromInt(7))
	monthsPerYear  = decimal.NewFromInt(12)
	quartersToYear = decimal.NewFromInt(4)
)

// Validate checks that the schedule is well formed.
func (s Schedule) Validate() error {
	if !s.Frequency.Valid() {
		return fmt.Errorf("%w: unrecognized frequency %q", ErrInvalidSchedule, s.Frequency)
	}
	if s.StartDate.IsZero() {
		return fmt.Errorf("%w: start date is required", ErrInvalidSchedule)
	}
	if s.DayOfMonth < 0 || s.DayOfMonth > 31 {
		return fmt.Errorf("%w: day of month %d out of range", ErrInvalidSchedule, s.DayOfMonth)
	}
	if s.EndDate != nil && midnight(*s.EndDate).Before(midnight(s.StartDate)) {
		return fmt.Errorf("%w: end date precedes start date", ErrInvalidSchedule)
	}
	return nil
}

// OccurrencesFromStart returns every occurrence from the schedule start
// through the until date, inclusive on both ends and truncated by the
// schedule end date. The sequence is strictly increasing. A start date after
// the until date yields an empty, non-error result.
func (s Schedule) OccurrencesFromStart(c Costing, until time.Time) ([]Occurrence, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	horizon := midnight(until)
	if s.EndDate != nil {
		if end := midnight(*s.EndDate); end.Before(horizon) {
			horizon = end
		}
	}

	occurrences := []Occurrence{}
	for k := 0; ; k++ {
		date := s.nth(k)
		if date.After(horizon) {
			break
		}
		occurrences = append(occurrences, c.occurrenceOn(s.StartDate, date))
	}
	return occurrences, nil
}

// Preview returns the next count occurrences strictly after the from date,
// independent of how many occurrences are historically due. The result may
// be shorter than count when the schedule end date cuts it off.
func (s Schedule) Preview(c Costing, from time.Time, count int) ([]Occurrence, error) {
	if count < MinPreviewCount || count > MaxPreviewCount {
		return nil, ErrInvalidCount
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	reference := midnight(from)
	k := 0
	for !s.nth(k).After(reference) {
		k++
	}

	occurrences := []Occurrence{}
	for len(occurrences) < count {
		date := s.nth(k)
		if s.EndDate != nil && date.After(midnight(*s.EndDate)) {
			break
		}
		occurrences = append(occurrences, c.occurrenceOn(s.StartDate, date))
		k++
	}
	return occurrences, nil
}

// Next returns the first occurrence date strictly after the given date. The
// boolean is false when the schedule end date leaves no further occurrence.
func (s Schedule) Next(after time.Time) (time.Time, bool, error) {
	if err := s.Validate(); err != nil {
		return time.Time{}, false, err
	}

	reference := midnight(after)
	k := 0
	for !s.nth(k).After(reference) {
		k++
	}
	date := s.nth(k)
	if s.EndDate != nil && date.After(midnight(*s.EndDate)) {
		return time.Time{}, false, nil
	}
	return date, true, nil
}

// AnnualCost normalizes the gross amount to a yearly total using a single
// 365.25-day year convention: weekly x 365.25/7, monthly x 12,
// quarterly x 4, yearly x 1. Escalation is not applied.
func AnnualCost(c Costing, f Frequency) (decimal.Decimal, error) {
	var perYear decimal.Decimal
	switch f {
	case FrequencyWeekly:
		perYear = weeksPerYear
	case FrequencyMonthly:
		perYear = monthsPerYear
	case FrequencyQuarterly:
		perYear = quartersToYear
	case FrequencyYearly:
		perYear = decimal.NewFromInt(1)
	default:
		return decimal.Zero, fmt.Errorf("%w: unrecognized frequency %q", ErrInvalidSchedule, f)
	}
	return c.GrossAmount.Mul(perYear).Round(2), nil
}

// nth returns the k-th occurrence date (k >= 0) as a closed-form function of
// the schedule. Month-based cadences clamp the anchor day to the target
// month's length and restore it in longer months, so an anchor of 31 yields
// Jan 31, Feb 29, Mar 31 rather than drifting to the 28th forever.
func (s Schedule) nth(k int) time.Time {
	start := midnight(s.StartDate)
	if k == 0 {
		return start
	}
	if s.Frequency == FrequencyWeekly {
		return start.AddDate(0, 0, 7*k)
	}
	return addMonthsClamped(start, s.Frequency.months()*k, s.anchorDay())
}

// anchorDay is the target day-of-month for month-based cadences.
func (s Schedule) anchorDay() int {
	if s.DayOfMonth >= 1 {
		return s.DayOfMonth
	}
	return s.StartDate.Day()
}

// occurrenceOn builds the occurrence for a concrete date, applying
// escalation and the BTW-inclusive breakdown.
func (c Costing) occurrenceOn(start, date time.Time) Occurrence {
	gross := c.amountOn(start, date)
	vat, deductible := c.vatBreakdown(gross)
	return Occurrence{
		Date:                date.Format(DateLayout),
		GrossAmount:         gross,
		VATAmount:           vat,
		DeductibleVATAmount: deductible,
	}
}

// amountOn applies annual compound escalation to the gross amount, once per
// start-date anniversary passed on or before the occurrence date.
func (c Costing) amountOn(start, date time.Time) decimal.Decimal {
	if c.EscalationPercentage.Sign() <= 0 {
		return c.GrossAmount
	}
	years := wholeYearsBetween(midnight(start), date)
	if years <= 0 {
		return c.GrossAmount
	}
	multiplier := decimal.NewFromInt(1).Add(c.EscalationPercentage.Div(oneHundred))
	return c.GrossAmount.Mul(multiplier.Pow(decimal.NewFromInt(int64(years)))).Round(2)
}

// wholeYearsBetween counts start-date anniversaries up to and including
// date. A Feb 29 start observes its anniversary on Feb 28 in common years.
func wholeYearsBetween(start, date time.Time) int {
	years := date.Year() - start.Year()
	if years <= 0 {
		return 0
	}
	if addMonthsClamped(start, 12*years, start.Day()).After(date) {
		years--
	}
	return years
}

// vatBreakdown extracts the VAT portion from the gross amount.
func (c Costing) vatBreakdown(gross decimal.Decimal) (vat, deductible decimal.Decimal) {
	return VATBreakdown(gross, c.VATRate, c.VATDeductible, c.BusinessUsePercentage)
}

// VATBreakdown extracts the BTW portion from a gross (tax-inclusive) amount:
// vat = gross * rate / (100 + rate). The deductible portion is scaled by the
// business-use percentage; zero is treated as 100.
func VATBreakdown(gross, rate decimal.Decimal, vatDeductible bool, businessUsePct decimal.Decimal) (vat, deductible decimal.Decimal) {
	if rate.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}
	vat = gross.Mul(rate).Div(rate.Add(oneHundred)).Round(2)
	if !vatDeductible {
		return vat, decimal.Zero
	}
	if businessUsePct.Sign() <= 0 {
		businessUsePct = oneHundred
	}
	deductible = vat.Mul(businessUsePct).Div(oneHundred).Round(2)
	return vat, deductible
}

// addMonthsClamped adds months to start and places the result on the anchor
// day, clamped to the target month's length. time.Date overflow semantics
// are deliberately avoided here: Jan 31 plus one month must not land in
// March.
func addMonthsClamped(start time.Time, months, anchorDay int) time.Time {
	total := start.Year()*12 + int(start.Month()) - 1 + months
	year, month := total/12, time.Month(total%12+1)

	day := anchorDay
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// midnight strips the time-of-day component, avoiding off-by-one occurrence
// counts from intraday clock values.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
