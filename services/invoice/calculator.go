package invoice

import (
	"context"
	"time"

	"barbershop-billing/pkg/errutil"
	"barbershop-billing/services/appointment"
	"barbershop-billing/services/freetrial"

	"go.uber.org/zap"
)

type AppointmentLister interface {
	ListServiced(ctx context.Context, tenantID string, from, to time.Time) ([]*appointment.Appointment, error)
}

type ExemptionLoader interface {
	LoadExemptions(ctx context.Context, tenantID string, from, to time.Time) (*freetrial.Exemptions, error)
}

// Calculator counts billable and free appointments for a tenant month. It is
// the single source for both previews and invoices.
type Calculator struct {
	appointments AppointmentLister
	exemptions   ExemptionLoader
}

func NewCalculator(appointments *appointment.Service, evaluator *freetrial.Evaluator) *Calculator {
	return &Calculator{
		appointments: appointments,
		exemptions:   evaluator,
	}
}

// MonthBounds returns the first and last civil day of month.
func MonthBounds(year, month int) (time.Time, time.Time) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

func validatePeriod(month, year int) error {
	if month < 1 || month > 12 {
		return errutil.ValidationFailed("month must be between 1 and 12", nil,
			errutil.WithDetails(errutil.Detail{Field: "month", Message: "out of range"}))
	}
	if year < 2000 {
		return errutil.ValidationFailed("year is invalid", nil,
			errutil.WithDetails(errutil.Detail{Field: "year", Message: "out of range"}))
	}
	return nil
}

func (c *Calculator) Calculate(ctx context.Context, tenantID string, month, year int) (*Calculation, error) {
	ctx, span := tracer.Start(ctx, "invoice.Calculate")
	defer span.End()

	if tenantID == "" {
		return nil, errutil.ValidationFailed("tenant_id is required", nil)
	}
	if err := validatePeriod(month, year); err != nil {
		return nil, err
	}

	from, to := MonthBounds(year, month)

	appointments, err := c.appointments.ListServiced(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	result := &Calculation{
		TenantID:   tenantID,
		Month:      month,
		Year:       year,
		TotalCount: len(appointments),
	}
	if len(appointments) == 0 {
		return result, nil
	}

	exemptions, err := c.exemptions.LoadExemptions(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	for _, a := range appointments {
		if exemptions.Covers(a.Date) {
			result.FreeCount++
			continue
		}
		result.BillableCount++
	}

	zap.L().Debug("calculated billable appointments",
		zap.String("tenant_id", tenantID),
		zap.Int("month", month),
		zap.Int("year", year),
		zap.Int("billable", result.BillableCount),
		zap.Int("free", result.FreeCount),
	)

	return result, nil
}
