package invoice

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/featureflags"
	"barbershop-billing/pkg/middleware"
	"barbershop-billing/services/freetrial"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type TrialChecker interface {
	IsInFreeTrial(ctx context.Context, tenantID string) (bool, error)
}

type OverdueLister interface {
	ListOverdue(ctx context.Context, tenantID string, periods []int) ([]*Invoice, error)
}

// Gate decides whether a tenant's write operations are blocked for unpaid
// platform invoices. Rules apply in order: trial, grace day, lookback.
type Gate struct {
	trials   TrialChecker
	invoices OverdueLister
	flags    featureflags.FeatureFlag
	graceDay int
	lookback int
	loc      *time.Location
	now      func() time.Time
}

type GateParams struct {
	fx.In
	Config    *config.Config
	Evaluator *freetrial.Evaluator
	Invoices  *Service
	Flags     featureflags.FeatureFlag `optional:"true"`
}

func NewGate(p GateParams) *Gate {
	return &Gate{
		trials:   p.Evaluator,
		invoices: p.Invoices,
		flags:    p.Flags,
		graceDay: p.Config.Billing.GraceDay,
		lookback: p.Config.Billing.LookbackMonths,
		loc:      p.Config.Location(),
		now:      time.Now,
	}
}

// lookbackPeriods returns year*100+month for the n calendar months before today.
func lookbackPeriods(today time.Time, n int) []int {
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		p := first.AddDate(0, -i, 0)
		out = append(out, p.Year()*100+int(p.Month()))
	}
	return out
}

// Evaluate only counts invoices that exist. A past month without an invoice
// row never blocks.
func (g *Gate) Evaluate(ctx context.Context, tenantID string) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "invoice.Gate.Evaluate")
	defer span.End()

	if tenantID == "" {
		return nil, errutil.ValidationFailed("tenant_id is required", nil)
	}

	decision := &Decision{TenantID: tenantID, PendingInvoices: []*Invoice{}}

	if g.flags != nil && !g.flags.IsEnabled(ctx, tenantID, featureflags.BillingEnforcement) {
		decision.Reason = "enforcement disabled"
		gateDecisions.WithLabelValues("disabled").Inc()
		return decision, nil
	}

	inTrial, err := g.trials.IsInFreeTrial(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if inTrial {
		decision.Reason = "free trial"
		gateDecisions.WithLabelValues("trial").Inc()
		return decision, nil
	}

	today := g.now().In(g.loc)
	if today.Day() <= g.graceDay {
		decision.Reason = "grace period"
		gateDecisions.WithLabelValues("grace").Inc()
		return decision, nil
	}

	overdue, err := g.invoices.ListOverdue(ctx, tenantID, lookbackPeriods(today, g.lookback))
	if err != nil {
		return nil, err
	}

	if len(overdue) == 0 {
		decision.Reason = "up to date"
		gateDecisions.WithLabelValues("clear").Inc()
		return decision, nil
	}

	decision.Blocked = true
	decision.Reason = fmt.Sprintf("%d unpaid invoice(s)", len(overdue))
	decision.PendingInvoices = overdue
	gateDecisions.WithLabelValues("blocked").Inc()
	return decision, nil
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// Middleware answers 402 to write requests of blocked tenants. Billing routes
// stay open so a blocked tenant can still pay.
func (g *Gate) Middleware(skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}

		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		tenantID := middleware.GetTenantID(c.Request.Context())
		if tenantID == "" {
			c.Next()
			return
		}

		decision, err := g.Evaluate(c.Request.Context(), tenantID)
		if err != nil {
			zap.L().Warn("delinquency gate unavailable, letting request through",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if decision.Blocked {
			details := make([]errutil.Detail, 0, len(decision.PendingInvoices))
			for _, inv := range decision.PendingInvoices {
				details = append(details, errutil.Detail{
					Field:   fmt.Sprintf("%04d-%02d", inv.Year, inv.Month),
					Message: fmt.Sprintf("invoice %s of %s is %s", inv.Code, inv.TotalAmount.StringFixed(2), inv.PaymentStatus),
				})
			}
			_ = c.Error(errutil.PaymentRequired("tenant has unpaid platform invoices", nil, errutil.WithDetails(details...)))
			c.Abort()
			return
		}

		c.Next()
	}
}
