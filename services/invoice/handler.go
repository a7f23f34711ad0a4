package invoice

import (
	"context"
	"net/http"
	"time"

	"barbershop-billing/pkg/db/pagination"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const maxWait = 2 * time.Minute

type Handler struct {
	svc    *Service
	gate   *Gate
	poller *Poller
}

func NewHandler(svc *Service, gate *Gate, poller *Poller) *Handler {
	return &Handler{svc: svc, gate: gate, poller: poller}
}

func tenantFrom(c *gin.Context) string {
	if id := c.Query("tenant_id"); id != "" {
		return id
	}
	return middleware.GetTenantID(c.Request.Context())
}

func (h *Handler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid preview request", err))
		return
	}

	preview, err := h.svc.Preview(c.Request.Context(), req.TenantID, req.Month, req.Year)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *Handler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid invoice request", err))
		return
	}

	result, err := h.svc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if !result.Created {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListInvoices(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid pagination", err))
		return
	}

	invoices, info, err := h.svc.ListInvoices(c.Request.Context(), tenantFrom(c), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices, "page_info": info})
}

func (h *Handler) GetInvoice(c *gin.Context) {
	inv, err := h.svc.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// GetPaymentStatus serves GET /status?id=<invoice id>.
func (h *Handler) GetPaymentStatus(c *gin.Context) {
	status, err := h.svc.GetPaymentStatus(c.Request.Context(), c.Query("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_status": status})
}

// WaitPaid holds the request open until the invoice is paid, the client goes
// away or the wait times out. The answer is the latest payment status.
func (h *Handler) WaitPaid(c *gin.Context) {
	id := c.Param("id")
	inv, err := h.svc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if inv.IsPaid() {
		c.JSON(http.StatusOK, gin.H{"payment_status": inv.PaymentStatus})
		return
	}

	wait := maxWait
	if v, err := time.ParseDuration(c.Query("timeout")); err == nil && v > 0 && v < maxWait {
		wait = v
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	paid := make(chan *Invoice, 1)
	sub := h.poller.Watch(ctx, id, func(inv *Invoice) { paid <- inv })
	defer sub.Stop()

	select {
	case inv := <-paid:
		c.JSON(http.StatusOK, gin.H{"payment_status": inv.PaymentStatus, "payment_date": inv.PaymentDate})
	case <-sub.Done():
		if err := sub.Err(); err != nil {
			_ = c.Error(err)
			return
		}
		select {
		case inv := <-paid:
			c.JSON(http.StatusOK, gin.H{"payment_status": inv.PaymentStatus, "payment_date": inv.PaymentDate})
		default:
			c.JSON(http.StatusOK, gin.H{"payment_status": Pending})
		}
	}
}

func (h *Handler) Standing(c *gin.Context) {
	decision, err := h.gate.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
