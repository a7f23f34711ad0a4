package payment

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"barbershop-billing/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 64 << 10

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) CreateCharge(c *gin.Context) {
	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid charge request", err))
		return
	}

	charge, err := h.svc.CreateCharge(c.Request.Context(), req)
	if err != nil {
		if errutil.IsDependency(err) {
			err = errutil.Internal("failed to create pix charge", err)
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, charge)
}

func (h *Handler) ChargeInvoice(c *gin.Context) {
	var req InvoiceChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.ValidationFailed("invalid charge request", err))
		return
	}

	inv, err := h.svc.ChargeInvoice(c.Request.Context(), c.Param("id"), req.Payer)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             inv.ExternalPaymentID,
		"invoice_id":     inv.ID,
		"status":         inv.PaymentStatus,
		"qr_code":        inv.PixQRCode,
		"qr_code_base64": inv.PixQRCodeBase64,
		"expires_at":     inv.PixQRCodeExpiresAt,
		"amount":         inv.TotalAmount,
	})
}

type webhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// chargeID accepts the id as a JSON string or number.
func (b webhookBody) chargeID() string {
	raw := bytes.TrimSpace(b.Data.ID)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseNotification(c *gin.Context) (Notification, error) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		return Notification{}, errutil.BadRequest("failed to read body", err)
	}

	var body webhookBody
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return Notification{}, errutil.BadRequest("invalid notification payload", err)
		}
	}

	n := Notification{
		ChargeID:  body.chargeID(),
		Type:      body.Type,
		Action:    body.Action,
		RequestID: c.GetHeader("x-request-id"),
		Signature: c.GetHeader("x-signature"),
		Payload:   payload,
	}
	if n.ChargeID == "" {
		n.ChargeID = c.Query("data.id")
	}
	if n.ChargeID == "" {
		n.ChargeID = c.Query("id")
	}
	if n.Type == "" {
		n.Type = c.DefaultQuery("type", c.Query("topic"))
	}
	n.ChargeID = strings.TrimSpace(n.ChargeID)

	return n, nil
}

func (h *Handler) Webhook(c *gin.Context) {
	n, err := parseNotification(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.svc.HandleNotification(c.Request.Context(), n)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, result)
}
