package freetrial

import (
	"net/http"

	"barbershop-billing/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	evaluator *Evaluator
}

func NewHandler(e *Evaluator) *Handler {
	return &Handler{evaluator: e}
}

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.evaluator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) ListPeriods(c *gin.Context) {
	periods, err := h.evaluator.ListPeriods(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": periods})
}

func (h *Handler) CreatePeriod(c *gin.Context) {
	var req CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	period, err := h.evaluator.CreatePeriod(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, period)
}

func (h *Handler) DeactivatePeriod(c *gin.Context) {
	if err := h.evaluator.DeactivatePeriod(c.Request.Context(), c.Param("id"), c.Param("period_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
