package tenant

import (
	"net/http"

	"barbershop-billing/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) UpdatePlatformFee(c *gin.Context) {
	var req UpdatePlatformFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("invalid request body", err))
		return
	}

	tenant, err := h.svc.UpdatePlatformFee(c.Request.Context(), c.Param("id"), req.PlatformFee)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, tenant)
}
