package task

import (
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"

	"barbershop-billing/pkg/config"
	"barbershop-billing/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	runner *Runner
	secret string
}

func NewHandler(runner *Runner, cfg *config.Config) *Handler {
	return &Handler{runner: runner, secret: cfg.Billing.CronSecret}
}

// authorize checks the Bearer token. An empty secret rejects every call.
func (h *Handler) authorize(c *gin.Context) bool {
	if c.Request.Method != http.MethodPost {
		c.Header("Allow", http.MethodPost)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "error": "method not allowed"})
		return false
	}

	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || h.secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return false
	}
	return true
}

func (h *Handler) GenerateInvoices(c *gin.Context) {
	if !h.authorize(c) {
		return
	}

	result, err := h.runner.Run(c.Request.Context())
	if err != nil {
		if errutil.IsAlreadyExists(err) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
			return
		}
		zap.L().Error("cron billing run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"stack":   string(debug.Stack()),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Reconcile(c *gin.Context) {
	if !h.authorize(c) {
		return
	}

	summary, err := h.runner.Reconcile(c.Request.Context())
	if err != nil {
		zap.L().Error("cron reconcile failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"stack":   string(debug.Stack()),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}
