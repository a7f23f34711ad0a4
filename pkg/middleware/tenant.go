package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const TenantHeader = "X-TENANT-ID"

type tenantKey struct{}

var TenantContextKey = tenantKey{}

// Tenant copies the X-TENANT-ID header into the request context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(TenantHeader)); id != "" {
			c.Set(TenantHeader, id)
			ctx := context.WithValue(c.Request.Context(), TenantContextKey, id)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// GetTenantID returns the tenant carried by the context, "" when absent.
func GetTenantID(ctx context.Context) string {
	id, _ := ctx.Value(TenantContextKey).(string)
	return id
}
