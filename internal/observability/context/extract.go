package context

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func RequestIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if ctx := c.Request.Context(); ctx != nil {
		if value := RequestIDFromContext(ctx); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.GetHeader("X-Request-Id"))
}

// UserIDFromGin reads the authenticated user id injected by the upstream
// gateway. Authentication itself happens before requests reach this
// service.
func UserIDFromGin(c *gin.Context) (snowflake.ID, bool) {
	if c == nil {
		return 0, false
	}
	raw := strings.TrimSpace(c.GetHeader("X-User-Id"))
	if raw == "" {
		if ctx := c.Request.Context(); ctx != nil {
			raw = UserIDFromContext(ctx)
		}
	}
	if raw == "" {
		return 0, false
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, false
	}
	return snowflake.ID(parsed), true
}
