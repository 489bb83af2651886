package middlewares

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/pharmacy_backend/appctx"
	"github.com/mmdatafocus/pharmacy_backend/config"
	"github.com/mmdatafocus/pharmacy_backend/utils"
)

// SessionMiddleware accepts a counter-terminal session token kept in Redis under "Token:<token>"
// holding the JSON encoded Actor. A bearer token resolved earlier wins.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		if _, ok := appctx.GetActor(c.Request.Context()); ok {
			c.Next()
			return
		}
		raw, exists, err := config.GetRedisValue(c.Request.Context(), "Token:"+token)
		if err != nil || !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		var actor appctx.Actor
		if err := json.Unmarshal([]byte(raw), &actor); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(utils.SetActorInContext(c.Request.Context(), actor))
		c.Next()
	}
}

// CorrelationMiddleware attaches x-correlation-id (or a new one) to the request context and echoes it.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Header("x-correlation-id", cid)
		c.Next()
	}
}
