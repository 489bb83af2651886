package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/pharmacy_backend/appctx"
	"github.com/mmdatafocus/pharmacy_backend/utils"
)

// AuthMiddleware resolves a bearer token into the request Actor. Requests without a token pass
// through; RequireActor rejects them where an identity is needed.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		token := strings.TrimSpace(auth[len(bearer):])

		actor, err := utils.ActorFromToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(utils.SetActorInContext(c.Request.Context(), actor))
		c.Next()
	}
}

// RequireActor aborts with 401 unless an earlier middleware attached an Actor.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := appctx.GetActor(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
