package middleware

import (
	"crypto/hmac"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/pradiptya/memberkit/internal/helpers"
)

// CallbackTokenMiddleware authenticates payment-gateway webhooks with the
// shared callback token configured at the gateway.
func CallbackTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := os.Getenv("WEBHOOK_CALLBACK_TOKEN")
		if secret == "" {
			helpers.RespondWithError(c, http.StatusInternalServerError, "WEBHOOK_CALLBACK_TOKEN not configured.")
			c.Abort()
			return
		}

		token := c.GetHeader("X-Callback-Token")
		if !hmac.Equal([]byte(token), []byte(secret)) {
			helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid callback token.")
			c.Abort()
			return
		}
		c.Next()
	}
}
