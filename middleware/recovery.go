package middleware

import (
	"log"

	"main/utils"

	"github.com/gin-gonic/gin"
)

func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Warning: panic recovered in %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				utils.TrackError("http", "panic")
				utils.InternalError(c, "Internal server error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
