package handler

import (
	"time"

	"main/dto"
	"main/services"
	"main/utils"

	"github.com/gin-gonic/gin"
)

// ValidateSessionHandler reports whether the presented token is still good
// and how long it has left. Reaching this handler at all means the token
// passed the auth middleware, so the answer is yes.
func ValidateSessionHandler(c *gin.Context) {
	expiry, err := services.TokenExpiry(c.GetString("token"))
	if err != nil {
		utils.Unauthorized(c, "Invalid token")
		return
	}
	utils.Success(c, dto.ValidateResponse{
		SessionValid:         true,
		TimeRemainingMinutes: time.Until(expiry).Minutes(),
	})
}

// ExtendSessionHandler pushes the advertised session expiry out by a full
// token lifetime. The bearer token itself keeps its original exp claim;
// clients are expected to refresh before that hits.
func ExtendSessionHandler(c *gin.Context) {
	utils.Success(c, dto.ExtendResponse{
		SessionExtended: true,
		SessionExpiry:   sessionExpiry(),
	})
}
