package handler

import (
	"log"

	"main/utils"

	"github.com/gin-gonic/gin"
)

func LogoutHandler(c *gin.Context, auth *EmbeddedAuth) {
	token := c.GetString("token")

	// Best effort on an optional refresh token in the body
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := auth.blacklist.BlacklistToken(c.Request.Context(), token); err != nil {
		utils.TrackError("auth", "blacklist")
		utils.InternalError(c, "Failed to invalidate token")
		return
	}
	if body.RefreshToken != "" {
		if err := auth.blacklist.BlacklistToken(c.Request.Context(), body.RefreshToken); err != nil {
			log.Printf("Warning: failed to blacklist refresh token: %v", err)
		}
	}

	utils.TrackAuthAttempt("success", "logout")
	utils.Success(c, gin.H{"message": "Logged out"})
}
