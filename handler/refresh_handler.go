package handler

import (
	"log"
	"strings"

	"main/dto"
	"main/services"
	"main/utils"

	"github.com/gin-gonic/gin"
)

// RefreshHandler exchanges a refresh token (sent as the bearer token) for a
// fresh token pair. The old refresh token is invalidated on success.
func RefreshHandler(c *gin.Context, auth *EmbeddedAuth) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		utils.Unauthorized(c, "Missing refresh token")
		return
	}
	refreshToken := strings.TrimPrefix(authHeader, "Bearer ")

	if auth.blacklist.IsTokenBlacklisted(c.Request.Context(), refreshToken) {
		utils.TrackAuthAttempt("failure", "refresh")
		utils.Unauthorized(c, "Refresh token has been invalidated")
		return
	}

	claims, err := services.ParseToken(refreshToken)
	if err != nil {
		utils.TrackAuthAttempt("failure", "refresh")
		utils.Unauthorized(c, "Invalid refresh token")
		return
	}
	if tokenType, _ := claims["type"].(string); tokenType != "refresh" {
		utils.TrackAuthAttempt("failure", "refresh")
		utils.Unauthorized(c, "Invalid token type")
		return
	}
	userID, ok := claims["user_id"].(float64)
	if !ok || auth.User(int64(userID)) == nil {
		utils.TrackAuthAttempt("failure", "refresh")
		utils.Unauthorized(c, "Unknown user")
		return
	}

	token, err := services.GenerateToken(int64(userID))
	if err != nil {
		utils.TrackError("auth", "token_generation")
		utils.InternalError(c, "Failed to generate token")
		return
	}
	newRefresh, err := services.GenerateRefreshToken(int64(userID))
	if err != nil {
		utils.TrackError("auth", "refresh_token_generation")
		utils.InternalError(c, "Failed to generate refresh token")
		return
	}

	// Rotate: the old refresh token must not remain usable
	if err := auth.blacklist.BlacklistToken(c.Request.Context(), refreshToken); err != nil {
		log.Printf("Warning: failed to blacklist rotated refresh token: %v", err)
	}

	utils.TrackAuthAttempt("success", "refresh")
	utils.Success(c, dto.RefreshResponse{
		Token:         token,
		RefreshToken:  newRefresh,
		SessionExpiry: sessionExpiry(),
	})
}
