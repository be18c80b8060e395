package handler

import (
	"main/dto"
	"main/services"
	"main/utils"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
)

func LoginHandler(c *gin.Context, auth *EmbeddedAuth) {
	var loginReq dto.LoginRequest
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		utils.TrackAuthAttempt("failure", "validation")
		utils.BadRequest(c, "Invalid request")
		return
	}

	if auth.rateLimited() {
		utils.TrackAuthAttempt("failure", "rate_limited")
		utils.TooManyRequests(c, "Too many failed login attempts")
		return
	}

	user := auth.user
	if user == nil || user.Email != loginReq.Email {
		auth.recordFailure()
		utils.TrackAuthAttempt("failure", "unknown_user")
		utils.InvalidCredentials(c, "Invalid email or password")
		return
	}

	match, err := services.VerifyPassword(user.Password, loginReq.Password)
	if err != nil || !match {
		auth.recordFailure()
		utils.TrackAuthAttempt("failure", "invalid_password")
		utils.InvalidCredentials(c, "Invalid email or password")
		return
	}

	if user.TwoFactorEnabled {
		if loginReq.TwoFactorCode == "" {
			utils.TrackAuthAttempt("failure", "2fa_required")
			utils.InvalidCredentials(c, "Two-factor code required")
			return
		}
		if !totp.Validate(loginReq.TwoFactorCode, user.TwoFactorSecret) {
			auth.recordFailure()
			utils.TrackAuthAttempt("failure", "invalid_2fa")
			utils.InvalidCredentials(c, "Invalid two-factor code")
			return
		}
		utils.TrackAuthAttempt("success", "2fa")
	}

	token, err := services.GenerateToken(user.ID)
	if err != nil {
		utils.TrackError("auth", "token_generation")
		utils.InternalError(c, "Failed to generate token")
		return
	}

	refreshToken, err := services.GenerateRefreshToken(user.ID)
	if err != nil {
		utils.TrackError("auth", "refresh_token_generation")
		utils.InternalError(c, "Failed to generate refresh token")
		return
	}

	auth.recordSuccess()
	utils.TrackAuthAttempt("success", "login")

	utils.Success(c, dto.LoginResponse{
		User:          user,
		Token:         token,
		RefreshToken:  refreshToken,
		SessionExpiry: sessionExpiry(),
	})
}
