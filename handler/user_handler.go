package handler

import (
	"main/dto"
	"main/utils"

	"github.com/gin-gonic/gin"
)

func UserHandler(c *gin.Context, auth *EmbeddedAuth) {
	userID := c.GetInt64("user_id")
	user := auth.User(userID)
	if user == nil {
		utils.Unauthorized(c, "Unknown user")
		return
	}
	utils.Success(c, dto.UserResponse{User: user})
}
