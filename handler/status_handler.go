package handler

import (
	"log"

	"main/dto"
	"main/usecase"
	"main/utils"

	"github.com/gin-gonic/gin"
)

// HealthStatusHandler reports the coordination health of this instance plus
// basic system stats.
func HealthStatusHandler(c *gin.Context, svc *usecase.AuthSessionService) {
	if ua := c.Request.UserAgent(); ua != "" {
		log.Printf("Status check from %s", utils.DescribeClient(ua))
	}

	health := svc.Health(c.Request.Context())
	health.SessionData = dto.RedactRecord(health.SessionData)

	utils.Success(c, dto.HealthResponse{
		Health: health,
		System: dto.SystemStats{
			CPUPercent:    utils.GetCPUUsage(),
			MemoryPercent: utils.GetMemoryUsage(),
		},
	})
}

// TabsHandler lists the instances currently sharing the session.
func TabsHandler(c *gin.Context, svc *usecase.AuthSessionService) {
	health := svc.Health(c.Request.Context())
	utils.Success(c, dto.TabsResponse{
		ActiveTabs: health.ActiveTabs,
		TabCount:   health.TabCount,
		IsMultiTab: health.IsMultiTab,
	})
}

// SessionStatusHandler exposes the local view of the shared session record
// with the token redacted, plus any unresolved conflicts.
func SessionStatusHandler(c *gin.Context, svc *usecase.AuthSessionService) {
	health := svc.Health(c.Request.Context())
	utils.Success(c, gin.H{
		"authenticated": svc.IsAuthenticated(),
		"session":       dto.RedactRecord(health.SessionData),
		"conflicts":     svc.Conflicts(),
	})
}
