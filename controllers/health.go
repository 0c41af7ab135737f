package controllers

import (
	"context"
	"ptaportal_go/database"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthController exposes liveness and dependency health endpoints
type HealthController struct{}

// GetHealthStatus reports database and Redis reachability. Redis being down
// degrades the report but not the HTTP status; the portal runs without it.
func (hc *HealthController) GetHealthStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	overall := "healthy"

	dbStatus := "up"
	if sqlDB, err := database.DB.DB(); err != nil {
		dbStatus = "down"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "down"
	}
	if dbStatus == "down" {
		overall = "unhealthy"
		status = fiber.StatusServiceUnavailable
	}

	redisStatus := "disabled"
	if rc := database.GetRedisClient(); rc != nil {
		redisStatus = "up"
		if err := rc.Ping(ctx).Err(); err != nil {
			redisStatus = "down"
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"status":    overall,
		"timestamp": time.Now(),
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}
