package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/models"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// LogController exposes the audit trail to the auditor and admin roles
type LogController struct{}

// GetLogs lists activity logs with pagination and filters
func (lc *LogController) GetLogs(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset := (page - 1) * limit

	var logs []models.ActivityLog
	var total int64

	query := database.DB.Model(&models.ActivityLog{})
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if action := c.Query("action"); action != "" {
		query = query.Where("action = ?", action)
	}
	if resource := c.Query("resource"); resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if from := c.Query("from"); from != "" {
		query = query.Where("created_at >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("created_at <= ?", to)
	}

	query.Count(&total)

	if err := query.Preload("User").
		Offset(offset).Limit(limit).Order("id DESC").Find(&logs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs": logs,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetLogArchives lists completed log archive runs
func (lc *LogController) GetLogArchives(c *fiber.Ctx) error {
	var archives []models.LogArchive
	if err := database.DB.Order("id DESC").Limit(100).Find(&archives).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch log archives",
		})
	}

	return c.JSON(fiber.Map{
		"archives": archives,
	})
}
