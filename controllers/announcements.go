package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/notifications"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type AnnouncementController struct{}

// GetAnnouncements lists announcements, newest first. Non-staff only see
// published ones.
func (ac *AnnouncementController) GetAnnouncements(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset := (page - 1) * limit

	var announcements []models.Announcement
	var total int64

	query := database.DB.Model(&models.Announcement{})
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil || claims.Role == "guardian" {
		query = query.Where("published_at IS NOT NULL AND published_at <= ?", time.Now())
	}
	query.Count(&total)

	if err := query.Preload("PostedBy").
		Offset(offset).Limit(limit).Order("id DESC").Find(&announcements).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch announcements",
		})
	}

	return c.JSON(fiber.Map{
		"announcements": announcements,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateAnnouncement creates an announcement; publish=true pushes it to every
// active portal account
func (ac *AnnouncementController) CreateAnnouncement(c *fiber.Ctx) error {
	var req struct {
		Title   string `json:"title"`
		Body    string `json:"body"`
		Publish bool   `json:"publish"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Title == "" || req.Body == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title and body are required",
		})
	}

	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	announcement := models.Announcement{
		Title:          req.Title,
		Body:           req.Body,
		PostedByUserID: user.ID,
	}
	if req.Publish {
		now := time.Now()
		announcement.PublishedAt = &now
	}

	if err := database.DB.Create(&announcement).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create announcement",
		})
	}

	if req.Publish {
		go func(a models.Announcement) {
			if err := notifications.NewService().NotifyAnnouncement(&a); err != nil {
				logrus.WithError(err).Warn("Failed to push announcement notifications")
			}
		}(announcement)
	}

	middleware.LogActivity(c, "CREATE", "announcements", announcement.ID, fiber.Map{
		"title":     announcement.Title,
		"published": req.Publish,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "Announcement created successfully",
		"announcement": announcement,
	})
}

// PublishAnnouncement publishes a drafted announcement
func (ac *AnnouncementController) PublishAnnouncement(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid announcement ID",
		})
	}

	var announcement models.Announcement
	if err := database.DB.First(&announcement, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Announcement not found",
		})
	}
	if announcement.PublishedAt != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Announcement is already published",
		})
	}

	now := time.Now()
	if err := database.DB.Model(&announcement).Update("published_at", now).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to publish announcement",
		})
	}
	announcement.PublishedAt = &now

	go func(a models.Announcement) {
		if err := notifications.NewService().NotifyAnnouncement(&a); err != nil {
			logrus.WithError(err).Warn("Failed to push announcement notifications")
		}
	}(announcement)

	middleware.LogActivity(c, "UPDATE", "announcements", announcement.ID, fiber.Map{
		"action": "publish",
	})

	return c.JSON(fiber.Map{
		"message":      "Announcement published successfully",
		"announcement": announcement,
	})
}

// DeleteAnnouncement removes an announcement
func (ac *AnnouncementController) DeleteAnnouncement(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid announcement ID",
		})
	}

	var announcement models.Announcement
	if err := database.DB.First(&announcement, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Announcement not found",
		})
	}

	if err := database.DB.Delete(&announcement).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete announcement",
		})
	}

	middleware.LogActivity(c, "DELETE", "announcements", announcement.ID, fiber.Map{
		"title": announcement.Title,
	})

	return c.JSON(fiber.Map{
		"message": "Announcement deleted successfully",
	})
}
