package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SchoolYearController struct{}

// SchoolYearRequest represents the create/update request body
type SchoolYearRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// GetSchoolYears returns all school years in chronological order
func (sy *SchoolYearController) GetSchoolYears(c *fiber.Ctx) error {
	var years []models.SchoolYear
	if err := database.DB.Order("start_date, id").Find(&years).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch school years",
		})
	}

	return c.JSON(fiber.Map{
		"school_years": years,
	})
}

// GetActiveSchoolYear returns the currently active school year
func (sy *SchoolYearController) GetActiveSchoolYear(c *fiber.Ctx) error {
	var year models.SchoolYear
	if err := database.DB.Where("is_active = ?", true).First(&year).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No active school year",
		})
	}

	return c.JSON(fiber.Map{
		"school_year": year,
	})
}

// CreateSchoolYear creates a school year and seeds its fee schedule from the
// immediately preceding year, so mid-year catalog overrides persist forward
func (sy *SchoolYearController) CreateSchoolYear(c *fiber.Ctx) error {
	var req SchoolYearRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name is required",
		})
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid start_date, expected YYYY-MM-DD",
		})
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid end_date, expected YYYY-MM-DD",
		})
	}
	if !endDate.After(startDate) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "end_date must be after start_date",
		})
	}

	var existing models.SchoolYear
	if err := database.DB.Where("name = ?", req.Name).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "School year already exists",
		})
	}

	year := models.SchoolYear{
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   endDate,
		IsActive:  false,
	}

	var cloned int
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&year).Error; err != nil {
			return err
		}
		n, err := billing.CloneMappingsToYear(tx, year.ID)
		if err != nil {
			return err
		}
		cloned = n
		return nil
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create school year",
		})
	}

	middleware.LogActivity(c, "CREATE", "school_years", year.ID, fiber.Map{
		"name":            year.Name,
		"cloned_fee_rows": cloned,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":         "School year created successfully",
		"school_year":     year,
		"cloned_fee_rows": cloned,
	})
}

// UpdateSchoolYear edits a school year's name and dates
func (sy *SchoolYearController) UpdateSchoolYear(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid school year ID",
		})
	}

	var year models.SchoolYear
	if err := database.DB.First(&year, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "School year not found",
		})
	}

	var req SchoolYearRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.StartDate != "" {
		startDate, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid start_date, expected YYYY-MM-DD",
			})
		}
		updates["start_date"] = startDate
	}
	if req.EndDate != "" {
		endDate, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid end_date, expected YYYY-MM-DD",
			})
		}
		updates["end_date"] = endDate
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&year).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update school year",
			})
		}
	}
	database.DB.First(&year, year.ID)

	middleware.LogActivity(c, "UPDATE", "school_years", year.ID, updates)

	return c.JSON(fiber.Map{
		"message":     "School year updated successfully",
		"school_year": year,
	})
}

// ActivateSchoolYear makes one year the active year. All other years are
// deactivated in the same transaction so at most one active year exists.
func (sy *SchoolYearController) ActivateSchoolYear(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid school year ID",
		})
	}

	var year models.SchoolYear
	if err := database.DB.First(&year, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "School year not found",
		})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SchoolYear{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&year).Update("is_active", true).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate school year",
		})
	}

	middleware.LogActivity(c, "UPDATE", "school_years", year.ID, fiber.Map{
		"action": "activate",
		"name":   year.Name,
	})

	return c.JSON(fiber.Map{
		"message":     "School year activated successfully",
		"school_year": year,
	})
}

// DeleteSchoolYear removes a year no student row or payment references
func (sy *SchoolYearController) DeleteSchoolYear(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid school year ID",
		})
	}

	var year models.SchoolYear
	if err := database.DB.First(&year, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "School year not found",
		})
	}

	var studentCount, paymentCount int64
	database.DB.Model(&models.Student{}).Where("school_year_id = ?", year.ID).Count(&studentCount)
	database.DB.Model(&models.Payment{}).Where("school_year_id = ?", year.ID).Count(&paymentCount)
	if studentCount > 0 || paymentCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot delete a school year with enrolled students or posted payments",
		})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("school_year_id = ?", year.ID).
			Delete(&models.SchoolYearContribution{}).Error; err != nil {
			return err
		}
		return tx.Delete(&year).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete school year",
		})
	}

	middleware.LogActivity(c, "DELETE", "school_years", year.ID, fiber.Map{
		"name": year.Name,
	})

	return c.JSON(fiber.Map{
		"message": "School year deleted successfully",
	})
}
