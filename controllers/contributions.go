package controllers

import (
	"errors"
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ContributionController struct{}

// GetContributions returns the fee catalog
func (cc *ContributionController) GetContributions(c *fiber.Ctx) error {
	var contributions []models.Contribution
	if err := database.DB.Order("id").Find(&contributions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contributions",
		})
	}

	return c.JSON(fiber.Map{
		"contributions": contributions,
	})
}

// GetContribution returns a specific contribution type by ID
func (cc *ContributionController) GetContribution(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contribution ID",
		})
	}

	var contribution models.Contribution
	if err := database.DB.First(&contribution, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contribution not found",
		})
	}

	return c.JSON(fiber.Map{
		"contribution": contribution,
	})
}

// CreateContribution adds a new fee type to the catalog
func (cc *ContributionController) CreateContribution(c *fiber.Ctx) error {
	var contribution models.Contribution
	if err := c.BodyParser(&contribution); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if contribution.TypeName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Type name is required",
		})
	}
	if contribution.Amount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Amount must not be negative",
		})
	}

	var existing models.Contribution
	if err := database.DB.Where("type_name = ?", contribution.TypeName).First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Contribution type already exists",
		})
	}

	if err := database.DB.Create(&contribution).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create contribution",
		})
	}

	middleware.LogActivity(c, "CREATE", "contributions", contribution.ID, contribution)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":      "Contribution created successfully",
		"contribution": contribution,
	})
}

// UpdateContribution edits a catalog fee type. An amount change propagates
// into the active school year's fee schedule and recomputes affected student
// balances; archived years keep their historical amounts.
func (cc *ContributionController) UpdateContribution(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contribution ID",
		})
	}

	var contribution models.Contribution
	if err := database.DB.First(&contribution, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contribution not found",
		})
	}

	var req struct {
		TypeName  *string  `json:"type_name"`
		Amount    *float64 `json:"amount"`
		Mandatory *bool    `json:"mandatory"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	amountChanged := false
	updates := map[string]interface{}{}
	if req.TypeName != nil && *req.TypeName != "" {
		updates["type_name"] = *req.TypeName
	}
	if req.Amount != nil {
		if *req.Amount < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Amount must not be negative",
			})
		}
		amountChanged = !billing.AmountsEqual(*req.Amount, contribution.Amount)
		updates["amount"] = billing.RoundCentavo(*req.Amount)
	}
	if req.Mandatory != nil {
		if *req.Mandatory != contribution.Mandatory {
			amountChanged = true
		}
		updates["mandatory"] = *req.Mandatory
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&contribution).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update contribution",
			})
		}
	}
	database.DB.First(&contribution, contribution.ID)

	// Push the new pricing into the active year and recompute balances
	if amountChanged {
		if err := billing.PropagateCatalogChange(database.DB, contribution); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Contribution saved but balance recompute failed",
			})
		}
	}

	middleware.LogActivity(c, "UPDATE", "contributions", contribution.ID, updates)

	return c.JSON(fiber.Map{
		"message":      "Contribution updated successfully",
		"contribution": contribution,
		"propagated":   amountChanged,
	})
}

// DeleteContribution removes a fee type with no posted payments
func (cc *ContributionController) DeleteContribution(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid contribution ID",
		})
	}

	var contribution models.Contribution
	if err := database.DB.First(&contribution, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Contribution not found",
		})
	}

	// A fee type with posted payments is part of the audit trail
	var paymentCount int64
	database.DB.Model(&models.Payment{}).Where("contribution_id = ?", contribution.ID).Count(&paymentCount)
	if paymentCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot delete a contribution with posted payments",
		})
	}

	if err := database.DB.Where("contribution_id = ?", contribution.ID).
		Delete(&models.SchoolYearContribution{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete fee schedule rows",
		})
	}
	if err := database.DB.Delete(&contribution).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete contribution",
		})
	}

	middleware.LogActivity(c, "DELETE", "contributions", contribution.ID, fiber.Map{
		"type_name": contribution.TypeName,
	})

	return c.JSON(fiber.Map{
		"message": "Contribution deleted successfully",
	})
}

// GetYearSchedule returns the effective fee schedule for a year and grade,
// seeding it from the catalog on first access
func (cc *ContributionController) GetYearSchedule(c *fiber.Ctx) error {
	yearID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid school year ID",
		})
	}
	gradeID, err := strconv.ParseUint(c.Query("grade_level_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "grade_level_id is required",
		})
	}

	rows, err := billing.GetOrCreateMappings(database.DB, uint(yearID), uint(gradeID))
	if err != nil {
		if errors.Is(err, billing.ErrNoContributionMapping) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No contributions configured for this year and grade",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load fee schedule",
		})
	}

	return c.JSON(fiber.Map{
		"schedule": rows,
	})
}

// ScheduleRowBelongsToYear guards the nested fee-schedule route: the row id
// and the school year id come from separate path segments, so a row fetched
// by id must be cross-checked against the year it is being edited under.
func ScheduleRowBelongsToYear(row *models.SchoolYearContribution, schoolYearID uint) bool {
	return row.SchoolYearID == schoolYearID
}

// UpdateYearSchedule edits the effective amount of one fee schedule row.
// This is the per-year override path; the catalog default stays untouched.
func (cc *ContributionController) UpdateYearSchedule(c *fiber.Ctx) error {
	yearID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid school year ID",
		})
	}
	rowID, err := strconv.ParseUint(c.Params("row_id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid schedule row ID",
		})
	}

	var row models.SchoolYearContribution
	if err := database.DB.Preload("SchoolYear").First(&row, uint(rowID)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Fee schedule row not found",
		})
	}
	if !ScheduleRowBelongsToYear(&row, uint(yearID)) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Fee schedule row not found for this school year",
		})
	}

	// Archived years keep their historical pricing
	if !row.SchoolYear.IsActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot edit the fee schedule of an inactive school year",
		})
	}

	var req struct {
		TotalAmount float64 `json:"total_amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.TotalAmount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Amount must not be negative",
		})
	}

	if err := database.DB.Model(&row).
		Update("total_amount", billing.RoundCentavo(req.TotalAmount)).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update fee schedule",
		})
	}

	// Recompute balances for every guardian group in the affected year
	var guardianIDs []*uint
	if err := database.DB.Model(&models.Student{}).
		Where("school_year_id = ? AND grade_level_id = ?", row.SchoolYearID, row.GradeLevelID).
		Distinct().Pluck("guardian_id", &guardianIDs).Error; err == nil {
		for _, gid := range guardianIDs {
			gid := gid
			database.DB.Transaction(func(tx *gorm.DB) error {
				return billing.RecomputeGuardianBalances(tx, gid, row.SchoolYearID)
			})
		}
	}

	middleware.LogActivity(c, "UPDATE", "school_year_contributions", row.ID, fiber.Map{
		"total_amount": req.TotalAmount,
	})

	return c.JSON(fiber.Map{
		"message":  "Fee schedule updated successfully",
		"schedule": row,
	})
}
