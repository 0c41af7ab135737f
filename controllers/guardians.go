package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"ptaportal_go/utils"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type GuardianController struct{}

// GetGuardians returns all guardians with pagination
func (gc *GuardianController) GetGuardians(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset := (page - 1) * limit

	var guardians []models.Guardian
	var total int64

	query := database.DB.Model(&models.Guardian{})
	if search := c.Query("search"); search != "" {
		like := "%" + utils.SanitizeString(search) + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ?", like, like)
	}
	query.Count(&total)

	if err := query.Offset(offset).Limit(limit).Order("last_name, first_name").Find(&guardians).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch guardians",
		})
	}

	return c.JSON(fiber.Map{
		"guardians": guardians,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetGuardian returns one guardian with their students and family totals
func (gc *GuardianController) GetGuardian(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid guardian ID",
		})
	}

	var guardian models.Guardian
	if err := database.DB.First(&guardian, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Guardian not found",
		})
	}

	var students []models.Student
	if err := database.DB.Preload("GradeLevel").Preload("SchoolYear").
		Where("guardian_id = ?", guardian.ID).Order("school_year_id, id").
		Find(&students).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch students",
		})
	}

	var outstanding float64
	for i := range students {
		outstanding += students[i].OutstandingTotal()
	}

	return c.JSON(fiber.Map{
		"guardian":          guardian,
		"students":          students,
		"total_outstanding": billing.RoundCentavo(outstanding),
	})
}

// CreateGuardian creates a guardian record
func (gc *GuardianController) CreateGuardian(c *fiber.Ctx) error {
	var guardian models.Guardian
	if err := c.BodyParser(&guardian); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if guardian.FirstName == "" || guardian.LastName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "First and last name are required",
		})
	}

	guardian.FirstName = utils.SanitizeString(guardian.FirstName)
	guardian.LastName = utils.SanitizeString(guardian.LastName)

	if err := database.DB.Create(&guardian).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create guardian",
		})
	}

	middleware.LogActivity(c, "CREATE", "guardians", guardian.ID, guardian)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Guardian created successfully",
		"guardian": guardian,
	})
}

// UpdateGuardian edits a guardian record
func (gc *GuardianController) UpdateGuardian(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid guardian ID",
		})
	}

	var guardian models.Guardian
	if err := database.DB.First(&guardian, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Guardian not found",
		})
	}

	var updateData models.Guardian
	if err := c.BodyParser(&updateData); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := database.DB.Model(&guardian).Updates(updateData).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update guardian",
		})
	}

	middleware.LogActivity(c, "UPDATE", "guardians", guardian.ID, updateData)

	return c.JSON(fiber.Map{
		"message":  "Guardian updated successfully",
		"guardian": guardian,
	})
}

// DeleteGuardian removes a guardian with no linked students
func (gc *GuardianController) DeleteGuardian(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid guardian ID",
		})
	}

	var guardian models.Guardian
	if err := database.DB.First(&guardian, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Guardian not found",
		})
	}

	var studentCount int64
	database.DB.Model(&models.Student{}).Where("guardian_id = ?", guardian.ID).Count(&studentCount)
	if studentCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot delete a guardian with linked students",
		})
	}

	if err := database.DB.Delete(&guardian).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete guardian",
		})
	}

	middleware.LogActivity(c, "DELETE", "guardians", guardian.ID, fiber.Map{
		"name": guardian.FirstName + " " + guardian.LastName,
	})

	return c.JSON(fiber.Map{
		"message": "Guardian deleted successfully",
	})
}

// GetMyFamily returns the students linked to the authenticated guardian
// account, merged by learner identity with per-year outstanding totals
func (gc *GuardianController) GetMyFamily(c *fiber.Ctx) error {
	claims, err := middleware.GetCurrentClaims(c)
	if err != nil || claims.GuardianID == nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Account is not linked to a guardian record",
		})
	}

	var guardian models.Guardian
	if err := database.DB.First(&guardian, *claims.GuardianID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Guardian not found",
		})
	}

	var students []models.Student
	if err := database.DB.Preload("GradeLevel").Preload("SchoolYear").
		Where("guardian_id = ?", guardian.ID).Order("id").
		Find(&students).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch students",
		})
	}

	// Merge per-year rows into logical learners
	type learner struct {
		Name        string           `json:"name"`
		LRN         string           `json:"lrn,omitempty"`
		Years       []models.Student `json:"years"`
		Outstanding float64          `json:"outstanding"`
	}

	merged := map[string]*learner{}
	order := []string{}
	var outstanding float64
	for i := range students {
		s := students[i]
		key := s.IdentityKey()
		l, ok := merged[key]
		if !ok {
			l = &learner{Name: s.FirstName + " " + s.LastName, LRN: s.LRN}
			merged[key] = l
			order = append(order, key)
		}
		l.Years = append(l.Years, s)
		l.Outstanding = billing.RoundCentavo(l.Outstanding + s.OutstandingTotal())
		outstanding += s.OutstandingTotal()
	}

	learners := make([]*learner, 0, len(order))
	for _, key := range order {
		learners = append(learners, merged[key])
	}

	return c.JSON(fiber.Map{
		"guardian":          guardian,
		"learners":          learners,
		"total_outstanding": billing.RoundCentavo(outstanding),
	})
}
