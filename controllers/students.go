package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"ptaportal_go/utils"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type StudentController struct{}

// GetStudents returns student rows with pagination. By default archived rows
// are hidden; pass archived=true to see them. Archived is a UI flag only and
// independent of the active/inactive enrollment status.
func (sc *StudentController) GetStudents(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset := (page - 1) * limit

	var students []models.Student
	var total int64

	query := database.DB.Model(&models.Student{})

	if c.Query("archived") == "true" {
		query = query.Where("archived = ?", true)
	} else {
		query = query.Where("archived = ?", false)
	}
	if yearID := c.Query("school_year_id"); yearID != "" {
		query = query.Where("school_year_id = ?", yearID)
	}
	if gradeID := c.Query("grade_level_id"); gradeID != "" {
		query = query.Where("grade_level_id = ?", gradeID)
	}
	if sectionID := c.Query("section_id"); sectionID != "" {
		query = query.Where("section_id = ?", sectionID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + utils.SanitizeString(search) + "%"
		query = query.Where("first_name LIKE ? OR last_name LIKE ? OR lrn LIKE ?", like, like, like)
	}

	query.Count(&total)

	if err := query.Preload("Guardian").Preload("GradeLevel").Preload("Section").Preload("SchoolYear").
		Offset(offset).Limit(limit).Order("last_name, first_name").Find(&students).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch students",
		})
	}

	return c.JSON(fiber.Map{
		"students": students,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetStudent returns a specific student row by ID
func (sc *StudentController) GetStudent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.Preload("Guardian").Preload("GradeLevel").Preload("Section").Preload("SchoolYear").
		First(&student, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	return c.JSON(fiber.Map{
		"student": student,
	})
}

// GetStudentLedger returns one learner's full picture across school years:
// every per-year row merged by LRN (or name plus guardian), the outstanding
// totals and the learner's effective sibling rank in each year.
func (sc *StudentController) GetStudentLedger(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.First(&student, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	identityIDs, err := billing.IdentityRowIDs(database.DB, &student)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve student identity",
		})
	}

	var rows []models.Student
	if err := database.DB.Preload("GradeLevel").Preload("SchoolYear").
		Where("id IN ?", identityIDs).Order("id").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch student rows",
		})
	}

	type yearEntry struct {
		Student     models.Student `json:"student"`
		SiblingRank int            `json:"sibling_rank"`
		Outstanding float64        `json:"outstanding"`
	}

	entries := make([]yearEntry, 0, len(rows))
	var totalOutstanding float64
	for i := range rows {
		rank, err := billing.CommittedRank(database.DB, &rows[i])
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to compute sibling rank",
			})
		}
		entries = append(entries, yearEntry{
			Student:     rows[i],
			SiblingRank: rank,
			Outstanding: rows[i].OutstandingTotal(),
		})
		totalOutstanding += rows[i].OutstandingTotal()
	}

	var payments []models.Payment
	database.DB.Preload("Contribution").Preload("SchoolYear").
		Where("student_id IN ?", identityIDs).Order("payment_date DESC, id DESC").
		Find(&payments)

	return c.JSON(fiber.Map{
		"identity_key":      student.IdentityKey(),
		"years":             entries,
		"payments":          payments,
		"total_outstanding": billing.RoundCentavo(totalOutstanding),
	})
}

// CreateStudent enrolls a brand-new learner into a school year. Siblings
// already enrolled in the same year determine the new row's rank; the
// contribution balance is billed immediately from the year's fee schedule.
func (sc *StudentController) CreateStudent(c *fiber.Ctx) error {
	var req struct {
		GuardianID   *uint  `json:"guardian_id"`
		GradeLevelID uint   `json:"grade_level_id"`
		SectionID    *uint  `json:"section_id"`
		SchoolYearID uint   `json:"school_year_id"`
		LRN          string `json:"lrn"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.FirstName == "" || req.LastName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "First and last name are required",
		})
	}
	if req.GradeLevelID == 0 || req.SchoolYearID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Grade level and school year are required",
		})
	}

	if req.GuardianID != nil {
		var guardian models.Guardian
		if err := database.DB.First(&guardian, *req.GuardianID).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Guardian not found",
			})
		}
	}

	// Duplicate LRN in the same year is a re-enrollment, not a new learner
	if req.LRN != "" {
		var existing models.Student
		if err := database.DB.Where("lrn = ? AND school_year_id = ? AND status = ?",
			req.LRN, req.SchoolYearID, "active").First(&existing).Error; err == nil {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "An active student with this LRN already exists in this school year",
			})
		}
	}

	var student models.Student
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		rank := 0
		if req.GuardianID != nil {
			existing, err := billing.ExistingSiblingCount(tx, *req.GuardianID, req.SchoolYearID, nil)
			if err != nil {
				return err
			}
			rank = existing
		}

		mappings, err := billing.GetOrCreateMappings(tx, req.SchoolYearID, req.GradeLevelID)
		if err != nil {
			return err
		}
		required, err := billing.RequiredAmount(rank, mappings)
		if err != nil {
			return err
		}

		student = models.Student{
			GuardianID:          req.GuardianID,
			GradeLevelID:        req.GradeLevelID,
			SectionID:           req.SectionID,
			SchoolYearID:        req.SchoolYearID,
			LRN:                 utils.SanitizeString(req.LRN),
			FirstName:           utils.SanitizeString(req.FirstName),
			LastName:            utils.SanitizeString(req.LastName),
			Balance:             0,
			ContributionBalance: required,
			Status:              "active",
		}
		return tx.Create(&student).Error
	})
	if err != nil {
		if err == billing.ErrNoContributionMapping {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "No contributions configured for this year and grade",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create student",
		})
	}

	database.DB.Preload("Guardian").Preload("GradeLevel").Preload("SchoolYear").First(&student, student.ID)

	middleware.LogActivity(c, "CREATE", "students", student.ID, fiber.Map{
		"name":                 student.FirstName + " " + student.LastName,
		"school_year_id":       student.SchoolYearID,
		"contribution_balance": student.ContributionBalance,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Student created successfully",
		"student": student,
	})
}

// UpdateStudent edits a student row's descriptive fields. Balances and the
// school year never change here; those move through enrollment and payments.
func (sc *StudentController) UpdateStudent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.First(&student, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	var req struct {
		GuardianID *uint   `json:"guardian_id"`
		SectionID  *uint   `json:"section_id"`
		LRN        *string `json:"lrn"`
		FirstName  *string `json:"first_name"`
		LastName   *string `json:"last_name"`
		Status     *string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.GuardianID != nil {
		var guardian models.Guardian
		if err := database.DB.First(&guardian, *req.GuardianID).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Guardian not found",
			})
		}
		updates["guardian_id"] = *req.GuardianID
	}
	if req.SectionID != nil {
		updates["section_id"] = *req.SectionID
	}
	if req.LRN != nil {
		updates["lrn"] = utils.SanitizeString(*req.LRN)
	}
	if req.FirstName != nil && *req.FirstName != "" {
		updates["first_name"] = utils.SanitizeString(*req.FirstName)
	}
	if req.LastName != nil && *req.LastName != "" {
		updates["last_name"] = utils.SanitizeString(*req.LastName)
	}
	if req.Status != nil {
		if *req.Status != "active" && *req.Status != "inactive" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid status",
			})
		}
		updates["status"] = *req.Status
	}

	if len(updates) > 0 {
		if err := database.DB.Model(&student).Updates(updates).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update student",
			})
		}
	}
	database.DB.Preload("Guardian").Preload("GradeLevel").Preload("SchoolYear").First(&student, student.ID)

	middleware.LogActivity(c, "UPDATE", "students", student.ID, updates)

	return c.JSON(fiber.Map{
		"message": "Student updated successfully",
		"student": student,
	})
}

// ArchiveStudent toggles the archived flag. Archiving only hides the row
// from default listings; status and balances stay untouched.
func (sc *StudentController) ArchiveStudent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.First(&student, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	var req struct {
		Archived bool `json:"archived"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := database.DB.Model(&student).Update("archived", req.Archived).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update archive flag",
		})
	}

	middleware.LogActivity(c, "UPDATE", "students", student.ID, fiber.Map{
		"archived": req.Archived,
	})

	return c.JSON(fiber.Map{
		"message": "Student archive flag updated",
		"student": student,
	})
}

// DeleteStudent soft-deletes a student row with no posted payments
func (sc *StudentController) DeleteStudent(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid student ID",
		})
	}

	var student models.Student
	if err := database.DB.First(&student, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	var paymentCount int64
	database.DB.Model(&models.Payment{}).Where("student_id = ?", student.ID).Count(&paymentCount)
	if paymentCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Cannot delete a student with posted payments; archive instead",
		})
	}

	if err := database.DB.Delete(&student).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete student",
		})
	}

	middleware.LogActivity(c, "DELETE", "students", student.ID, fiber.Map{
		"name": student.FirstName + " " + student.LastName,
	})

	return c.JSON(fiber.Map{
		"message": "Student deleted successfully",
	})
}
