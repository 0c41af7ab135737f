package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"

	"github.com/gofiber/fiber/v2"
)

type EnrollmentController struct{}

// FinalizeEnrollment processes a batch of year/grade assignments. Each
// guardian's children are committed together: the batch carries families into
// the new school year, recomputes sibling ranks and bills the new year's
// contributions on top of any carry-over debt.
func (ec *EnrollmentController) FinalizeEnrollment(c *fiber.Ctx) error {
	var req struct {
		Assignments []billing.Assignment `json:"assignments"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Assignments) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Assignment batch is empty",
		})
	}

	for i, a := range req.Assignments {
		if a.StudentID == 0 || a.GradeLevelID == 0 || a.SchoolYearID == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Assignment is missing student, grade level or school year",
				"index": i,
			})
		}
		var year models.SchoolYear
		if err := database.DB.First(&year, a.SchoolYearID).Error; err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "School year not found",
				"index": i,
			})
		}
	}

	results := billing.FinalizeEnrollment(database.DB, req.Assignments)

	succeeded := 0
	failed := 0
	for _, r := range results {
		if r.OK {
			succeeded++
		} else {
			failed++
		}
	}

	middleware.LogActivity(c, "CREATE", "enrollment", 0, fiber.Map{
		"assignments": len(req.Assignments),
		"succeeded":   succeeded,
		"failed":      failed,
	})

	status := fiber.StatusOK
	if failed > 0 && succeeded == 0 {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{
		"message":   "Enrollment batch processed",
		"results":   results,
		"succeeded": succeeded,
		"failed":    failed,
	})
}

// PreviewEnrollment prices an assignment batch without committing anything:
// for each student it reports the sibling rank and the amount the target
// year would bill, so the registrar can review before finalizing.
func (ec *EnrollmentController) PreviewEnrollment(c *fiber.Ctx) error {
	var req struct {
		Assignments []billing.Assignment `json:"assignments"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Assignments) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Assignment batch is empty",
		})
	}

	type previewEntry struct {
		StudentID   uint    `json:"student_id"`
		SiblingRank int     `json:"sibling_rank"`
		CarryOver   float64 `json:"carry_over"`
		NewRequired float64 `json:"new_required"`
		Error       string  `json:"error,omitempty"`
	}

	// Group by guardian so the preview ranks siblings the same way the
	// finalize path will.
	byGuardian := map[uint][]uint{}
	soloRank := map[uint]int{}
	for _, a := range req.Assignments {
		var student models.Student
		if err := database.DB.First(&student, a.StudentID).Error; err != nil {
			continue
		}
		if student.GuardianID == nil {
			soloRank[a.StudentID] = 0
			continue
		}
		byGuardian[*student.GuardianID] = append(byGuardian[*student.GuardianID], a.StudentID)
	}

	ranks := map[uint]int{}
	for sid, r := range soloRank {
		ranks[sid] = r
	}
	for gid, ids := range byGuardian {
		// Same deterministic order the finalize path uses.
		ids = billing.SortIDsAscending(ids)

		// All assignments in one preview batch target the same year in
		// practice; use the first one's year for the existing-sibling count.
		var yearID uint
		for _, a := range req.Assignments {
			for _, id := range ids {
				if a.StudentID == id {
					yearID = a.SchoolYearID
					break
				}
			}
			if yearID != 0 {
				break
			}
		}
		existing, err := billing.ExistingSiblingCount(database.DB, gid, yearID, ids)
		if err != nil {
			existing = 0
		}
		for id, r := range billing.Rank(existing, ids) {
			ranks[id] = r
		}
	}

	entries := make([]previewEntry, 0, len(req.Assignments))
	for _, a := range req.Assignments {
		entry := previewEntry{StudentID: a.StudentID, SiblingRank: ranks[a.StudentID]}

		var student models.Student
		if err := database.DB.First(&student, a.StudentID).Error; err != nil {
			entry.Error = "student not found"
			entries = append(entries, entry)
			continue
		}
		entry.CarryOver = billing.CarryOver(&student)

		required, err := billing.RequiredAmountFor(database.DB, a.SchoolYearID, a.GradeLevelID, ranks[a.StudentID])
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.NewRequired = required
		}
		entries = append(entries, entry)
	}

	return c.JSON(fiber.Map{
		"preview": entries,
	})
}
