package billing

import (
	"errors"
	"fmt"

	"ptaportal_go/models"

	"gorm.io/gorm"
)

// TransitionTarget describes where a student is being moved: enrollment,
// promotion and sheet import all funnel through the same operation.
type TransitionTarget struct {
	SchoolYearID uint
	GradeLevelID uint
	SectionID    *uint
	// CarryOverOverride, when set on a same-year update, replaces the legacy
	// balance (treasurer correction). Ignored on cross-year transitions.
	CarryOverOverride *float64
}

// CarryOver is everything unpaid on a student row, regardless of category.
// Cross-year transitions move this into the new row's legacy balance.
func CarryOver(s *models.Student) float64 {
	return RoundCentavo(s.Balance + s.ContributionBalance)
}

// TransitionStudentYear applies a year/grade assignment to a student row and
// returns the authoritative row afterwards.
//
// Same year: grade and section are updated in place and the contribution
// balance is re-priced against the (possibly changed) grade mapping. The
// legacy balance is only touched when an explicit carry-over override is
// supplied.
//
// Different year: the old row is never mutated across the year boundary.
// A new row is cloned for the target year carrying balance = old unpaid
// total and contribution_balance = the newly billed amount; the old row is
// marked inactive but kept as the permanent record for its year. The
// archived flag is a UI concern and is never touched here.
//
// rank is the sibling rank effective for the target year (see Rank).
func TransitionStudentYear(tx *gorm.DB, student *models.Student, target TransitionTarget, rank int) (*models.Student, error) {
	if target.SchoolYearID == 0 || target.GradeLevelID == 0 {
		return nil, fmt.Errorf("%w: missing target year or grade", ErrInvalidYearTransition)
	}

	if target.SchoolYearID == student.SchoolYearID {
		return transitionInPlace(tx, student, target, rank)
	}
	return transitionClone(tx, student, target, rank)
}

func transitionInPlace(tx *gorm.DB, student *models.Student, target TransitionTarget, rank int) (*models.Student, error) {
	rows, err := GetOrCreateMappings(tx, target.SchoolYearID, target.GradeLevelID)
	if err != nil {
		return nil, err
	}
	required, err := RequiredAmount(rank, rows)
	if err != nil {
		return nil, err
	}

	paid, err := paidForYear(tx, []uint{student.ID}, 0, student.SchoolYearID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"grade_level_id":       target.GradeLevelID,
		"section_id":           target.SectionID,
		"contribution_balance": clampZero(required - paid),
	}
	if target.CarryOverOverride != nil {
		updates["balance"] = clampZero(*target.CarryOverOverride)
	}

	if err := tx.Model(student).Updates(updates).Error; err != nil {
		return nil, err
	}
	return student, nil
}

// HasActiveRow reports whether an identity lookup found a live row for the
// target year, meaning the transition already ran. transitionClone treats
// this as an error; enrollment finalize converges on the existing row.
func HasActiveRow(existing *models.Student) bool {
	return existing != nil && existing.Status == "active"
}

// BuildCloneRow assembles the new-year row for a cross-year transition:
// identity fields copy over, the whole unpaid total moves into the legacy
// balance, the target year's requirement is billed fresh, and the archived
// flag resets regardless of the old row's value.
func BuildCloneRow(student *models.Student, target TransitionTarget, required float64) models.Student {
	return models.Student{
		GuardianID:          student.GuardianID,
		GradeLevelID:        target.GradeLevelID,
		SectionID:           target.SectionID,
		SchoolYearID:        target.SchoolYearID,
		LRN:                 student.LRN,
		FirstName:           student.FirstName,
		LastName:            student.LastName,
		Balance:             CarryOver(student),
		ContributionBalance: required,
		Status:              "active",
		Archived:            false,
	}
}

func transitionClone(tx *gorm.DB, student *models.Student, target TransitionTarget, rank int) (*models.Student, error) {
	// Double-clone guard
	existing, err := FindIdentityRow(tx, student, target.SchoolYearID)
	if err != nil {
		return nil, err
	}
	if HasActiveRow(existing) {
		return nil, fmt.Errorf("%w: student %d already enrolled in school year %d",
			ErrInvalidYearTransition, student.ID, target.SchoolYearID)
	}

	rows, err := GetOrCreateMappings(tx, target.SchoolYearID, target.GradeLevelID)
	if err != nil {
		return nil, err
	}
	required, err := RequiredAmount(rank, rows)
	if err != nil {
		return nil, err
	}

	next := BuildCloneRow(student, target, required)
	if err := tx.Create(&next).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(student).Update("status", "inactive").Error; err != nil {
		return nil, err
	}
	return &next, nil
}

// FindIdentityRow locates the row representing the same logical learner in
// another school year, matching by LRN when present, else by normalized
// name + guardian. Returns nil when the learner has no row for that year.
func FindIdentityRow(tx *gorm.DB, student *models.Student, schoolYearID uint) (*models.Student, error) {
	q := tx.Where("school_year_id = ? AND id <> ?", schoolYearID, student.ID)
	if student.LRN != "" {
		q = q.Where("lrn = ?", student.LRN)
	} else {
		q = q.Where("LOWER(TRIM(first_name)) = LOWER(TRIM(?)) AND LOWER(TRIM(last_name)) = LOWER(TRIM(?))",
			student.FirstName, student.LastName)
		if student.GuardianID != nil {
			q = q.Where("guardian_id = ?", *student.GuardianID)
		} else {
			q = q.Where("guardian_id IS NULL")
		}
	}

	var row models.Student
	if err := q.Order("id DESC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// IdentityRowIDs collects the row ids representing one logical learner
// across all years, including the given row itself.
func IdentityRowIDs(tx *gorm.DB, student *models.Student) ([]uint, error) {
	q := tx.Model(&models.Student{})
	if student.LRN != "" {
		q = q.Where("lrn = ?", student.LRN)
	} else {
		q = q.Where("LOWER(TRIM(first_name)) = LOWER(TRIM(?)) AND LOWER(TRIM(last_name)) = LOWER(TRIM(?))",
			student.FirstName, student.LastName)
		if student.GuardianID != nil {
			q = q.Where("guardian_id = ?", *student.GuardianID)
		} else {
			q = q.Where("guardian_id IS NULL")
		}
	}
	var ids []uint
	if err := q.Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
