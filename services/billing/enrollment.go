package billing

import (
	"errors"
	"sort"

	"ptaportal_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Assignment is one student's target placement in an enrollment batch.
type Assignment struct {
	StudentID    uint  `json:"student_id"`
	GradeLevelID uint  `json:"grade_level_id"`
	SectionID    *uint `json:"section_id"`
	SchoolYearID uint  `json:"school_year_id"`
}

// AssignmentResult reports the per-student outcome the enrollment UI shows.
type AssignmentResult struct {
	StudentID           uint    `json:"student_id"`
	ResultStudentID     uint    `json:"result_student_id"`
	SiblingRank         int     `json:"sibling_rank"`
	Balance             float64 `json:"balance"`
	ContributionBalance float64 `json:"contribution_balance"`
	Skipped             bool    `json:"skipped"`
	OK                  bool    `json:"ok"`
	Error               string  `json:"error,omitempty"`
}

type enrollmentGroup struct {
	guardianID   *uint
	schoolYearID uint
	assignments  []Assignment
}

// FinalizeEnrollment processes a batch of year/grade assignments. Students
// are grouped per (guardian, target year); each group runs in its own
// transaction with deterministic ascending-id order, so concurrent
// identical batches converge and a retry is safe. A failure rolls back the
// whole guardian group, never a half-processed family.
func FinalizeEnrollment(db *gorm.DB, batch []Assignment) []AssignmentResult {
	groups := groupAssignments(db, batch)
	results := make([]AssignmentResult, 0, len(batch))

	for _, g := range groups {
		groupResults, err := finalizeGroup(db, g)
		if err != nil {
			logrus.WithError(err).WithField("school_year_id", g.schoolYearID).
				Warn("Enrollment group rolled back")
			for _, a := range g.assignments {
				results = append(results, AssignmentResult{StudentID: a.StudentID, OK: false, Error: err.Error()})
			}
			continue
		}
		results = append(results, groupResults...)
	}
	return results
}

func groupAssignments(db *gorm.DB, batch []Assignment) []enrollmentGroup {
	type key struct {
		guardian uint
		hasG     bool
		year     uint
		// Guardianless students must not be ranked against each other, so
		// each gets a group of their own keyed by student id.
		solo uint
	}

	index := map[key]int{}
	var groups []enrollmentGroup

	for _, a := range batch {
		var student models.Student
		if err := db.First(&student, a.StudentID).Error; err != nil {
			// Keep the assignment; the group transaction will surface the error.
			groups = append(groups, enrollmentGroup{schoolYearID: a.SchoolYearID, assignments: []Assignment{a}})
			continue
		}

		k := key{year: a.SchoolYearID}
		if student.GuardianID != nil {
			k.guardian = *student.GuardianID
			k.hasG = true
		} else {
			k.solo = a.StudentID
		}

		if i, ok := index[k]; ok {
			groups[i].assignments = append(groups[i].assignments, a)
			continue
		}
		index[k] = len(groups)
		groups = append(groups, enrollmentGroup{
			guardianID:   student.GuardianID,
			schoolYearID: a.SchoolYearID,
			assignments:  []Assignment{a},
		})
	}
	return groups
}

func finalizeGroup(db *gorm.DB, g enrollmentGroup) ([]AssignmentResult, error) {
	// Deterministic order: ascending student id within the guardian group.
	sort.Slice(g.assignments, func(i, j int) bool {
		return g.assignments[i].StudentID < g.assignments[j].StudentID
	})

	var results []AssignmentResult
	err := db.Transaction(func(tx *gorm.DB) error {
		batchIDs := make([]uint, 0, len(g.assignments))
		for _, a := range g.assignments {
			batchIDs = append(batchIDs, a.StudentID)
		}

		existing := 0
		if g.guardianID != nil {
			var err error
			existing, err = ExistingSiblingCount(tx, *g.guardianID, g.schoolYearID, batchIDs)
			if err != nil {
				return err
			}
		}
		ranks := Rank(existing, batchIDs)

		for _, a := range g.assignments {
			var student models.Student
			if err := tx.First(&student, a.StudentID).Error; err != nil {
				return err
			}

			rank := ranks[a.StudentID]
			target := TransitionTarget{
				SchoolYearID: a.SchoolYearID,
				GradeLevelID: a.GradeLevelID,
				SectionID:    a.SectionID,
			}

			// Idempotence: an active row for this learner in the target year
			// means this assignment already ran; converge instead of failing.
			if a.SchoolYearID != student.SchoolYearID {
				row, err := FindIdentityRow(tx, &student, a.SchoolYearID)
				if err != nil {
					return err
				}
				if HasActiveRow(row) {
					results = append(results, AssignmentResult{
						StudentID:           a.StudentID,
						ResultStudentID:     row.ID,
						SiblingRank:         rank,
						Balance:             row.Balance,
						ContributionBalance: row.ContributionBalance,
						Skipped:             true,
						OK:                  true,
					})
					continue
				}
			}

			next, err := TransitionStudentYear(tx, &student, target, rank)
			if err != nil {
				return err
			}
			results = append(results, AssignmentResult{
				StudentID:           a.StudentID,
				ResultStudentID:     next.ID,
				SiblingRank:         rank,
				Balance:             next.Balance,
				ContributionBalance: next.ContributionBalance,
				OK:                  true,
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = errors.New("student not found")
		}
		return nil, err
	}
	return results, nil
}
