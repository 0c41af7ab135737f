package billing

import (
	"sort"

	"ptaportal_go/models"

	"gorm.io/gorm"
)

// Rank assigns sibling ranks for a guardian's students processed together
// for one school year. Rank 0 is the "first" student (pays the full set of
// contributions), every higher rank is a sibling (pays mandatory only).
//
// existingCountExcludingBatch is the number of the guardian's students
// already committed to that school year outside the current batch. When it
// is zero the first id in batch order becomes rank 0; otherwise every batch
// member continues the count upward. This is the single shared ranking
// function: enrollment finalize, bulk assignment, sheet import and guardian
// linking all call it.
func Rank(existingCountExcludingBatch int, batchOrderedIDs []uint) map[uint]int {
	ranks := make(map[uint]int, len(batchOrderedIDs))
	for i, id := range batchOrderedIDs {
		if _, seen := ranks[id]; seen {
			continue
		}
		ranks[id] = existingCountExcludingBatch + i
	}
	return ranks
}

// SortIDsAscending is the fixed tiebreak when no explicit batch order is
// supplied: ascending student id.
func SortIDsAscending(ids []uint) []uint {
	out := make([]uint, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExistingSiblingCount counts a guardian's student rows already committed to
// a school year, excluding the ids in the current batch. Both active and
// inactive rows count; a student who left mid-year still consumed the
// "first" slot for that year.
func ExistingSiblingCount(tx *gorm.DB, guardianID, schoolYearID uint, excludeIDs []uint) (int, error) {
	q := tx.Model(&models.Student{}).
		Where("guardian_id = ? AND school_year_id = ?", guardianID, schoolYearID)
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

// CommittedRank derives the effective rank of one already-committed student
// row for its school year: the number of the guardian's rows in that year
// created before it. Used when the allocator re-prices an old year.
func CommittedRank(tx *gorm.DB, row *models.Student) (int, error) {
	if row.GuardianID == nil {
		return 0, nil
	}
	var n int64
	err := tx.Model(&models.Student{}).
		Where("guardian_id = ? AND school_year_id = ? AND id < ?", *row.GuardianID, row.SchoolYearID, row.ID).
		Count(&n).Error
	return int(n), err
}
