package billing

import (
	"ptaportal_go/models"

	"gorm.io/gorm"
)

// RequiredAmount computes the contribution total a student owes for a
// grade+year, given their sibling rank and the mapping rows for that
// grade+year (Contribution must be loaded on each row).
//
// rank 0 sums every row; rank > 0 sums only rows whose contribution is
// mandatory. A sibling with only optional contributions legitimately owes
// zero; an empty mapping is an error, never zero.
func RequiredAmount(rank int, rows []models.SchoolYearContribution) (float64, error) {
	if len(rows) == 0 {
		return 0, ErrNoContributionMapping
	}
	total := 0.0
	for _, r := range rows {
		if rank == 0 || r.Contribution.Mandatory {
			total += r.TotalAmount
		}
	}
	return RoundCentavo(total), nil
}

// RequiredAmountForContribution is the same rule restricted to a single
// contribution: a sibling owes nothing at all on a non-mandatory one.
func RequiredAmountForContribution(rank int, row models.SchoolYearContribution) float64 {
	if rank == 0 || row.Contribution.Mandatory {
		return row.TotalAmount
	}
	return 0
}

// RequiredAmountFor loads the mapping for the student's grade+year and
// prices it for the given rank. The mapping must already exist; callers that
// may hit a fresh grade+year go through GetOrCreateMappings instead.
func RequiredAmountFor(tx *gorm.DB, schoolYearID, gradeLevelID uint, rank int) (float64, error) {
	rows, err := LoadMappings(tx, schoolYearID, gradeLevelID)
	if err != nil {
		return 0, err
	}
	return RequiredAmount(rank, rows)
}
