package billing

import (
	"errors"

	"ptaportal_go/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LoadMappings returns the mapping rows for a grade+year with the catalog
// contribution loaded, ordered by contribution id. An empty result is
// ErrNoContributionMapping.
func LoadMappings(tx *gorm.DB, schoolYearID, gradeLevelID uint) ([]models.SchoolYearContribution, error) {
	var rows []models.SchoolYearContribution
	err := tx.Preload("Contribution").
		Where("school_year_id = ? AND grade_level_id = ?", schoolYearID, gradeLevelID).
		Order("contribution_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoContributionMapping
	}
	return rows, nil
}

// GetOrCreateMappings returns the mapping rows for a grade+year, lazily
// seeding one row per catalog contribution (at the catalog amount) on first
// use. An empty catalog still yields ErrNoContributionMapping.
func GetOrCreateMappings(tx *gorm.DB, schoolYearID, gradeLevelID uint) ([]models.SchoolYearContribution, error) {
	rows, err := LoadMappings(tx, schoolYearID, gradeLevelID)
	if err == nil {
		return rows, nil
	}
	if !errors.Is(err, ErrNoContributionMapping) {
		return nil, err
	}

	var catalog []models.Contribution
	if err := tx.Order("id").Find(&catalog).Error; err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, ErrNoContributionMapping
	}

	for _, c := range catalog {
		row := models.SchoolYearContribution{
			SchoolYearID:   schoolYearID,
			GradeLevelID:   gradeLevelID,
			ContributionID: c.ID,
			TotalAmount:    c.Amount,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
	}

	return LoadMappings(tx, schoolYearID, gradeLevelID)
}

// PrecedingYear resolves the school year immediately before the given one.
// Ordering is by start date with id as tiebreak; creation order alone is not
// trusted.
func PrecedingYear(tx *gorm.DB, schoolYearID uint) (*models.SchoolYear, error) {
	var year models.SchoolYear
	if err := tx.First(&year, schoolYearID).Error; err != nil {
		return nil, err
	}

	var prev models.SchoolYear
	err := tx.Where("start_date < ? OR (start_date = ? AND id < ?)", year.StartDate, year.StartDate, year.ID).
		Order("start_date DESC, id DESC").
		First(&prev).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prev, nil
}

// CloneMappingsToYear seeds a new school year with the immediately preceding
// year's effective fee schedule, so mid-year edits persist forward instead
// of resetting to catalog defaults. Rows that already exist for the new year
// are left alone, which makes re-runs safe.
func CloneMappingsToYear(tx *gorm.DB, newSchoolYearID uint) (int, error) {
	prev, err := PrecedingYear(tx, newSchoolYearID)
	if err != nil {
		return 0, err
	}
	if prev == nil {
		// First year ever; mappings will be seeded lazily from the catalog.
		return 0, nil
	}

	var rows []models.SchoolYearContribution
	if err := tx.Where("school_year_id = ?", prev.ID).Order("id").Find(&rows).Error; err != nil {
		return 0, err
	}

	cloned := 0
	for _, r := range rows {
		var existing models.SchoolYearContribution
		err := tx.Where("school_year_id = ? AND grade_level_id = ? AND contribution_id = ?",
			newSchoolYearID, r.GradeLevelID, r.ContributionID).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return cloned, err
		}
		clone := models.SchoolYearContribution{
			SchoolYearID:   newSchoolYearID,
			GradeLevelID:   r.GradeLevelID,
			ContributionID: r.ContributionID,
			TotalAmount:    r.TotalAmount,
		}
		if err := tx.Create(&clone).Error; err != nil {
			return cloned, err
		}
		cloned++
	}
	return cloned, nil
}

// PropagateCatalogChange pushes an edited catalog amount into the currently
// active school year's mapping rows and recomputes affected student
// balances. Archived years are never rewritten. The balance recompute is
// chunked one transaction per guardian group to bound lock duration; each
// guardian's recompute is atomic.
func PropagateCatalogChange(db *gorm.DB, contribution models.Contribution) error {
	var active models.SchoolYear
	if err := db.Where("is_active = ?", true).First(&active).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := db.Model(&models.SchoolYearContribution{}).
		Where("school_year_id = ? AND contribution_id = ?", active.ID, contribution.ID).
		Update("total_amount", contribution.Amount).Error; err != nil {
		return err
	}

	// Distinct guardian groups with students in the active year. NULL
	// guardians are recomputed as a group of their own.
	var guardianIDs []*uint
	if err := db.Model(&models.Student{}).
		Where("school_year_id = ?", active.ID).
		Distinct().Pluck("guardian_id", &guardianIDs).Error; err != nil {
		return err
	}

	for _, gid := range guardianIDs {
		gid := gid
		err := db.Transaction(func(tx *gorm.DB) error {
			return RecomputeGuardianBalances(tx, gid, active.ID)
		})
		if err != nil {
			logrus.WithError(err).WithField("school_year_id", active.ID).
				Error("Failed to recompute balances for guardian group")
			return err
		}
	}
	return nil
}

// RecomputeGuardianBalances recomputes contribution_balance for one guardian
// group in one school year. Idempotent: a student whose stored balance is
// already within Epsilon of the computed value is not written.
func RecomputeGuardianBalances(tx *gorm.DB, guardianID *uint, schoolYearID uint) error {
	q := tx.Where("school_year_id = ?", schoolYearID)
	if guardianID == nil {
		q = q.Where("guardian_id IS NULL")
	} else {
		q = q.Where("guardian_id = ?", *guardianID)
	}

	var students []models.Student
	if err := q.Order("id").Find(&students).Error; err != nil {
		return err
	}
	if len(students) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(students))
	for _, s := range students {
		ids = append(ids, s.ID)
	}
	ranks := Rank(0, ids)

	for i := range students {
		s := &students[i]
		rank := ranks[s.ID]
		if guardianID == nil {
			// Unlinked students have no siblings; each pays full.
			rank = 0
		}

		rows, err := GetOrCreateMappings(tx, schoolYearID, s.GradeLevelID)
		if err != nil {
			return err
		}
		required, err := RequiredAmount(rank, rows)
		if err != nil {
			return err
		}

		paid, err := paidForYear(tx, []uint{s.ID}, 0, schoolYearID)
		if err != nil {
			return err
		}

		newBalance := clampZero(required - paid)
		if AmountsEqual(newBalance, s.ContributionBalance) {
			continue
		}
		if err := tx.Model(s).Update("contribution_balance", newBalance).Error; err != nil {
			return err
		}
	}
	return nil
}

// paidForYear sums posted payments for a set of student rows in one school
// year. contributionID narrows to one contribution when non-zero.
func paidForYear(tx *gorm.DB, studentRowIDs []uint, contributionID, schoolYearID uint) (float64, error) {
	if len(studentRowIDs) == 0 {
		return 0, nil
	}
	q := tx.Model(&models.Payment{}).
		Where("student_id IN ? AND school_year_id = ?", studentRowIDs, schoolYearID)
	if contributionID != 0 {
		q = q.Where("contribution_id = ?", contributionID)
	}
	var total float64
	err := q.Select("COALESCE(SUM(amount_paid), 0)").Scan(&total).Error
	return total, err
}
