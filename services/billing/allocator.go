package billing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ptaportal_go/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentLine is one contribution line-item of a treasurer posting. The
// school year is the year the UI suggested; the allocator may override it
// with an older unpaid year.
type PaymentLine struct {
	ContributionID uint    `json:"contribution_id"`
	SchoolYearID   uint    `json:"school_year_id"`
	Amount         float64 `json:"amount_paid"`
}

// PostedLine is the committed outcome of one line.
type PostedLine struct {
	Payment        models.Payment        `json:"payment"`
	History        models.PaymentHistory `json:"history"`
	ResolvedYearID uint                  `json:"resolved_school_year_id"`
}

// YearCharge is the per-year pricing of one contribution for one learner:
// what that year requires of them and what has been paid so far. Charges are
// walked oldest-first during allocation.
type YearCharge struct {
	SchoolYearID uint
	StartDate    time.Time
	StudentRowID uint
	MappingID    uint
	Required     float64
	Paid         float64
}

// Remaining is the unpaid part of the charge.
func (c YearCharge) Remaining() float64 {
	return clampZero(c.Required - c.Paid)
}

// OrderYearCharges sorts charges chronologically: start date first, school
// year id as tiebreak.
func OrderYearCharges(charges []YearCharge) {
	sort.Slice(charges, func(i, j int) bool {
		if !charges[i].StartDate.Equal(charges[j].StartDate) {
			return charges[i].StartDate.Before(charges[j].StartDate)
		}
		return charges[i].SchoolYearID < charges[j].SchoolYearID
	})
}

// ResolveTargetYear walks ordered charges from the oldest up to and
// including the requested year and picks the first with an outstanding
// remainder, enforcing pay-oldest-debt-first even when the UI suggested the
// current year. The amount must fit within the resolved year's remainder.
func ResolveTargetYear(ordered []YearCharge, requestedYearID uint, amount float64) (*YearCharge, error) {
	requestedIdx := -1
	for i := range ordered {
		if ordered[i].SchoolYearID == requestedYearID {
			requestedIdx = i
			break
		}
	}
	if requestedIdx == -1 {
		// The requested year never had a mapping for this contribution.
		return nil, ErrNoContributionMapping
	}

	var target *YearCharge
	for i := 0; i <= requestedIdx; i++ {
		if ordered[i].Remaining() > Epsilon {
			target = &ordered[i]
			break
		}
	}
	if target == nil {
		return nil, &PaymentExceedsBalanceError{SchoolYearID: requestedYearID, Requested: amount, Remaining: 0}
	}
	if amount > target.Remaining()+Epsilon {
		return nil, &PaymentExceedsBalanceError{
			SchoolYearID: target.SchoolYearID,
			Requested:    amount,
			Remaining:    target.Remaining(),
		}
	}
	return target, nil
}

// Allocator posts treasurer payment batches. One batch covers one student
// and any number of contribution lines; it commits fully or not at all.
type Allocator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db, now: time.Now}
}

// PostPayments applies a payment batch inside one row-locked transaction.
// A lock conflict is retried transparently once, then surfaced as
// ErrConcurrentBalanceConflict.
func (a *Allocator) PostPayments(studentID, postedByUserID uint, lines []PaymentLine) ([]PostedLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("payment batch is empty")
	}
	for i, l := range lines {
		if l.Amount <= 0 {
			return nil, fmt.Errorf("line %d: amount must be positive", i+1)
		}
		if l.ContributionID == 0 || l.SchoolYearID == 0 {
			return nil, fmt.Errorf("line %d: contribution and school year are required", i+1)
		}
	}

	var posted []PostedLine
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		posted, err = a.post(studentID, postedByUserID, lines)
		if err == nil || !isLockConflict(err) {
			return posted, err
		}
		logrus.WithFields(logrus.Fields{
			"student_id": studentID,
			"attempt":    attempt,
		}).Warn("Lock conflict during payment allocation, retrying")
	}
	return nil, ErrConcurrentBalanceConflict
}

func (a *Allocator) post(studentID, postedByUserID uint, lines []PaymentLine) ([]PostedLine, error) {
	var posted []PostedLine
	err := a.db.Transaction(func(tx *gorm.DB) error {
		var student models.Student
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&student, studentID).Error; err != nil {
			return err
		}

		identityIDs, err := IdentityRowIDs(tx, &student)
		if err != nil {
			return err
		}

		for _, line := range lines {
			pl, err := a.applyLine(tx, &student, identityIDs, line, postedByUserID)
			if err != nil {
				return err
			}
			posted = append(posted, *pl)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

func (a *Allocator) applyLine(tx *gorm.DB, student *models.Student, identityIDs []uint, line PaymentLine, postedByUserID uint) (*PostedLine, error) {
	charges, err := buildYearCharges(tx, identityIDs, line.ContributionID)
	if err != nil {
		return nil, err
	}
	if len(charges) == 0 {
		return nil, ErrNoContributionMapping
	}

	target, err := ResolveTargetYear(charges, line.SchoolYearID, line.Amount)
	if err != nil {
		return nil, err
	}

	// Drain the legacy carry-over first, then the current-year balance. The
	// payment row itself always records the original amount.
	remain := line.Amount
	fromLegacy := student.Balance
	if fromLegacy > remain {
		fromLegacy = remain
	}
	student.Balance = clampZero(student.Balance - fromLegacy)
	remain = RoundCentavo(remain - fromLegacy)
	student.ContributionBalance = clampZero(student.ContributionBalance - remain)

	if err := tx.Model(student).Updates(map[string]interface{}{
		"balance":              student.Balance,
		"contribution_balance": student.ContributionBalance,
	}).Error; err != nil {
		return nil, err
	}

	now := a.now()
	payment := models.Payment{
		StudentID:      student.ID,
		ContributionID: line.ContributionID,
		SchoolYearID:   target.SchoolYearID,
		AmountPaid:     line.Amount,
		PaymentDate:    now,
		ReceiptNo:      uuid.New().String(),
		PostedByUserID: postedByUserID,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, err
	}

	before, after := historyBalances(tx, identityIDs, target.MappingID, target.Required, line.Amount)
	history := models.PaymentHistory{
		PaymentID:                payment.ID,
		SchoolYearContributionID: target.MappingID,
		StudentID:                student.ID,
		AmountPaid:               line.Amount,
		PaymentDate:              now,
		BalanceBefore:            before,
		BalanceAfter:             after,
	}
	if err := tx.Create(&history).Error; err != nil {
		return nil, err
	}

	if err := ApplyPaymentToFund(tx, now, line.Amount); err != nil {
		return nil, err
	}

	return &PostedLine{Payment: payment, History: history, ResolvedYearID: target.SchoolYearID}, nil
}

// buildYearCharges prices one contribution across every school year where
// this learner's grade had a mapping for it, using the sibling rank
// effective in each year.
func buildYearCharges(tx *gorm.DB, identityIDs []uint, contributionID uint) ([]YearCharge, error) {
	var rows []models.Student
	if err := tx.Preload("SchoolYear").Where("id IN ?", identityIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}

	charges := make([]YearCharge, 0, len(rows))
	for i := range rows {
		row := &rows[i]

		var mapping models.SchoolYearContribution
		err := tx.Preload("Contribution").
			Where("school_year_id = ? AND grade_level_id = ? AND contribution_id = ?",
				row.SchoolYearID, row.GradeLevelID, contributionID).
			First(&mapping).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		rank, err := CommittedRank(tx, row)
		if err != nil {
			return nil, err
		}
		required := RequiredAmountForContribution(rank, mapping)

		paid, err := paidForYear(tx, identityIDs, contributionID, row.SchoolYearID)
		if err != nil {
			return nil, err
		}

		charges = append(charges, YearCharge{
			SchoolYearID: row.SchoolYearID,
			StartDate:    row.SchoolYear.StartDate,
			StudentRowID: row.ID,
			MappingID:    mapping.ID,
			Required:     required,
			Paid:         paid,
		})
	}
	OrderYearCharges(charges)
	return charges, nil
}

// historyBalances derives the audit-trail running balance for one
// (learner, mapping) pair: the prior history row's balance_after if one
// exists, else the full required amount for that year.
func historyBalances(tx *gorm.DB, identityIDs []uint, mappingID uint, required, amount float64) (float64, float64) {
	var prev models.PaymentHistory
	err := tx.Where("school_year_contribution_id = ? AND student_id IN ?", mappingID, identityIDs).
		Order("id DESC").First(&prev).Error

	before := required
	if err == nil {
		before = prev.BalanceAfter
	}
	return before, RoundCentavo(before - amount)
}

// MySQL surfaces row-lock contention as deadlock or lock-wait errors; GORM
// wraps them, so match on the driver message.
func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") || strings.Contains(msg, "Lock wait timeout")
}
