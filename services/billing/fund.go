package billing

import (
	"errors"
	"time"

	"ptaportal_go/models"

	"gorm.io/gorm"
)

// The allocator keeps the month-bucketed fund aggregate consistent at
// payment time; donations and expenses go through the same bucket math.

func fundBucket(tx *gorm.DB, t time.Time) (*models.Fund, error) {
	var fund models.Fund
	err := tx.Where("year = ? AND month = ?", t.Year(), int(t.Month())).First(&fund).Error
	if err == nil {
		return &fund, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	fund = models.Fund{Year: t.Year(), Month: int(t.Month())}
	if err := tx.Create(&fund).Error; err != nil {
		return nil, err
	}
	return &fund, nil
}

func saveFund(tx *gorm.DB, fund *models.Fund) error {
	fund.TotalFunds = RoundCentavo(fund.TotalPayments + fund.TotalDonations - fund.TotalExpenses)
	return tx.Model(fund).Updates(map[string]interface{}{
		"total_payments":  fund.TotalPayments,
		"total_donations": fund.TotalDonations,
		"total_expenses":  fund.TotalExpenses,
		"total_funds":     fund.TotalFunds,
	}).Error
}

// ApplyPaymentToFund adds a posted payment to its month bucket.
func ApplyPaymentToFund(tx *gorm.DB, t time.Time, amount float64) error {
	fund, err := fundBucket(tx, t)
	if err != nil {
		return err
	}
	fund.TotalPayments = RoundCentavo(fund.TotalPayments + amount)
	return saveFund(tx, fund)
}

// ApplyDonationToFund adds a recorded donation to its month bucket.
func ApplyDonationToFund(tx *gorm.DB, t time.Time, amount float64) error {
	fund, err := fundBucket(tx, t)
	if err != nil {
		return err
	}
	fund.TotalDonations = RoundCentavo(fund.TotalDonations + amount)
	return saveFund(tx, fund)
}

// ApplyExpenseToFund adds a recorded expense to its month bucket.
func ApplyExpenseToFund(tx *gorm.DB, t time.Time, amount float64) error {
	fund, err := fundBucket(tx, t)
	if err != nil {
		return err
	}
	fund.TotalExpenses = RoundCentavo(fund.TotalExpenses + amount)
	return saveFund(tx, fund)
}

// RecomputeFundMonth rebuilds one month bucket from the underlying rows.
// The monthly scheduler runs this as a consistency sweep.
func RecomputeFundMonth(tx *gorm.DB, year, month int) error {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	end := start.AddDate(0, 1, 0)

	fund, err := fundBucket(tx, start)
	if err != nil {
		return err
	}

	var payments, donations, expenses float64
	if err := tx.Model(&models.Payment{}).
		Where("payment_date >= ? AND payment_date < ?", start, end).
		Select("COALESCE(SUM(amount_paid), 0)").Scan(&payments).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Donation{}).
		Where("donation_date >= ? AND donation_date < ?", start, end).
		Select("COALESCE(SUM(amount), 0)").Scan(&donations).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.Expense{}).
		Where("expense_date >= ? AND expense_date < ?", start, end).
		Select("COALESCE(SUM(amount), 0)").Scan(&expenses).Error; err != nil {
		return err
	}

	fund.TotalPayments = RoundCentavo(payments)
	fund.TotalDonations = RoundCentavo(donations)
	fund.TotalExpenses = RoundCentavo(expenses)
	return saveFund(tx, fund)
}
