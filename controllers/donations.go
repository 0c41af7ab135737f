package controllers

import (
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FundController covers the non-billing money flows: donations in, expenses
// out, and the month-bucketed fund aggregates both feed.
type FundController struct{}

// GetDonations lists donations with pagination
func (fc *FundController) GetDonations(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset := (page - 1) * limit

	var donations []models.Donation
	var total int64

	query := database.DB.Model(&models.Donation{})
	if from := c.Query("from"); from != "" {
		query = query.Where("donation_date >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("donation_date <= ?", to)
	}
	query.Count(&total)

	if err := query.Offset(offset).Limit(limit).
		Order("donation_date DESC, id DESC").Find(&donations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch donations",
		})
	}

	return c.JSON(fiber.Map{
		"donations": donations,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateDonation records a donation and rolls it into the month's fund bucket
func (fc *FundController) CreateDonation(c *fiber.Ctx) error {
	var req struct {
		DonorName    string  `json:"donor_name"`
		Amount       float64 `json:"amount"`
		DonationDate string  `json:"donation_date"`
		Notes        string  `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.DonorName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Donor name is required",
		})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Amount must be positive",
		})
	}

	donationDate := time.Now()
	if req.DonationDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DonationDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid donation_date, expected YYYY-MM-DD",
			})
		}
		donationDate = parsed
	}

	donation := models.Donation{
		DonorName:    req.DonorName,
		Amount:       billing.RoundCentavo(req.Amount),
		DonationDate: donationDate,
		Notes:        req.Notes,
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&donation).Error; err != nil {
			return err
		}
		return billing.ApplyDonationToFund(tx, donation.DonationDate, donation.Amount)
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record donation",
		})
	}

	middleware.LogActivity(c, "CREATE", "donations", donation.ID, donation)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Donation recorded successfully",
		"donation": donation,
	})
}

// DeleteDonation removes a donation and rebuilds the affected fund month
func (fc *FundController) DeleteDonation(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid donation ID",
		})
	}

	var donation models.Donation
	if err := database.DB.First(&donation, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Donation not found",
		})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&donation).Error; err != nil {
			return err
		}
		return billing.RecomputeFundMonth(tx, donation.DonationDate.Year(), int(donation.DonationDate.Month()))
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete donation",
		})
	}

	middleware.LogActivity(c, "DELETE", "donations", donation.ID, fiber.Map{
		"donor_name": donation.DonorName,
		"amount":     donation.Amount,
	})

	return c.JSON(fiber.Map{
		"message": "Donation deleted successfully",
	})
}

// GetExpenses lists expenses with pagination
func (fc *FundController) GetExpenses(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset := (page - 1) * limit

	var expenses []models.Expense
	var total int64

	query := database.DB.Model(&models.Expense{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if from := c.Query("from"); from != "" {
		query = query.Where("expense_date >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("expense_date <= ?", to)
	}
	query.Count(&total)

	if err := query.Offset(offset).Limit(limit).
		Order("expense_date DESC, id DESC").Find(&expenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch expenses",
		})
	}

	return c.JSON(fiber.Map{
		"expenses": expenses,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// CreateExpense records an expense and rolls it into the month's fund bucket
func (fc *FundController) CreateExpense(c *fiber.Ctx) error {
	var req struct {
		Description string  `json:"description"`
		Category    string  `json:"category"`
		Amount      float64 `json:"amount"`
		ExpenseDate string  `json:"expense_date"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Description == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Description is required",
		})
	}
	if req.Amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Amount must be positive",
		})
	}

	expenseDate := time.Now()
	if req.ExpenseDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpenseDate)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid expense_date, expected YYYY-MM-DD",
			})
		}
		expenseDate = parsed
	}

	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	expense := models.Expense{
		Description:      req.Description,
		Category:         req.Category,
		Amount:           billing.RoundCentavo(req.Amount),
		ExpenseDate:      expenseDate,
		ApprovedByUserID: user.ID,
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&expense).Error; err != nil {
			return err
		}
		return billing.ApplyExpenseToFund(tx, expense.ExpenseDate, expense.Amount)
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record expense",
		})
	}

	middleware.LogActivity(c, "CREATE", "expenses", expense.ID, expense)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Expense recorded successfully",
		"expense": expense,
	})
}

// DeleteExpense removes an expense and rebuilds the affected fund month
func (fc *FundController) DeleteExpense(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid expense ID",
		})
	}

	var expense models.Expense
	if err := database.DB.First(&expense, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Expense not found",
		})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&expense).Error; err != nil {
			return err
		}
		return billing.RecomputeFundMonth(tx, expense.ExpenseDate.Year(), int(expense.ExpenseDate.Month()))
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete expense",
		})
	}

	middleware.LogActivity(c, "DELETE", "expenses", expense.ID, fiber.Map{
		"description": expense.Description,
		"amount":      expense.Amount,
	})

	return c.JSON(fiber.Map{
		"message": "Expense deleted successfully",
	})
}

// GetFunds returns the month-bucketed fund aggregates
func (fc *FundController) GetFunds(c *fiber.Ctx) error {
	var funds []models.Fund

	query := database.DB.Model(&models.Fund{})
	if year := c.Query("year"); year != "" {
		query = query.Where("year = ?", year)
	}

	if err := query.Order("year, month").Find(&funds).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch funds",
		})
	}

	var totalFunds float64
	for _, f := range funds {
		totalFunds += f.TotalFunds
	}

	return c.JSON(fiber.Map{
		"funds":       funds,
		"total_funds": billing.RoundCentavo(totalFunds),
	})
}

// RecomputeFunds rebuilds one fund month from the underlying payment,
// donation and expense rows (admin repair tool)
func (fc *FundController) RecomputeFunds(c *fiber.Ctx) error {
	var req struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Year == 0 || req.Month < 1 || req.Month > 12 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Valid year and month are required",
		})
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		return billing.RecomputeFundMonth(tx, req.Year, req.Month)
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to recompute fund month",
		})
	}

	middleware.LogActivity(c, "UPDATE", "funds", 0, req)

	return c.JSON(fiber.Map{
		"message": "Fund month recomputed successfully",
	})
}
