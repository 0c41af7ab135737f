package controllers

import (
	"errors"
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"ptaportal_go/services/notifications"
	"ptaportal_go/utils"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type PaymentController struct{}

// PostPayment applies a treasurer payment batch to one student. The batch
// commits fully or not at all; each line may be redirected to an older unpaid
// school year by the allocator.
func (pc *PaymentController) PostPayment(c *fiber.Ctx) error {
	var req struct {
		StudentID uint                  `json:"student_id"`
		Lines     []billing.PaymentLine `json:"lines"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.StudentID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "student_id is required",
		})
	}

	var student models.Student
	if err := database.DB.First(&student, req.StudentID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Student not found",
		})
	}

	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	allocator := billing.NewAllocator(database.DB)
	posted, err := allocator.PostPayments(req.StudentID, user.ID, req.Lines)
	if err != nil {
		var exceeds *billing.PaymentExceedsBalanceError
		switch {
		case errors.As(err, &exceeds):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":          "Payment exceeds the remaining balance",
				"detail":         err.Error(),
				"remaining":      exceeds.Remaining,
				"remaining_text": utils.FormatPeso(exceeds.Remaining),
				"school_year_id": exceeds.SchoolYearID,
			})
		case errors.Is(err, billing.ErrNoContributionMapping):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "No contribution schedule covers this payment line",
			})
		case errors.Is(err, billing.ErrConcurrentBalanceConflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Another payment is being posted for this family, please retry",
			})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	database.DB.First(&student, student.ID)

	receipts := make([]string, 0, len(posted))
	var totalPaid float64
	for _, p := range posted {
		receipts = append(receipts, p.Payment.ReceiptNo)
		totalPaid += p.Payment.AmountPaid
	}

	// Push a receipt to the family's portal accounts
	if len(posted) > 0 {
		go func(s models.Student, amount float64, receipt string) {
			svc := notifications.NewService()
			if err := svc.NotifyPaymentPosted(&s, utils.FormatPeso(amount), receipt); err != nil {
				logrus.WithError(err).Warn("Failed to push payment notification")
			}
		}(student, billing.RoundCentavo(totalPaid), receipts[0])
	}
	middleware.LogActivity(c, "CREATE", "payments", student.ID, fiber.Map{
		"lines":    len(req.Lines),
		"receipts": receipts,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Payment posted successfully",
		"posted":  posted,
		"student": fiber.Map{
			"id":                   student.ID,
			"balance":              student.Balance,
			"contribution_balance": student.ContributionBalance,
			"outstanding":          student.OutstandingTotal(),
		},
	})
}

// GetPayments lists posted payments with pagination and filters
func (pc *PaymentController) GetPayments(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset := (page - 1) * limit

	var payments []models.Payment
	var total int64

	query := database.DB.Model(&models.Payment{})
	if studentID := c.Query("student_id"); studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}
	if yearID := c.Query("school_year_id"); yearID != "" {
		query = query.Where("school_year_id = ?", yearID)
	}
	if contributionID := c.Query("contribution_id"); contributionID != "" {
		query = query.Where("contribution_id = ?", contributionID)
	}
	if from := c.Query("from"); from != "" {
		query = query.Where("payment_date >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("payment_date <= ?", to)
	}

	query.Count(&total)

	if err := query.Preload("Student").Preload("Contribution").Preload("SchoolYear").
		Offset(offset).Limit(limit).Order("payment_date DESC, id DESC").
		Find(&payments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch payments",
		})
	}

	return c.JSON(fiber.Map{
		"payments": payments,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetPayment returns one payment with its audit trail entries
func (pc *PaymentController) GetPayment(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payment ID",
		})
	}

	var payment models.Payment
	if err := database.DB.Preload("Student").Preload("Contribution").Preload("SchoolYear").
		First(&payment, uint(id)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Payment not found",
		})
	}

	var history []models.PaymentHistory
	database.DB.Preload("SchoolYearContribution").Preload("SchoolYearContribution.Contribution").
		Where("payment_id = ?", payment.ID).Order("id").Find(&history)

	return c.JSON(fiber.Map{
		"payment": payment,
		"history": history,
	})
}

// GetPaymentHistory lists the append-only audit trail for one student row's
// learner identity, newest first
func (pc *PaymentController) GetPaymentHistory(c *fiber.Ctx) error {
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

	var history []models.PaymentHistory
	if err := database.DB.Preload("Payment").
		Preload("SchoolYearContribution").Preload("SchoolYearContribution.Contribution").
		Preload("SchoolYearContribution.SchoolYear").
		Where("student_id IN ?", identityIDs).
		Order("payment_date DESC, id DESC").Find(&history).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch payment history",
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
	})
}
