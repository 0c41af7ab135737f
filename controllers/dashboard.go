package controllers

import (
	"context"
	"encoding/json"
	"ptaportal_go/database"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type DashboardController struct{}

const dashboardCacheKey = "dashboard:summary"
const dashboardCacheTTL = 5 * time.Minute

type dashboardSummary struct {
	ActiveSchoolYear   *models.SchoolYear `json:"active_school_year"`
	ActiveStudents     int64              `json:"active_students"`
	StudentsOwing      int64              `json:"students_owing"`
	TotalOutstanding   float64            `json:"total_outstanding"`
	CollectedThisMonth float64            `json:"collected_this_month"`
	DonationsThisMonth float64            `json:"donations_this_month"`
	ExpensesThisMonth  float64            `json:"expenses_this_month"`
	TotalFunds         float64            `json:"total_funds"`
	GeneratedAt        time.Time          `json:"generated_at"`
}

// GetSummary returns the treasurer dashboard aggregates. The summary is
// cached in Redis for a few minutes; posting a payment does not need to be
// instantly visible here.
func (dc *DashboardController) GetSummary(c *fiber.Ctx) error {
	if rc := database.GetRedisClient(); rc != nil && c.Query("refresh") != "true" {
		if cached, err := rc.Get(context.Background(), dashboardCacheKey).Result(); err == nil {
			var summary dashboardSummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return c.JSON(fiber.Map{"summary": summary, "cached": true})
			}
		}
	}

	summary, err := dc.buildSummary()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build dashboard summary",
		})
	}

	if rc := database.GetRedisClient(); rc != nil {
		if data, err := json.Marshal(summary); err == nil {
			if err := rc.Set(context.Background(), dashboardCacheKey, data, dashboardCacheTTL).Err(); err != nil {
				logrus.WithError(err).Debug("Failed to cache dashboard summary")
			}
		}
	}

	return c.JSON(fiber.Map{"summary": summary, "cached": false})
}

func (dc *DashboardController) buildSummary() (*dashboardSummary, error) {
	summary := &dashboardSummary{GeneratedAt: time.Now()}

	var active models.SchoolYear
	if err := database.DB.Where("is_active = ?", true).First(&active).Error; err == nil {
		summary.ActiveSchoolYear = &active
	}

	studentQuery := database.DB.Model(&models.Student{}).Where("status = ?", "active")
	if summary.ActiveSchoolYear != nil {
		studentQuery = studentQuery.Where("school_year_id = ?", active.ID)
	}
	if err := studentQuery.Count(&summary.ActiveStudents).Error; err != nil {
		return nil, err
	}

	owingQuery := database.DB.Model(&models.Student{}).
		Where("status = ? AND (balance + contribution_balance) > ?", "active", billing.Epsilon)
	if summary.ActiveSchoolYear != nil {
		owingQuery = owingQuery.Where("school_year_id = ?", active.ID)
	}
	if err := owingQuery.Count(&summary.StudentsOwing).Error; err != nil {
		return nil, err
	}

	outstandingQuery := database.DB.Model(&models.Student{}).Where("status = ?", "active")
	if summary.ActiveSchoolYear != nil {
		outstandingQuery = outstandingQuery.Where("school_year_id = ?", active.ID)
	}
	if err := outstandingQuery.
		Select("COALESCE(SUM(balance + contribution_balance), 0)").
		Scan(&summary.TotalOutstanding).Error; err != nil {
		return nil, err
	}
	summary.TotalOutstanding = billing.RoundCentavo(summary.TotalOutstanding)

	now := time.Now()
	var fund models.Fund
	if err := database.DB.Where("year = ? AND month = ?", now.Year(), int(now.Month())).
		First(&fund).Error; err == nil {
		summary.CollectedThisMonth = fund.TotalPayments
		summary.DonationsThisMonth = fund.TotalDonations
		summary.ExpensesThisMonth = fund.TotalExpenses
	}

	if err := database.DB.Model(&models.Fund{}).
		Select("COALESCE(SUM(total_funds), 0)").Scan(&summary.TotalFunds).Error; err != nil {
		return nil, err
	}
	summary.TotalFunds = billing.RoundCentavo(summary.TotalFunds)

	return summary, nil
}
