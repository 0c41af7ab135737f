package controllers

import (
	"fmt"
	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"ptaportal_go/storage"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type ReportController struct{}

// outstandingRow is one line of the outstanding balances report
type outstandingRow struct {
	StudentID           uint    `json:"student_id"`
	LRN                 string  `json:"lrn"`
	Name                string  `json:"name"`
	GradeLevel          string  `json:"grade_level"`
	Section             string  `json:"section"`
	Balance             float64 `json:"balance"`
	ContributionBalance float64 `json:"contribution_balance"`
	Outstanding         float64 `json:"outstanding"`
}

// GetOutstandingBalances reports every active student in a school year that
// still owes money, with per-grade filtering
func (rc *ReportController) GetOutstandingBalances(c *fiber.Ctx) error {
	yearID, err := strconv.ParseUint(c.Query("school_year_id"), 10, 32)
	if err != nil || yearID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "school_year_id is required",
		})
	}

	rows, summary, err := rc.outstandingReport(uint(yearID), c.Query("grade_level_id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}

	return c.JSON(fiber.Map{
		"rows":    rows,
		"summary": summary,
	})
}

func (rc *ReportController) outstandingReport(yearID uint, gradeFilter string) ([]outstandingRow, fiber.Map, error) {
	query := database.DB.Preload("GradeLevel").Preload("Section").
		Where("school_year_id = ? AND status = ?", yearID, "active")
	if gradeFilter != "" {
		query = query.Where("grade_level_id = ?", gradeFilter)
	}

	var students []models.Student
	if err := query.Order("grade_level_id, last_name, first_name").Find(&students).Error; err != nil {
		return nil, nil, err
	}

	rows := make([]outstandingRow, 0, len(students))
	var totalOutstanding float64
	debtors := 0
	for i := range students {
		s := &students[i]
		outstanding := s.OutstandingTotal()
		if outstanding <= billing.Epsilon {
			continue
		}
		section := ""
		if s.Section != nil {
			section = s.Section.Name
		}
		rows = append(rows, outstandingRow{
			StudentID:           s.ID,
			LRN:                 s.LRN,
			Name:                s.LastName + ", " + s.FirstName,
			GradeLevel:          s.GradeLevel.Name,
			Section:             section,
			Balance:             s.Balance,
			ContributionBalance: s.ContributionBalance,
			Outstanding:         billing.RoundCentavo(outstanding),
		})
		totalOutstanding += outstanding
		debtors++
	}

	summary := fiber.Map{
		"students_total":    len(students),
		"students_owing":    debtors,
		"total_outstanding": billing.RoundCentavo(totalOutstanding),
	}
	return rows, summary, nil
}

// GetCollectionSummary reports per-contribution collection totals for one
// school year: billed via the fee schedule, collected via posted payments
func (rc *ReportController) GetCollectionSummary(c *fiber.Ctx) error {
	yearID, err := strconv.ParseUint(c.Query("school_year_id"), 10, 32)
	if err != nil || yearID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "school_year_id is required",
		})
	}

	type collectionRow struct {
		ContributionID uint    `json:"contribution_id"`
		TypeName       string  `json:"type_name"`
		Mandatory      bool    `json:"mandatory"`
		PaymentCount   int64   `json:"payment_count"`
		Collected      float64 `json:"collected"`
	}

	var contributions []models.Contribution
	if err := database.DB.Order("id").Find(&contributions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch contributions",
		})
	}

	rows := make([]collectionRow, 0, len(contributions))
	var totalCollected float64
	for _, contribution := range contributions {
		var collected float64
		var count int64
		q := database.DB.Model(&models.Payment{}).
			Where("contribution_id = ? AND school_year_id = ?", contribution.ID, yearID)
		q.Count(&count)
		q.Select("COALESCE(SUM(amount_paid), 0)").Scan(&collected)

		rows = append(rows, collectionRow{
			ContributionID: contribution.ID,
			TypeName:       contribution.TypeName,
			Mandatory:      contribution.Mandatory,
			PaymentCount:   count,
			Collected:      billing.RoundCentavo(collected),
		})
		totalCollected += collected
	}

	return c.JSON(fiber.Map{
		"rows":            rows,
		"total_collected": billing.RoundCentavo(totalCollected),
	})
}

// ExportOutstandingBalances writes the outstanding balances report to an
// XLSX workbook, uploads it to S3 and returns the download URL
func (rc *ReportController) ExportOutstandingBalances(c *fiber.Ctx) error {
	yearID, err := strconv.ParseUint(c.Query("school_year_id"), 10, 32)
	if err != nil || yearID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "school_year_id is required",
		})
	}

	var year models.SchoolYear
	if err := database.DB.First(&year, uint(yearID)).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "School year not found",
		})
	}

	rows, summary, err := rc.outstandingReport(uint(yearID), c.Query("grade_level_id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build report",
		})
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Outstanding Balances"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"LRN", "Student", "Grade Level", "Section", "Carry-over", "Current Year", "Total Outstanding"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for i, row := range rows {
		values := []interface{}{row.LRN, row.Name, row.GradeLevel, row.Section,
			row.Balance, row.ContributionBalance, row.Outstanding}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}
	totalCell, _ := excelize.CoordinatesToCellName(7, len(rows)+3)
	f.SetCellValue(sheet, totalCell, summary["total_outstanding"])

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to render workbook",
		})
	}

	svc, err := storage.NewStorageService()
	if err != nil {
		logrus.WithError(err).Error("Failed to initialize storage service")
		// No S3 available; stream the file directly
		c.Set("Content-Disposition", `attachment; filename="outstanding_balances.xlsx"`)
		c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		return c.Send(buf.Bytes())
	}

	key := fmt.Sprintf("reports/outstanding/%s_%d.xlsx", year.Name, time.Now().Unix())
	url, err := svc.UploadBytes(buf.Bytes(), key)
	if err != nil {
		logrus.WithError(err).Error("Failed to upload report to S3")
		c.Set("Content-Disposition", `attachment; filename="outstanding_balances.xlsx"`)
		c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		return c.Send(buf.Bytes())
	}

	middleware.LogActivity(c, "CREATE", "reports", uint(yearID), fiber.Map{
		"report": "outstanding_balances",
		"url":    url,
	})

	return c.JSON(fiber.Map{
		"message": "Report exported successfully",
		"url":     url,
		"rows":    len(rows),
	})
}
