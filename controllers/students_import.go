package controllers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ptaportal_go/database"
	"ptaportal_go/middleware"
	"ptaportal_go/models"
	"ptaportal_go/services/billing"
	"ptaportal_go/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// StudentImportController handles bulk enrollment from a registrar's
// CSV/XLSX masterlist export
type StudentImportController struct{}

// importRow is one parsed masterlist line
type importRow struct {
	line              int
	lrn               string
	firstName         string
	lastName          string
	gradeLevel        string
	section           string
	guardianFirstName string
	guardianLastName  string
	guardianContact   string
}

// POST /api/import/students
// Multipart form with fields: file, school_year_id
func (sic *StudentImportController) Import(c *fiber.Ctx) error {
	yearID, err := strconv.ParseUint(c.FormValue("school_year_id"), 10, 32)
	if err != nil || yearID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "school_year_id is required"})
	}
	var year models.SchoolYear
	if err := database.DB.First(&year, uint(yearID)).Error; err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "school year not found"})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	// Read rows
	var rows [][]string
	filename := strings.ToLower(fh.Filename)
	if strings.HasSuffix(filename, ".csv") {
		f, err := fh.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
		}
		defer f.Close()
		rows, err = readMasterlistCSV(f)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	} else if strings.HasSuffix(filename, ".xlsx") || strings.HasSuffix(filename, ".xls") {
		// buffer to temp path for excelize
		tmpDir, _ := os.MkdirTemp("", "pta-students-")
		tmp := filepath.Join(tmpDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(fh.Filename)))
		if err := c.SaveFile(fh, tmp); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to buffer upload"})
		}
		var rerr error
		rows, rerr = readMasterlistXLSX(tmp)
		_ = os.Remove(tmp)
		if rerr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": rerr.Error()})
		}
	} else {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported file type (csv,xlsx)"})
	}

	if len(rows) < 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file has no data rows"})
	}

	col := mapMasterlistHeader(rows[0])
	for _, required := range []string{"first name", "last name", "grade level"} {
		if _, ok := col[required]; !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing column: " + required,
			})
		}
	}

	parsed := make([]importRow, 0, len(rows)-1)
	errorsList := []string{}
	for i := 1; i < len(rows); i++ {
		r := rows[i]
		get := func(key string) string {
			if idx, ok := col[key]; ok && idx < len(r) {
				return utils.SanitizeString(r[idx])
			}
			return ""
		}

		row := importRow{
			line:              i + 1,
			lrn:               get("lrn"),
			firstName:         get("first name"),
			lastName:          get("last name"),
			gradeLevel:        get("grade level"),
			section:           get("section"),
			guardianFirstName: get("guardian first name"),
			guardianLastName:  get("guardian last name"),
			guardianContact:   get("guardian contact"),
		}
		if row.firstName == "" || row.lastName == "" || row.gradeLevel == "" {
			errorsList = append(errorsList, fmt.Sprintf("row %d: missing name or grade level", row.line))
			continue
		}
		parsed = append(parsed, row)
	}

	// Group rows per guardian so siblings in one file rank together. Rows
	// without a guardian import as families of one.
	groups := map[string][]importRow{}
	order := []string{}
	for _, row := range parsed {
		key := utils.NormalizeName(row.guardianFirstName) + "|" + utils.NormalizeName(row.guardianLastName)
		if row.guardianFirstName == "" && row.guardianLastName == "" {
			key = fmt.Sprintf("solo:%d", row.line)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	inserted := 0
	skipped := 0
	for _, key := range order {
		group := groups[key]
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			return sic.importGroup(tx, uint(yearID), group, &inserted, &skipped, &errorsList)
		})
		if err != nil {
			for _, row := range group {
				errorsList = append(errorsList, fmt.Sprintf("row %d: %v", row.line, err))
			}
		}
	}

	middleware.LogActivity(c, "CREATE", "student_import", uint(yearID), fiber.Map{
		"file_name": fh.Filename,
		"inserted":  inserted,
		"skipped":   skipped,
		"errors":    len(errorsList),
	})

	return c.JSON(fiber.Map{
		"success":      true,
		"file_name":    fh.Filename,
		"data_rows":    len(rows) - 1,
		"inserted":     inserted,
		"skipped":      skipped,
		"errors_count": len(errorsList),
		"errors":       errorsList,
	})
}

// importGroup enrolls one guardian's children inside one transaction.
// Re-importing the same file skips rows that already exist, so the sibling
// ranks stay stable across runs.
func (sic *StudentImportController) importGroup(tx *gorm.DB, yearID uint, group []importRow, inserted, skipped *int, errorsList *[]string) error {
	var guardianID *uint
	first := group[0]
	if first.guardianFirstName != "" || first.guardianLastName != "" {
		guardian, err := getOrCreateGuardian(tx, first.guardianFirstName, first.guardianLastName, first.guardianContact)
		if err != nil {
			return err
		}
		guardianID = &guardian.ID
	}

	rank := 0
	if guardianID != nil {
		existing, err := billing.ExistingSiblingCount(tx, *guardianID, yearID, nil)
		if err != nil {
			return err
		}
		rank = existing
	}

	for _, row := range group {
		gradeLevel, err := getOrCreateGradeLevel(tx, row.gradeLevel)
		if err != nil {
			return err
		}

		var sectionID *uint
		if row.section != "" {
			section, err := getOrCreateSection(tx, row.section, gradeLevel.ID)
			if err != nil {
				return err
			}
			sectionID = &section.ID
		}

		// Dedup: same LRN (or same name under the same guardian) already in
		// the target year
		var existing models.Student
		q := tx.Where("school_year_id = ?", yearID)
		if row.lrn != "" {
			q = q.Where("lrn = ?", row.lrn)
		} else {
			q = q.Where("LOWER(TRIM(first_name)) = ? AND LOWER(TRIM(last_name)) = ?",
				utils.NormalizeName(row.firstName), utils.NormalizeName(row.lastName))
			if guardianID != nil {
				q = q.Where("guardian_id = ?", *guardianID)
			}
		}
		if err := q.First(&existing).Error; err == nil {
			*skipped++
			continue
		}

		// A learner already on file in an earlier year goes through the
		// year-transition ledger so unpaid balances carry forward.
		var prior models.Student
		pq := tx.Where("school_year_id <> ?", yearID)
		if row.lrn != "" {
			pq = pq.Where("lrn = ?", row.lrn)
		} else {
			pq = pq.Where("LOWER(TRIM(first_name)) = ? AND LOWER(TRIM(last_name)) = ?",
				utils.NormalizeName(row.firstName), utils.NormalizeName(row.lastName))
			if guardianID != nil {
				pq = pq.Where("guardian_id = ?", *guardianID)
			} else {
				pq = pq.Where("guardian_id IS NULL")
			}
		}
		if err := pq.Order("id DESC").First(&prior).Error; err == nil {
			target := billing.TransitionTarget{
				SchoolYearID: yearID,
				GradeLevelID: gradeLevel.ID,
				SectionID:    sectionID,
			}
			if _, err := billing.TransitionStudentYear(tx, &prior, target, rank); err != nil {
				*errorsList = append(*errorsList, fmt.Sprintf("row %d: %v", row.line, err))
				continue
			}
			*inserted++
			rank++
			continue
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		mappings, err := billing.GetOrCreateMappings(tx, yearID, gradeLevel.ID)
		if err != nil {
			*errorsList = append(*errorsList, fmt.Sprintf("row %d: %v", row.line, err))
			continue
		}
		required, err := billing.RequiredAmount(rank, mappings)
		if err != nil {
			*errorsList = append(*errorsList, fmt.Sprintf("row %d: %v", row.line, err))
			continue
		}

		student := models.Student{
			GuardianID:          guardianID,
			GradeLevelID:        gradeLevel.ID,
			SectionID:           sectionID,
			SchoolYearID:        yearID,
			LRN:                 row.lrn,
			FirstName:           row.firstName,
			LastName:            row.lastName,
			ContributionBalance: required,
			Status:              "active",
		}
		if err := tx.Create(&student).Error; err != nil {
			return err
		}
		*inserted++
		rank++
	}
	return nil
}

func getOrCreateGuardian(tx *gorm.DB, firstName, lastName, contact string) (*models.Guardian, error) {
	var guardian models.Guardian
	err := tx.Where("LOWER(TRIM(first_name)) = ? AND LOWER(TRIM(last_name)) = ?",
		utils.NormalizeName(firstName), utils.NormalizeName(lastName)).First(&guardian).Error
	if err == nil {
		return &guardian, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	guardian = models.Guardian{FirstName: firstName, LastName: lastName, ContactNumber: contact}
	if err := tx.Create(&guardian).Error; err != nil {
		return nil, err
	}
	return &guardian, nil
}

func getOrCreateGradeLevel(tx *gorm.DB, name string) (*models.GradeLevel, error) {
	var grade models.GradeLevel
	err := tx.Where("name = ?", name).First(&grade).Error
	if err == nil {
		return &grade, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	grade = models.GradeLevel{Name: name}
	if err := tx.Create(&grade).Error; err != nil {
		return nil, err
	}
	return &grade, nil
}

func getOrCreateSection(tx *gorm.DB, name string, gradeLevelID uint) (*models.Section, error) {
	var section models.Section
	err := tx.Where("name = ? AND grade_level_id = ?", name, gradeLevelID).First(&section).Error
	if err == nil {
		return &section, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	section = models.Section{Name: name, GradeLevelID: gradeLevelID}
	if err := tx.Create(&section).Error; err != nil {
		return nil, err
	}
	return &section, nil
}

func mapMasterlistHeader(header []string) map[string]int {
	m := map[string]int{}
	for i, h := range header {
		m[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return m
}

func readMasterlistCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readMasterlistXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sht := f.GetSheetName(0)
	if sht == "" {
		sht = "Sheet1"
	}
	return f.GetRows(sht)
}
