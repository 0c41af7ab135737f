package controllers

import (
	"net/http/httptest"
	"testing"

	"ptaportal_go/models"

	"github.com/gofiber/fiber/v2"
)

func TestScheduleRowBelongsToYear(t *testing.T) {
	tests := []struct {
		name       string
		rowYearID  uint
		pathYearID uint
		want       bool
	}{
		{"row under its own year", 7, 7, true},
		{"row fetched under another year's path", 3, 7, false},
		{"row id colliding with a year id", 42, 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := models.SchoolYearContribution{SchoolYearID: tt.rowYearID}
			if got := ScheduleRowBelongsToYear(&row, tt.pathYearID); got != tt.want {
				t.Fatalf("ScheduleRowBelongsToYear(year %d, path %d) = %v, want %v",
					tt.rowYearID, tt.pathYearID, got, tt.want)
			}
		})
	}
}

func TestUpdateYearScheduleParsesBothPathSegments(t *testing.T) {
	app := fiber.New()
	cc := &ContributionController{}
	app.Put("/api/school-years/:id/fee-schedule/:row_id", cc.UpdateYearSchedule)

	tests := []struct {
		name string
		path string
	}{
		{"non-numeric school year segment", "/api/school-years/abc/fee-schedule/42"},
		{"non-numeric row segment", "/api/school-years/7/fee-schedule/abc"},
		{"row segment missing entirely", "/api/school-years/7/fee-schedule/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", tt.path, nil)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != fiber.StatusBadRequest && resp.StatusCode != fiber.StatusNotFound {
				t.Fatalf("expected 400 or 404 for %s, got %d", tt.path, resp.StatusCode)
			}
		})
	}
}

func TestGetYearScheduleReadsYearFromPath(t *testing.T) {
	app := fiber.New()
	cc := &ContributionController{}
	app.Get("/api/school-years/:id/fee-schedule", cc.GetYearSchedule)

	// The year comes from the path segment; a query param must not stand in
	// for a malformed one.
	req := httptest.NewRequest("GET", "/api/school-years/abc/fee-schedule?school_year_id=1&grade_level_id=1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for a non-numeric school year segment, got %d", resp.StatusCode)
	}
}
