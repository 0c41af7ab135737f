package billing

import (
	"errors"
	"testing"

	"ptaportal_go/models"
)

func mapping(id uint, amount float64, mandatory bool) models.SchoolYearContribution {
	return models.SchoolYearContribution{
		BaseModel:      models.BaseModel{ID: id},
		ContributionID: id,
		TotalAmount:    amount,
		Contribution: models.Contribution{
			BaseModel: models.BaseModel{ID: id},
			Amount:    amount,
			Mandatory: mandatory,
		},
	}
}

func TestRequiredAmount(t *testing.T) {
	// Membership Fee 100 mandatory, Field Trip 50 optional.
	rows := []models.SchoolYearContribution{
		mapping(1, 100, true),
		mapping(2, 50, false),
	}

	tests := []struct {
		name     string
		rank     int
		rows     []models.SchoolYearContribution
		expected float64
	}{
		{name: "first student pays full set", rank: 0, rows: rows, expected: 150},
		{name: "sibling pays mandatory only", rank: 1, rows: rows, expected: 100},
		{name: "later sibling same rule", rank: 3, rows: rows, expected: 100},
		{
			name:     "sibling with only optional contributions owes nothing",
			rank:     1,
			rows:     []models.SchoolYearContribution{mapping(2, 50, false)},
			expected: 0,
		},
		{
			name:     "amounts rounded to centavos",
			rank:     0,
			rows:     []models.SchoolYearContribution{mapping(1, 33.335, true), mapping(2, 33.335, true)},
			expected: 66.67,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := RequiredAmount(tc.rank, tc.rows)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !AmountsEqual(got, tc.expected) {
				t.Fatalf("expected %.2f, got %.2f", tc.expected, got)
			}
		})
	}
}

func TestRequiredAmountMissingMapping(t *testing.T) {
	if _, err := RequiredAmount(0, nil); !errors.Is(err, ErrNoContributionMapping) {
		t.Fatalf("expected ErrNoContributionMapping, got %v", err)
	}
}

func TestRequiredAmountIdempotent(t *testing.T) {
	// Re-running the calculator with unchanged mapping data must produce the
	// same result every time, within the money epsilon.
	rows := []models.SchoolYearContribution{
		mapping(1, 100, true),
		mapping(2, 50, false),
		mapping(3, 75.25, true),
	}
	first, err := RequiredAmount(0, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := RequiredAmount(0, rows)
		if err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
		if !AmountsEqual(first, again) {
			t.Fatalf("run %d: result drifted from %.2f to %.2f", i, first, again)
		}
	}
}

func TestRequiredAmountForContribution(t *testing.T) {
	mandatory := mapping(1, 100, true)
	optional := mapping(2, 50, false)

	if got := RequiredAmountForContribution(0, mandatory); got != 100 {
		t.Fatalf("first/mandatory: expected 100, got %.2f", got)
	}
	if got := RequiredAmountForContribution(0, optional); got != 50 {
		t.Fatalf("first/optional: expected 50, got %.2f", got)
	}
	if got := RequiredAmountForContribution(2, mandatory); got != 100 {
		t.Fatalf("sibling/mandatory: expected 100, got %.2f", got)
	}
	if got := RequiredAmountForContribution(2, optional); got != 0 {
		t.Fatalf("sibling/optional: expected 0, got %.2f", got)
	}
}

func TestSiblingScenario(t *testing.T) {
	// Guardian G has students A and B in Grade 7, SY 2024. A is first, B is
	// a sibling: A owes 150, B owes the mandatory 100.
	rows := []models.SchoolYearContribution{
		mapping(1, 100, true),
		mapping(2, 50, false),
	}

	ranks := Rank(0, []uint{1001, 1002})

	a, err := RequiredAmount(ranks[1001], rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := RequiredAmount(ranks[1002], rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !AmountsEqual(a, 150) {
		t.Fatalf("student A: expected 150, got %.2f", a)
	}
	if !AmountsEqual(b, 100) {
		t.Fatalf("student B: expected 100, got %.2f", b)
	}
}
