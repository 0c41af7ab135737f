package billing

import (
	"testing"

	"ptaportal_go/models"
)

func TestCarryOver(t *testing.T) {
	tests := []struct {
		name     string
		balance  float64
		contrib  float64
		expected float64
	}{
		{name: "both categories unpaid", balance: 200, contrib: 150, expected: 350},
		{name: "only current year unpaid", balance: 0, contrib: 150, expected: 150},
		{name: "fully paid", balance: 0, contrib: 0, expected: 0},
		{name: "float noise rounded", balance: 0.1, contrib: 0.2, expected: 0.3},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s := &models.Student{Balance: tc.balance, ContributionBalance: tc.contrib}
			if got := CarryOver(s); !AmountsEqual(got, tc.expected) {
				t.Fatalf("expected %.2f, got %.2f", tc.expected, got)
			}
		})
	}
}

func TestCarryOverConservation(t *testing.T) {
	// Across a year transition no money is invented or destroyed except the
	// newly billed amount: the new row holds exactly old.balance +
	// old.contribution_balance + new_required.
	rows := []models.SchoolYearContribution{
		mapping(1, 100, true),
		mapping(2, 50, false),
	}

	cases := []struct {
		oldBalance float64
		oldContrib float64
		rank       int
	}{
		{0, 150, 0},
		{200, 0, 1},
		{75.50, 120.25, 0},
		{0, 0, 2},
	}

	for _, tc := range cases {
		old := &models.Student{Balance: tc.oldBalance, ContributionBalance: tc.oldContrib}
		carry := CarryOver(old)
		required, err := RequiredAmount(tc.rank, rows)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		newTotal := carry + required
		oldTotal := tc.oldBalance + tc.oldContrib
		if newTotal > oldTotal+required+Epsilon {
			t.Fatalf("money invented: old %.2f + required %.2f < new %.2f", oldTotal, required, newTotal)
		}
		if newTotal < oldTotal+required-Epsilon {
			t.Fatalf("money destroyed: old %.2f + required %.2f > new %.2f", oldTotal, required, newTotal)
		}
	}
}

func TestTransitionScenario(t *testing.T) {
	// Student A moves from SY2024 with an unpaid 150 contribution balance.
	// The new row must carry balance=150 and bill the new year's required
	// amount on top.
	old := &models.Student{Balance: 0, ContributionBalance: 150}
	carry := CarryOver(old)
	if !AmountsEqual(carry, 150) {
		t.Fatalf("expected carry-over 150, got %.2f", carry)
	}

	newYearRows := []models.SchoolYearContribution{
		mapping(1, 110, true),
		mapping(2, 60, false),
	}
	required, err := RequiredAmount(0, newYearRows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !AmountsEqual(required, 170) {
		t.Fatalf("expected new year requirement 170, got %.2f", required)
	}
}

func TestClampZero(t *testing.T) {
	if got := clampZero(-0.004); got != 0 {
		t.Fatalf("expected float noise clamped to 0, got %v", got)
	}
	if got := clampZero(0.009); got != 0 {
		t.Fatalf("expected sub-centavo clamped to 0, got %v", got)
	}
	if got := clampZero(12.345); !AmountsEqual(got, 12.35) {
		t.Fatalf("expected 12.35, got %v", got)
	}
}

func TestAmountsEqual(t *testing.T) {
	if !AmountsEqual(100, 100.0049) {
		t.Fatalf("expected sub-epsilon difference to compare equal")
	}
	if AmountsEqual(100, 100.02) {
		t.Fatalf("expected difference above epsilon to compare unequal")
	}
}

func TestHasActiveRowGuard(t *testing.T) {
	// Re-running a cross-year transition must not double-clone: an active row
	// in the target year trips the guard. A deactivated row or no row at all
	// lets the clone proceed.
	tests := []struct {
		name     string
		existing *models.Student
		want     bool
	}{
		{"no row in target year", nil, false},
		{"active row already cloned", &models.Student{Status: "active"}, true},
		{"inactive historical row", &models.Student{Status: "inactive"}, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := HasActiveRow(tc.existing); got != tc.want {
				t.Fatalf("HasActiveRow = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildCloneRow(t *testing.T) {
	guardianID := uint(5)
	sectionID := uint(9)
	old := &models.Student{
		GuardianID:          &guardianID,
		GradeLevelID:        3,
		SchoolYearID:        1,
		LRN:                 "123456789012",
		FirstName:           "Ana",
		LastName:            "Reyes",
		Balance:             80,
		ContributionBalance: 70,
		Status:              "active",
		Archived:            true,
	}
	target := TransitionTarget{SchoolYearID: 2, GradeLevelID: 4, SectionID: &sectionID}

	next := BuildCloneRow(old, target, 170)

	if next.SchoolYearID != 2 || next.GradeLevelID != 4 {
		t.Fatalf("expected target year 2 grade 4, got year %d grade %d", next.SchoolYearID, next.GradeLevelID)
	}
	if next.SectionID == nil || *next.SectionID != sectionID {
		t.Fatalf("expected section %d carried into the new row", sectionID)
	}
	if !AmountsEqual(next.Balance, 150) {
		t.Fatalf("expected unpaid total 150 carried as legacy balance, got %.2f", next.Balance)
	}
	if !AmountsEqual(next.ContributionBalance, 170) {
		t.Fatalf("expected new year requirement 170, got %.2f", next.ContributionBalance)
	}
	if next.Status != "active" {
		t.Fatalf("expected new row active, got %q", next.Status)
	}
	if next.Archived {
		t.Fatal("archived flag must reset on the new-year row")
	}
	if next.LRN != old.LRN || next.GuardianID == nil || *next.GuardianID != guardianID {
		t.Fatal("identity fields must copy to the new row")
	}
}
