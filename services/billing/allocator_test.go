package billing

import (
	"errors"
	"testing"
	"time"
)

func charge(yearID uint, start string, required, paid float64) YearCharge {
	t, _ := time.Parse("2006-01-02", start)
	return YearCharge{
		SchoolYearID: yearID,
		StartDate:    t,
		MappingID:    yearID * 10,
		Required:     required,
		Paid:         paid,
	}
}

func TestResolveTargetYearOldestFirst(t *testing.T) {
	// Unpaid balance in 2024 must absorb a payment requested against 2025.
	charges := []YearCharge{
		charge(1, "2024-06-01", 100, 0),
		charge(2, "2025-06-01", 100, 0),
	}

	target, err := ResolveTargetYear(charges, 2, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.SchoolYearID != 1 {
		t.Fatalf("expected payment resolved to year 1, got %d", target.SchoolYearID)
	}
}

func TestResolveTargetYearSkipsSettledYears(t *testing.T) {
	charges := []YearCharge{
		charge(1, "2023-06-01", 100, 100),
		charge(2, "2024-06-01", 100, 40),
		charge(3, "2025-06-01", 100, 0),
	}

	target, err := ResolveTargetYear(charges, 3, 60)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.SchoolYearID != 2 {
		t.Fatalf("expected partially-paid year 2, got %d", target.SchoolYearID)
	}
	if !AmountsEqual(target.Remaining(), 60) {
		t.Fatalf("expected remaining 60, got %.2f", target.Remaining())
	}
}

func TestResolveTargetYearHonorsRequestedBound(t *testing.T) {
	// Debt in a year newer than the requested one must not be targeted.
	charges := []YearCharge{
		charge(1, "2024-06-01", 100, 100),
		charge(2, "2025-06-01", 100, 0),
	}

	_, err := ResolveTargetYear(charges, 1, 50)
	var exceeds *PaymentExceedsBalanceError
	if !errors.As(err, &exceeds) {
		t.Fatalf("expected PaymentExceedsBalanceError, got %v", err)
	}
	if exceeds.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %.2f", exceeds.Remaining)
	}
}

func TestResolveTargetYearRejectsOverpayment(t *testing.T) {
	charges := []YearCharge{
		charge(1, "2024-06-01", 100, 70),
	}

	_, err := ResolveTargetYear(charges, 1, 50)
	if !IsPaymentExceedsBalance(err) {
		t.Fatalf("expected PaymentExceedsBalanceError, got %v", err)
	}
	var exceeds *PaymentExceedsBalanceError
	if !errors.As(err, &exceeds) {
		t.Fatalf("expected PaymentExceedsBalanceError, got %v", err)
	}
	if !AmountsEqual(exceeds.Remaining, 30) {
		t.Fatalf("expected remaining 30 in error, got %.2f", exceeds.Remaining)
	}
}

func TestResolveTargetYearUnknownRequestedYear(t *testing.T) {
	charges := []YearCharge{
		charge(1, "2024-06-01", 100, 0),
	}

	if _, err := ResolveTargetYear(charges, 99, 50); !errors.Is(err, ErrNoContributionMapping) {
		t.Fatalf("expected ErrNoContributionMapping, got %v", err)
	}
}

func TestResolveTargetYearEpsilonTolerance(t *testing.T) {
	// A remainder below one centavo counts as settled; an overshoot below
	// one centavo is accepted.
	charges := []YearCharge{
		charge(1, "2024-06-01", 100, 99.995),
		charge(2, "2025-06-01", 100, 0),
	}

	target, err := ResolveTargetYear(charges, 2, 100.005)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.SchoolYearID != 2 {
		t.Fatalf("expected year 2, got %d", target.SchoolYearID)
	}
}

func TestPaymentNeverExceedsRequired(t *testing.T) {
	// Whatever sequence of accepted payments runs against a year, paid can
	// never pass required.
	c := charge(1, "2024-06-01", 150, 0)
	payments := []float64{50, 50, 30, 40, 20}

	for _, p := range payments {
		target, err := ResolveTargetYear([]YearCharge{c}, 1, p)
		if err != nil {
			var exceeds *PaymentExceedsBalanceError
			if !errors.As(err, &exceeds) {
				t.Fatalf("unexpected error: %v", err)
			}
			continue
		}
		c.Paid = RoundCentavo(c.Paid + p)
		_ = target
		if c.Paid > c.Required+Epsilon {
			t.Fatalf("paid %.2f exceeded required %.2f", c.Paid, c.Required)
		}
	}
	if !AmountsEqual(c.Paid, 150) {
		t.Fatalf("expected exactly 150 accepted, got %.2f", c.Paid)
	}
}

func TestOrderYearCharges(t *testing.T) {
	charges := []YearCharge{
		charge(3, "2025-06-01", 100, 0),
		charge(1, "2023-06-01", 100, 0),
		charge(2, "2024-06-01", 100, 0),
	}
	OrderYearCharges(charges)

	expected := []uint{1, 2, 3}
	for i, id := range expected {
		if charges[i].SchoolYearID != id {
			t.Fatalf("position %d: expected year %d, got %d", i, id, charges[i].SchoolYearID)
		}
	}
}

func TestOrderYearChargesIDTiebreak(t *testing.T) {
	charges := []YearCharge{
		charge(5, "2024-06-01", 100, 0),
		charge(4, "2024-06-01", 100, 0),
	}
	OrderYearCharges(charges)

	if charges[0].SchoolYearID != 4 || charges[1].SchoolYearID != 5 {
		t.Fatalf("expected id tiebreak 4 then 5, got %d then %d",
			charges[0].SchoolYearID, charges[1].SchoolYearID)
	}
}

func TestRetroactivePaymentScenario(t *testing.T) {
	// Student A is enrolled in SY2025 but still owes 150 on SY2024's
	// membership fee. A payment requested against SY2025 sufficient to cover
	// SY2024 must land on SY2024.
	charges := []YearCharge{
		charge(1, "2024-06-01", 150, 0),
		charge(2, "2025-06-01", 150, 0),
	}

	target, err := ResolveTargetYear(charges, 2, 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.SchoolYearID != 1 {
		t.Fatalf("expected SY2024 (year 1), got %d", target.SchoolYearID)
	}

	// After SY2024 settles, the next payment flows to SY2025.
	charges[0].Paid = 150
	target, err = ResolveTargetYear(charges, 2, 150)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.SchoolYearID != 2 {
		t.Fatalf("expected SY2025 (year 2), got %d", target.SchoolYearID)
	}
}
