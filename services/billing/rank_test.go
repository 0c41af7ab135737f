package billing

import "testing"

func TestRank(t *testing.T) {
	tests := []struct {
		name     string
		existing int
		batch    []uint
		expected map[uint]int
	}{
		{
			name:     "first batch for guardian",
			existing: 0,
			batch:    []uint{10, 11, 12},
			expected: map[uint]int{10: 0, 11: 1, 12: 2},
		},
		{
			name:     "students already committed outside batch",
			existing: 2,
			batch:    []uint{30, 31},
			expected: map[uint]int{30: 2, 31: 3},
		},
		{
			name:     "single student",
			existing: 0,
			batch:    []uint{7},
			expected: map[uint]int{7: 0},
		},
		{
			name:     "duplicate id keeps first position",
			existing: 0,
			batch:    []uint{5, 5, 6},
			expected: map[uint]int{5: 0, 6: 2},
		},
		{
			name:     "empty batch",
			existing: 3,
			batch:    nil,
			expected: map[uint]int{},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Rank(tc.existing, tc.batch)
			if len(got) != len(tc.expected) {
				t.Fatalf("expected %d ranks, got %d", len(tc.expected), len(got))
			}
			for id, rank := range tc.expected {
				if got[id] != rank {
					t.Fatalf("student %d: expected rank %d, got %d", id, rank, got[id])
				}
			}
		})
	}
}

func TestRankExactlyOneFirst(t *testing.T) {
	// For any guardian batch with no prior commitments, exactly one student
	// must end up at rank 0.
	batches := [][]uint{
		{1},
		{4, 2, 9},
		{100, 101, 102, 103, 104},
	}
	for _, batch := range batches {
		ranks := Rank(0, batch)
		firsts := 0
		for _, r := range ranks {
			if r == 0 {
				firsts++
			}
		}
		if firsts != 1 {
			t.Fatalf("batch %v: expected exactly one rank 0, got %d", batch, firsts)
		}
	}
}

func TestRankStableOnRerun(t *testing.T) {
	batch := []uint{21, 22, 23}
	first := Rank(1, batch)
	second := Rank(1, batch)
	for id, r := range first {
		if second[id] != r {
			t.Fatalf("rank for %d changed between runs: %d vs %d", id, r, second[id])
		}
	}
}

func TestRankNoFirstWhenExistingCommitted(t *testing.T) {
	// A guardian who already has a student committed to the year never gets
	// another rank 0 from a later batch.
	ranks := Rank(1, []uint{50, 51})
	for id, r := range ranks {
		if r == 0 {
			t.Fatalf("student %d unexpectedly ranked first", id)
		}
	}
}

func TestSortIDsAscending(t *testing.T) {
	in := []uint{9, 3, 7, 1}
	out := SortIDsAscending(in)

	expected := []uint{1, 3, 7, 9}
	for i, id := range expected {
		if out[i] != id {
			t.Fatalf("position %d: expected %d, got %d", i, id, out[i])
		}
	}
	// Input must not be reordered in place.
	if in[0] != 9 {
		t.Fatalf("input slice was mutated")
	}
}
