package analysis

import (
	"errors"
	"math/rand"
	"testing"
)

func TestParseRankPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want RankPolicy
	}{
		{"mismatch", RankMismatch},
		{"misclassification", RankMisclassification},
		{"stability", RankStability},
		{"random", RankRandom},
		{"", RankRandom},
		{"anything-else", RankRandom},
	}
	for _, tt := range tests {
		if got := ParseRankPolicy(tt.in); got != tt.want {
			t.Errorf("ParseRankPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPersistenceRequiresTwoMatrices(t *testing.T) {
	m := constantMatrix(t, 3, []bool{true, true})
	if _, err := Persistence([]*CorrectnessMatrix{m}, 1, RankMismatch, nil); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("one matrix: err = %v, want ErrUnsupportedConfiguration", err)
	}
	if _, err := Persistence([]*CorrectnessMatrix{m, m, m}, 1, RankMismatch, nil); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("three matrices: err = %v, want ErrUnsupportedConfiguration", err)
	}
	if _, err := Persistence([]*CorrectnessMatrix{m, m}, 5, RankMismatch, nil); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("more samples than columns: err = %v, want ErrUnsupportedConfiguration", err)
	}
}

func TestPersistenceStabilityNeedsTwoEpochs(t *testing.T) {
	m := constantMatrix(t, 1, []bool{true, false, true})
	mats := []*CorrectnessMatrix{m, m}

	if _, err := Persistence(mats, 2, RankStability, nil); !errors.Is(err, ErrUnsupportedConfiguration) {
		t.Errorf("single-epoch stability ranking: err = %v, want ErrUnsupportedConfiguration", err)
	}

	// The other policies are well defined for a single epoch.
	for _, policy := range []RankPolicy{RankMismatch, RankMisclassification, RankRandom} {
		if _, err := Persistence(mats, 2, policy, nil); err != nil {
			t.Errorf("%s over one epoch failed: %v", policy, err)
		}
	}
}

func TestPersistenceReturnsDistinctIndices(t *testing.T) {
	a := mustStack(t, [][]bool{
		{true, false, true, true, false},
		{false, false, true, false, true},
		{true, true, false, true, true},
	})
	b := mustStack(t, [][]bool{
		{false, false, true, true, true},
		{false, true, true, false, false},
		{true, true, true, true, false},
	})

	for _, policy := range []RankPolicy{RankMismatch, RankMisclassification, RankStability, RankRandom} {
		t.Run(policy.String(), func(t *testing.T) {
			const n = 3
			result, err := Persistence([]*CorrectnessMatrix{a, b}, n, policy, rand.New(rand.NewSource(5)))
			if err != nil {
				t.Fatal(err)
			}
			if len(result.Indices) != n {
				t.Fatalf("got %d indices, want %d", len(result.Indices), n)
			}
			seen := map[int]bool{}
			for _, idx := range result.Indices {
				if idx < 0 || idx >= a.Samples() {
					t.Errorf("index %d out of range [0, %d)", idx, a.Samples())
				}
				if seen[idx] {
					t.Errorf("index %d selected twice", idx)
				}
				seen[idx] = true
			}
		})
	}
}

func TestPersistenceMismatchRanking(t *testing.T) {
	// Sample 2 disagrees at every epoch, sample 0 at one, sample 1 never.
	a := mustStack(t, [][]bool{
		{true, true, true},
		{true, true, true},
	})
	b := mustStack(t, [][]bool{
		{false, true, false},
		{true, true, false},
	})

	result, err := Persistence([]*CorrectnessMatrix{a, b}, 2, RankMismatch, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Indices[0] != 2 || result.Indices[1] != 0 {
		t.Errorf("indices = %v, want [2 0] (lowest agreement first)", result.Indices)
	}
}

func TestPersistenceMisclassificationRanking(t *testing.T) {
	// Sample 1 is wrong everywhere in both runs, sample 0 right everywhere.
	a := mustStack(t, [][]bool{
		{true, false, true},
		{true, false, false},
	})
	b := mustStack(t, [][]bool{
		{true, false, true},
		{true, false, true},
	})

	result, err := Persistence([]*CorrectnessMatrix{a, b}, 1, RankMisclassification, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Indices[0] != 1 {
		t.Errorf("indices = %v, want sample 1 first (most frequently wrong)", result.Indices)
	}
}

func TestPersistenceStabilityTieBreak(t *testing.T) {
	// An all-ones history: every sample scores identically under the
	// stability policy, so the stable sort keeps index order.
	row := make([]bool, 20)
	for i := range row {
		row[i] = true
	}
	a := constantMatrix(t, 5, row)

	const n = 10
	result, err := Persistence([]*CorrectnessMatrix{a, a}, n, RankStability, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, idx := range result.Indices {
		if idx != i {
			t.Errorf("Indices[%d] = %d, want %d under deterministic tie-break", i, idx, i)
		}
	}
}

func TestPersistenceStrip(t *testing.T) {
	a := mustStack(t, [][]bool{
		{true, false},
		{false, false},
	})
	b := mustStack(t, [][]bool{
		{false, true},
		{true, true},
	})

	result, err := Persistence([]*CorrectnessMatrix{a, b}, 2, RankMismatch, nil)
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Strip) != 6 {
		t.Fatalf("strip has %d rows, want 3 per sample = 6", len(result.Strip))
	}
	for i, n := range result.Indices {
		rowA, rowB, sep := result.Strip[3*i], result.Strip[3*i+1], result.Strip[3*i+2]
		for e := 0; e < a.Epochs(); e++ {
			if rowA[e] != a.At(e, n) {
				t.Errorf("strip row %d epoch %d = %v, want %v", 3*i, e, rowA[e], a.At(e, n))
			}
			if rowB[e] != b.At(e, n) {
				t.Errorf("strip row %d epoch %d = %v, want %v", 3*i+1, e, rowB[e], b.At(e, n))
			}
			if sep[e] != -1 {
				t.Errorf("separator row %d epoch %d = %v, want -1", 3*i+2, e, sep[e])
			}
		}
	}
}
