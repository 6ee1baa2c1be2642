package attempt

import (
	"math/rand"
	"testing"
)

func TestSampleInt64s(t *testing.T) {
	population := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	tests := []struct {
		name    string
		k       int
		wantLen int
	}{
		{name: "subset", k: 4, wantLen: 4},
		{name: "whole population", k: 10, wantLen: 10},
		{name: "k exceeds population", k: 25, wantLen: 10},
		{name: "zero", k: 0, wantLen: 0},
		{name: "negative", k: -3, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(42))
			got := sampleInt64s(rng, population, tt.k)
			if len(got) != tt.wantLen {
				t.Fatalf("expected %d elements, got %d", tt.wantLen, len(got))
			}

			seen := make(map[int64]bool, len(got))
			valid := make(map[int64]bool, len(population))
			for _, v := range population {
				valid[v] = true
			}
			for _, v := range got {
				if seen[v] {
					t.Fatalf("duplicate element %d in sample", v)
				}
				if !valid[v] {
					t.Fatalf("element %d not in population", v)
				}
				seen[v] = true
			}
		})
	}
}

func TestSampleInt64sDoesNotMutatePopulation(t *testing.T) {
	population := []int64{1, 2, 3, 4, 5}
	rng := rand.New(rand.NewSource(7))
	sampleInt64s(rng, population, 3)

	for i, want := range []int64{1, 2, 3, 4, 5} {
		if population[i] != want {
			t.Fatalf("population mutated at index %d: got %d, want %d", i, population[i], want)
		}
	}
}

func TestSampleInt64sVaries(t *testing.T) {
	population := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	first := sampleInt64s(rand.New(rand.NewSource(1)), population, 5)
	second := sampleInt64s(rand.New(rand.NewSource(2)), population, 5)

	same := true
	for i := range first {
		if first[i] != second[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected different seeds to produce different samples")
	}
}

func TestShuffledOptionsRemapsCorrectIndex(t *testing.T) {
	options := []string{"red", "green", "blue", "yellow"}

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		shuffled, correct := shuffledOptions(rng, options, 2)

		if len(shuffled) != len(options) {
			t.Fatalf("seed %d: expected %d options, got %d", seed, len(options), len(shuffled))
		}
		if correct < 0 || correct >= len(shuffled) {
			t.Fatalf("seed %d: correct index %d out of range", seed, correct)
		}
		if shuffled[correct] != "blue" {
			t.Fatalf("seed %d: expected correct option %q, got %q", seed, "blue", shuffled[correct])
		}
	}
}

func TestShuffledOptionsDuplicateTextFirstOccurrence(t *testing.T) {
	// duplicate option text resolves to the first occurrence, so the
	// remapped answer always points at some copy of the correct text
	options := []string{"same", "same", "other"}
	rng := rand.New(rand.NewSource(3))

	shuffled, correct := shuffledOptions(rng, options, 1)
	if shuffled[correct] != "same" {
		t.Fatalf("expected remapped option %q, got %q", "same", shuffled[correct])
	}
}

func TestShuffledOptionsOutOfRangeCorrect(t *testing.T) {
	options := []string{"a", "b"}
	rng := rand.New(rand.NewSource(1))

	_, correct := shuffledOptions(rng, options, 9)
	if correct != 9 {
		t.Fatalf("expected out-of-range index passed through, got %d", correct)
	}
}

func TestShuffledOptionsDoesNotMutateInput(t *testing.T) {
	options := []string{"a", "b", "c", "d"}
	rng := rand.New(rand.NewSource(5))
	shuffledOptions(rng, options, 0)

	for i, want := range []string{"a", "b", "c", "d"} {
		if options[i] != want {
			t.Fatalf("input mutated at index %d: got %q, want %q", i, options[i], want)
		}
	}
}
