package attempt

import "math/rand"

// sampleInt64s draws k distinct elements uniformly without replacement.
// The result order is the draw order, not the input order. k larger than
// the population returns a permutation of the whole population.
func sampleInt64s(rng *rand.Rand, population []int64, k int) []int64 {
	if k <= 0 {
		return []int64{}
	}
	n := len(population)
	if k > n {
		k = n
	}

	pool := make([]int64, n)
	copy(pool, population)

	// partial Fisher-Yates: after i swaps the first i elements are a
	// uniform sample
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

func shuffleStrings(rng *rand.Rand, values []string) {
	for i := len(values) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		values[i], values[j] = values[j], values[i]
	}
}

// shuffledOptions returns a shuffled copy of options plus the new index of
// the correct option. The correct option is located by value equality, so
// duplicate option text resolves to the first occurrence.
func shuffledOptions(rng *rand.Rand, options []string, correctAnswer int) ([]string, int) {
	shuffled := make([]string, len(options))
	copy(shuffled, options)
	if correctAnswer < 0 || correctAnswer >= len(options) {
		return shuffled, correctAnswer
	}

	correctOption := options[correctAnswer]
	shuffleStrings(rng, shuffled)

	for i, opt := range shuffled {
		if opt == correctOption {
			return shuffled, i
		}
	}
	return shuffled, correctAnswer
}
