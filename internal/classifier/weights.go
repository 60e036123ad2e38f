package classifier

// BalancedWeights returns per-sample weights n / (k * count[y[i]]), where k is
// the number of distinct classes in y. Each class then carries equal total weight.
func BalancedWeights(y []int) []float64 {
	counts := make(map[int]int)
	for _, c := range y {
		counts[c]++
	}
	n := float64(len(y))
	k := float64(len(counts))

	w := make([]float64, len(y))
	for i, c := range y {
		w[i] = n / (k * float64(counts[c]))
	}
	return w
}

// Accuracy returns the share of positions where yPred equals yTrue.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}
