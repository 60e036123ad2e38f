package metrics

import (
	"fmt"

	"github.com/danielpatrickdp/active-learning/internal/dataset"
)

// Report builds a classification report for encoded labels. Averages cover
// the classes present in either yTrue or yPred. An empty input is an error.
func Report(yTrue, yPred []int, enc *dataset.LabelEncoder) (ClassificationReport, error) {
	if len(yTrue) == 0 {
		return ClassificationReport{}, fmt.Errorf("report: %w", dataset.ErrEmptyPartition)
	}
	if len(yPred) != len(yTrue) {
		return ClassificationReport{}, fmt.Errorf("report: %d true labels, %d predictions", len(yTrue), len(yPred))
	}

	k := enc.Len()
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}
	hits := 0
	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		if t < 0 || t >= k || p < 0 || p >= k {
			return ClassificationReport{}, fmt.Errorf("report: %w: true=%d pred=%d", dataset.ErrUnknownLabel, t, p)
		}
		confusion[t][p]++
		if t == p {
			hits++
		}
	}

	labels := enc.Classes()
	rep := ClassificationReport{
		Classes:   make(map[string]ClassMetrics),
		Accuracy:  float64(hits) / float64(len(yTrue)),
		Labels:    labels,
		Confusion: confusion,
	}

	present := 0
	total := 0
	for c := 0; c < k; c++ {
		tp := confusion[c][c]
		support, predicted := 0, 0
		for j := 0; j < k; j++ {
			support += confusion[c][j]
			predicted += confusion[j][c]
		}
		if support == 0 && predicted == 0 {
			continue
		}
		m := ClassMetrics{
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		rep.Classes[labels[c]] = m

		present++
		total += support
		rep.MacroAvg.Precision += m.Precision
		rep.MacroAvg.Recall += m.Recall
		rep.MacroAvg.F1 += m.F1
		w := float64(support)
		rep.WeightedAvg.Precision += w * m.Precision
		rep.WeightedAvg.Recall += w * m.Recall
		rep.WeightedAvg.F1 += w * m.F1
	}

	rep.MacroAvg.Precision /= float64(present)
	rep.MacroAvg.Recall /= float64(present)
	rep.MacroAvg.F1 /= float64(present)
	rep.MacroAvg.Support = total
	rep.WeightedAvg.Precision /= float64(total)
	rep.WeightedAvg.Recall /= float64(total)
	rep.WeightedAvg.F1 /= float64(total)
	rep.WeightedAvg.Support = total
	return rep, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
