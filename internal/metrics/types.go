package metrics

import (
	"encoding/json"
	"errors"
	"math"
	"time"
)

// ErrOutOfOrder is returned when a record is appended with the wrong cycle number.
var ErrOutOfOrder = errors.New("cycle record out of order")

// #region report
// ClassMetrics is the per-class slice of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// ClassificationReport mirrors the usual precision/recall/F1 table plus the
// confusion matrix. Confusion rows are true classes and columns predicted
// classes, both in label encoder order (Labels).
type ClassificationReport struct {
	Classes     map[string]ClassMetrics `json:"classes"`
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg"`
	Labels      []string                `json:"labels"`
	Confusion   [][]int                 `json:"confusion_matrix"`
}

// Clone returns a report that shares no maps or slices with r.
func (r ClassificationReport) Clone() ClassificationReport {
	out := r
	if r.Classes != nil {
		out.Classes = make(map[string]ClassMetrics, len(r.Classes))
		for k, v := range r.Classes {
			out.Classes[k] = v
		}
	}
	if r.Labels != nil {
		out.Labels = append([]string(nil), r.Labels...)
	}
	if r.Confusion != nil {
		out.Confusion = make([][]int, len(r.Confusion))
		for i, row := range r.Confusion {
			out.Confusion[i] = append([]int(nil), row...)
		}
	}
	return out
}

// #endregion report

// #region cycle-record
// CycleRecord is the immutable ledger entry for one completed cycle.
type CycleRecord struct {
	Cycle                  int                  `json:"cycle"`
	Test                   ClassificationReport `json:"test_data_metrics"`
	Labeled                ClassificationReport `json:"train_labeled_data_metrics"`
	Unlabeled              ClassificationReport `json:"train_unlabeled_data_metrics"`
	QueryClassDistribution map[string]int       `json:"train_unlabeled_class_distribution"`
	QueryLength            int                  `json:"query_length"`
	QueryAccuracy          float64              `json:"query_accuracy"`
	StopAccuracy           float64              `json:"stop_accuracy"`
	StopStdDev             float64              `json:"stop_stddev"`
	StopCertainty          float64              `json:"stop_certainty"`
	LabeledSize            int                  `json:"labeled_size"`
	UnlabeledSize          int                  `json:"unlabeled_size"`
	Duration               time.Duration        `json:"duration_ns"`
}

// Clone returns a deep copy of r.
func (r CycleRecord) Clone() CycleRecord {
	out := r
	out.Test = r.Test.Clone()
	out.Labeled = r.Labeled.Clone()
	out.Unlabeled = r.Unlabeled.Clone()
	if r.QueryClassDistribution != nil {
		out.QueryClassDistribution = make(map[string]int, len(r.QueryClassDistribution))
		for k, v := range r.QueryClassDistribution {
			out.QueryClassDistribution[k] = v
		}
	}
	return out
}

type recordAlias CycleRecord

type recordJSON struct {
	recordAlias
	QueryAccuracy *float64 `json:"query_accuracy"`
	StopAccuracy  *float64 `json:"stop_accuracy"`
	StopStdDev    *float64 `json:"stop_stddev"`
	StopCertainty *float64 `json:"stop_certainty"`
}

// MarshalJSON writes NaN signals (stddev before the window fills) as null.
func (r CycleRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		recordAlias:   recordAlias(r),
		QueryAccuracy: nullable(r.QueryAccuracy),
		StopAccuracy:  nullable(r.StopAccuracy),
		StopStdDev:    nullable(r.StopStdDev),
		StopCertainty: nullable(r.StopCertainty),
	})
}

// UnmarshalJSON reads null signals back as NaN.
func (r *CycleRecord) UnmarshalJSON(data []byte) error {
	var aux recordJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = CycleRecord(aux.recordAlias)
	r.QueryAccuracy = orNaN(aux.QueryAccuracy)
	r.StopAccuracy = orNaN(aux.StopAccuracy)
	r.StopStdDev = orNaN(aux.StopStdDev)
	r.StopCertainty = orNaN(aux.StopCertainty)
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// #endregion cycle-record

// #region summary
// Summary aggregates one ledger column, ignoring NaN entries.
type Summary struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
	Last  float64
}

// #endregion summary
