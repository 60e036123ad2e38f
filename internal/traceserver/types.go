package traceserver

import (
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/active-learning/internal/trace"
)

// #region types
// RunInfo is the wire view of a persisted run.
type RunInfo struct {
	RunID               string
	Key                 string
	Strategy            string
	StartSize           float64
	QueriesPerIteration int
	Seed                int64
	Requested           int
	Cycles              int
	StopReason          string
	Status              string
	Error               string
	CreatedAt           time.Time
	FitTime             time.Duration
	TestAccuracy        float64 // NaN until a cycle completes
	UnlabeledAccuracy   float64
}

// CycleInfo is the wire view of one ledger record. Undefined signals are NaN.
type CycleInfo struct {
	Cycle         int
	QueryLength   int
	QueryAccuracy float64
	TestAccuracy  float64
	StopAccuracy  float64
	StopStdDev    float64
	StopCertainty float64
	LabeledSize   int
	UnlabeledSize int
}

// RunDetail is a run plus its ledger.
type RunDetail struct {
	RunInfo
	Ledger []CycleInfo
}

// #endregion types

// #region encode
func runFields(rec trace.RunRecord) map[string]interface{} {
	return map[string]interface{}{
		"run_id":                rec.RunID,
		"key":                   rec.Key,
		"strategy":              rec.Strategy,
		"start_size":            rec.StartSize,
		"queries_per_iteration": rec.QueriesPerIteration,
		"seed":                  float64(rec.Seed),
		"requested":             rec.Requested,
		"cycles":                rec.Cycles,
		"stop_reason":           rec.StopReason,
		"status":                rec.Status,
		"error":                 rec.Error,
		"created_at":            rec.CreatedAt.Format(time.RFC3339Nano),
		"fit_time_ns":           float64(rec.FitTime),
		"test_accuracy":         number(rec.TestAccuracy),
		"unlabeled_accuracy":    number(rec.UnlabeledAccuracy),
	}
}

func ledgerFields(rec trace.RunRecord) []interface{} {
	if rec.Ledger == nil {
		return []interface{}{}
	}
	recs := rec.Ledger.Records()
	out := make([]interface{}, len(recs))
	for i, r := range recs {
		out[i] = map[string]interface{}{
			"cycle":          r.Cycle,
			"query_length":   r.QueryLength,
			"query_accuracy": number(r.QueryAccuracy),
			"test_accuracy":  number(r.Test.Accuracy),
			"stop_accuracy":  number(r.StopAccuracy),
			"stop_stddev":    number(r.StopStdDev),
			"stop_certainty": number(r.StopCertainty),
			"labeled_size":   r.LabeledSize,
			"unlabeled_size": r.UnlabeledSize,
		}
	}
	return out
}

// number maps NaN to null.
func number(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// #endregion encode

// #region decode
func decodeRun(s *structpb.Struct) RunInfo {
	f := s.GetFields()
	created, _ := time.Parse(time.RFC3339Nano, f["created_at"].GetStringValue())
	return RunInfo{
		RunID:               f["run_id"].GetStringValue(),
		Key:                 f["key"].GetStringValue(),
		Strategy:            f["strategy"].GetStringValue(),
		StartSize:           f["start_size"].GetNumberValue(),
		QueriesPerIteration: int(f["queries_per_iteration"].GetNumberValue()),
		Seed:                int64(f["seed"].GetNumberValue()),
		Requested:           int(f["requested"].GetNumberValue()),
		Cycles:              int(f["cycles"].GetNumberValue()),
		StopReason:          f["stop_reason"].GetStringValue(),
		Status:              f["status"].GetStringValue(),
		Error:               f["error"].GetStringValue(),
		CreatedAt:           created,
		FitTime:             time.Duration(f["fit_time_ns"].GetNumberValue()),
		TestAccuracy:        orNaN(f["test_accuracy"]),
		UnlabeledAccuracy:   orNaN(f["unlabeled_accuracy"]),
	}
}

func decodeCycle(s *structpb.Struct) CycleInfo {
	f := s.GetFields()
	return CycleInfo{
		Cycle:         int(f["cycle"].GetNumberValue()),
		QueryLength:   int(f["query_length"].GetNumberValue()),
		QueryAccuracy: orNaN(f["query_accuracy"]),
		TestAccuracy:  orNaN(f["test_accuracy"]),
		StopAccuracy:  orNaN(f["stop_accuracy"]),
		StopStdDev:    orNaN(f["stop_stddev"]),
		StopCertainty: orNaN(f["stop_certainty"]),
		LabeledSize:   int(f["labeled_size"].GetNumberValue()),
		UnlabeledSize: int(f["unlabeled_size"].GetNumberValue()),
	}
}

func orNaN(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return math.NaN()
}

// #endregion decode
