package metrics

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// #region ledger
// Ledger is the append-only sequence of cycle records for one run.
type Ledger struct {
	records []CycleRecord
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Append stores a deep copy of the record for the next cycle. rec.Cycle
// must equal Len().
func (l *Ledger) Append(rec CycleRecord) error {
	if rec.Cycle != len(l.records) {
		return fmt.Errorf("%w: got cycle %d, want %d", ErrOutOfOrder, rec.Cycle, len(l.records))
	}
	l.records = append(l.records, rec.Clone())
	return nil
}

// Len returns the number of completed cycles recorded.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns deep copies of all records in cycle order.
func (l *Ledger) Records() []CycleRecord {
	out := make([]CycleRecord, len(l.records))
	for i, r := range l.records {
		out[i] = r.Clone()
	}
	return out
}

// Last returns a copy of the most recent record.
func (l *Ledger) Last() (CycleRecord, bool) {
	if len(l.records) == 0 {
		return CycleRecord{}, false
	}
	return l.records[len(l.records)-1].Clone(), true
}

// History returns the per-cycle query accuracies.
func (l *Ledger) History() []float64 {
	out, _ := l.Column("query_accuracy")
	return out
}

// Column extracts one scalar series by its JSON name.
func (l *Ledger) Column(name string) ([]float64, error) {
	var get func(CycleRecord) float64
	switch name {
	case "query_accuracy":
		get = func(r CycleRecord) float64 { return r.QueryAccuracy }
	case "stop_accuracy":
		get = func(r CycleRecord) float64 { return r.StopAccuracy }
	case "stop_stddev":
		get = func(r CycleRecord) float64 { return r.StopStdDev }
	case "stop_certainty":
		get = func(r CycleRecord) float64 { return r.StopCertainty }
	case "test_accuracy":
		get = func(r CycleRecord) float64 { return r.Test.Accuracy }
	case "query_length":
		get = func(r CycleRecord) float64 { return float64(r.QueryLength) }
	default:
		return nil, fmt.Errorf("unknown ledger column %q", name)
	}
	out := make([]float64, len(l.records))
	for i, r := range l.records {
		out[i] = get(r)
	}
	return out, nil
}

// MarshalJSON serializes the whole ledger as an array of records.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Records())
}

// UnmarshalJSON restores a ledger, checking that cycles are contiguous.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var recs []CycleRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return err
	}
	fresh := NewLedger()
	for _, r := range recs {
		if err := fresh.Append(r); err != nil {
			return err
		}
	}
	*l = *fresh
	return nil
}

// #endregion ledger

// #region summarize
// Summarize aggregates a column, skipping NaN values.
func Summarize(values []float64) Summary {
	var clean []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		nan := math.NaN()
		return Summary{Mean: nan, Min: nan, Max: nan, Last: nan}
	}
	mean, _ := stats.Mean(clean)
	lo, _ := stats.Min(clean)
	hi, _ := stats.Max(clean)
	return Summary{
		Count: len(clean),
		Mean:  mean,
		Min:   lo,
		Max:   hi,
		Last:  clean[len(clean)-1],
	}
}

// #endregion summarize
