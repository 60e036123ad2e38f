package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// #region dataset
// Dataset holds the labeled, unlabeled and test partitions of one run together
// with the label encoder. Labels of the unlabeled partition are hidden from
// the model and only revealed by Migrate.
type Dataset struct {
	Labeled   Partition
	Unlabeled Partition
	Test      Partition
	Encoder   *LabelEncoder
}

// New builds a dataset from pre-split partitions, checking co-indexing.
func New(enc *LabelEncoder, labeled, unlabeled, test Partition) (*Dataset, error) {
	if enc == nil {
		return nil, fmt.Errorf("new dataset: nil label encoder")
	}
	for name, p := range map[string]Partition{"labeled": labeled, "unlabeled": unlabeled, "test": test} {
		if len(p.X) != len(p.Y) || len(p.RowIDs) != len(p.Y) {
			return nil, fmt.Errorf("%s partition: X=%d Y=%d rows=%d not co-indexed", name, len(p.X), len(p.Y), len(p.RowIDs))
		}
		for _, y := range p.Y {
			if y < 0 || y >= enc.Len() {
				return nil, fmt.Errorf("%s partition: %w: class index %d", name, ErrUnknownLabel, y)
			}
		}
	}
	return &Dataset{
		Labeled:   labeled,
		Unlabeled: unlabeled,
		Test:      test,
		Encoder:   enc,
	}, nil
}

// Total returns the number of samples across all three partitions.
func (d *Dataset) Total() int {
	return d.Labeled.Len() + d.Unlabeled.Len() + d.Test.Len()
}

// #endregion dataset

// #region migrate
// Migrate moves the rows at the given positions of the unlabeled partition to
// the end of the labeled partition and returns them. Indices are validated
// before anything is touched: on error both partitions are unchanged.
func (d *Dataset) Migrate(indices []int) (Partition, error) {
	n := d.Unlabeled.Len()
	picked := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= n {
			return Partition{}, fmt.Errorf("%w: %d out of range [0,%d)", ErrInvalidQuery, i, n)
		}
		if picked[i] {
			return Partition{}, fmt.Errorf("%w: %d selected twice", ErrInvalidQuery, i)
		}
		picked[i] = true
	}

	query := d.Unlabeled.Rows(indices)

	keep := make([]int, 0, n-len(indices))
	for i := 0; i < n; i++ {
		if !picked[i] {
			keep = append(keep, i)
		}
	}
	remaining := d.Unlabeled.Rows(keep)

	d.Labeled = d.Labeled.concat(query)
	d.Unlabeled = remaining
	return query, nil
}

// #endregion migrate

// #region divide
// Divide shuffles the rows with rng and splits them into test, labeled start
// set and unlabeled pool. Row identity is the row's position in features.
func Divide(features [][]float64, labels []string, cfg DivideConfig, rng *rand.Rand) (*Dataset, error) {
	n := len(features)
	if n == 0 || len(labels) != n {
		return nil, fmt.Errorf("divide: %d feature rows, %d labels", n, len(labels))
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		return nil, fmt.Errorf("divide: test fraction %.3f not in (0,1)", cfg.TestFraction)
	}
	if cfg.StartSetSize <= 0 || cfg.StartSetSize >= 1 {
		return nil, fmt.Errorf("divide: start set size %.3f not in (0,1)", cfg.StartSetSize)
	}

	enc := NewLabelEncoder(labels)
	y, err := enc.Transform(labels)
	if err != nil {
		return nil, fmt.Errorf("divide: %w", err)
	}
	all := Partition{X: features, Y: y, RowIDs: make([]int, n)}
	for i := range all.RowIDs {
		all.RowIDs[i] = i
	}

	perm := rng.Perm(n)
	nTest := ceilCount(float64(n) * cfg.TestFraction)
	nTrain := n - nTest
	nStart := ceilCount(float64(nTrain) * cfg.StartSetSize)
	if nTest == 0 || nStart == 0 || nTrain-nStart == 0 {
		return nil, fmt.Errorf("divide: %w: %d rows give test=%d labeled=%d unlabeled=%d",
			ErrEmptyPartition, n, nTest, nStart, nTrain-nStart)
	}

	return New(enc,
		all.Rows(perm[nTest:nTest+nStart]),
		all.Rows(perm[nTest+nStart:]),
		all.Rows(perm[:nTest]),
	)
}

// ceilCount rounds a fractional row count up, ignoring float noise such as
// 0.1*30 = 3.0000000000000004.
func ceilCount(v float64) int {
	return int(math.Ceil(v - 1e-9))
}

// #endregion divide
