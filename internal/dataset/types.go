package dataset

import "errors"

// #region errors
var (
	// ErrEmptyPartition is returned when a partition that must hold rows is empty.
	ErrEmptyPartition = errors.New("empty partition")
	// ErrInvalidQuery is returned when a query index is out of range or repeated.
	ErrInvalidQuery = errors.New("invalid query index")
	// ErrUnknownLabel is returned when a label is not in the encoder's class set.
	ErrUnknownLabel = errors.New("unknown label")
)

// #endregion errors

// #region partition
// Partition is a co-indexed slice of feature rows, encoded labels and the
// original row identity of each sample.
type Partition struct {
	X      [][]float64
	Y      []int
	RowIDs []int
}

// Len returns the number of rows in the partition.
func (p Partition) Len() int {
	return len(p.Y)
}

// Rows returns a new partition holding the rows at the given positions, in order.
// Feature rows are shared, not copied.
func (p Partition) Rows(idx []int) Partition {
	out := Partition{
		X:      make([][]float64, 0, len(idx)),
		Y:      make([]int, 0, len(idx)),
		RowIDs: make([]int, 0, len(idx)),
	}
	for _, i := range idx {
		out.X = append(out.X, p.X[i])
		out.Y = append(out.Y, p.Y[i])
		out.RowIDs = append(out.RowIDs, p.RowIDs[i])
	}
	return out
}

func (p Partition) concat(other Partition) Partition {
	out := Partition{
		X:      make([][]float64, 0, p.Len()+other.Len()),
		Y:      make([]int, 0, p.Len()+other.Len()),
		RowIDs: make([]int, 0, p.Len()+other.Len()),
	}
	out.X = append(append(out.X, p.X...), other.X...)
	out.Y = append(append(out.Y, p.Y...), other.Y...)
	out.RowIDs = append(append(out.RowIDs, p.RowIDs...), other.RowIDs...)
	return out
}

// #endregion partition

// #region divide-config
// DivideConfig controls how a raw table is split into partitions.
type DivideConfig struct {
	// TestFraction is the share of all rows held out as the test partition.
	TestFraction float64 `yaml:"test_fraction" validate:"gt=0,lt=1"`
	// StartSetSize is the share of the remaining training rows that start labeled.
	StartSetSize float64 `yaml:"start_set_size" validate:"gt=0,lt=1"`
}

// DefaultDivideConfig returns a 50/50 train/test split with a 10% labeled start set.
func DefaultDivideConfig() DivideConfig {
	return DivideConfig{
		TestFraction: 0.5,
		StartSetSize: 0.1,
	}
}

// #endregion divide-config
