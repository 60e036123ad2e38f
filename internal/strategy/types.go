package strategy

import (
	"errors"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/dataset"
)

var (
	// ErrUnknownStrategy is returned by New for an unregistered ID.
	ErrUnknownStrategy = errors.New("unknown query strategy")
	// ErrNoCommittee is returned when Select is called without a classifier.
	ErrNoCommittee = errors.New("strategy needs at least one classifier")
)

// DefaultCommitteeSize is used by the committee strategy when none is configured.
const DefaultCommitteeSize = 3

// #region ids
// ID names a query strategy family.
type ID string

const (
	Random               ID = "random"
	UncertaintyLC        ID = "uncertainty_lc"
	UncertaintyMaxMargin ID = "uncertainty_max_margin"
	UncertaintyEntropy   ID = "uncertainty_entropy"
	Boundary             ID = "boundary"
	Committee            ID = "committee"
)

// #endregion ids

// #region strategy
// Strategy picks rows of the unlabeled pool for the oracle to label.
//
// Select receives the full committee owned by the controller; single-model
// strategies only look at committee[0]. The returned indices are positions
// in pool, distinct, and at most n long. Fewer than n are returned only when
// the pool itself is smaller.
type Strategy interface {
	Name() string
	Select(committee []classifier.Classifier, pool dataset.Partition, n int) ([]int, error)
}

// Descriptor is the registry entry for one strategy family.
type Descriptor struct {
	ID          ID
	Description string
	// Multi reports whether the strategy wants a committee of several models.
	Multi bool
}

// #endregion strategy
