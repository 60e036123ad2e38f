package strategy

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/danielpatrickdp/active-learning/internal/classifier"
	"github.com/danielpatrickdp/active-learning/internal/dataset"
)

// #region registry

// Registry lists every built-in strategy family.
var Registry = map[ID]Descriptor{
	Random:               {ID: Random, Description: "uniform sample of the pool"},
	UncertaintyLC:        {ID: UncertaintyLC, Description: "least confident: 1 - max p"},
	UncertaintyMaxMargin: {ID: UncertaintyMaxMargin, Description: "smallest gap between the top two classes"},
	UncertaintyEntropy:   {ID: UncertaintyEntropy, Description: "highest Shannon entropy of p"},
	Boundary:             {ID: Boundary, Description: "closest pairs predicted as different classes"},
	Committee:            {ID: Committee, Description: "highest vote entropy across the committee", Multi: true},
}

// IDs returns the registered IDs in sorted order.
func IDs() []ID {
	out := make([]ID, 0, len(Registry))
	for id := range Registry {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds the strategy for id. rng is only consumed by stochastic strategies.
func New(id ID, rng *rand.Rand) (Strategy, error) {
	switch id {
	case Random:
		if rng == nil {
			return nil, fmt.Errorf("strategy %s: nil random source", id)
		}
		return &randomStrategy{rng: rng}, nil
	case UncertaintyLC:
		return &uncertaintyStrategy{id: id, score: leastConfident}, nil
	case UncertaintyMaxMargin:
		return &uncertaintyStrategy{id: id, score: negMargin}, nil
	case UncertaintyEntropy:
		return &uncertaintyStrategy{id: id, score: entropy}, nil
	case Boundary:
		return &boundaryStrategy{}, nil
	case Committee:
		return &committeeStrategy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, id)
}

// CommitteeSize returns how many classifiers the controller must own for id.
// requested applies to multi-model strategies; zero or less means the default.
func CommitteeSize(id ID, requested int) int {
	if !Registry[id].Multi {
		return 1
	}
	if requested <= 0 {
		return DefaultCommitteeSize
	}
	return requested
}

// #endregion registry

// #region random
type randomStrategy struct {
	rng *rand.Rand
}

func (s *randomStrategy) Name() string { return string(Random) }

func (s *randomStrategy) Select(_ []classifier.Classifier, pool dataset.Partition, n int) ([]int, error) {
	perm := s.rng.Perm(pool.Len())
	return perm[:clamp(n, len(perm))], nil
}

// #endregion random

// #region uncertainty
type uncertaintyStrategy struct {
	id    ID
	score func(row []float64) float64
}

func (s *uncertaintyStrategy) Name() string { return string(s.id) }

func (s *uncertaintyStrategy) Select(committee []classifier.Classifier, pool dataset.Partition, n int) ([]int, error) {
	if len(committee) == 0 {
		return nil, ErrNoCommittee
	}
	if pool.Len() == 0 {
		return nil, nil
	}
	proba := committee[0].PredictProba(pool.X)
	scores := make([]float64, len(proba))
	for i, row := range proba {
		scores[i] = s.score(row)
	}
	return topScores(scores, n), nil
}

func leastConfident(row []float64) float64 {
	best := 0.0
	for _, p := range row {
		if p > best {
			best = p
		}
	}
	return 1 - best
}

// negMargin is higher for rows whose two most likely classes are close.
func negMargin(row []float64) float64 {
	first, second := 0.0, 0.0
	for _, p := range row {
		switch {
		case p > first:
			first, second = p, first
		case p > second:
			second = p
		}
	}
	return -(first - second)
}

func entropy(row []float64) float64 {
	h := 0.0
	for _, p := range row {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

// #endregion uncertainty

// #region boundary
type boundaryStrategy struct{}

func (s *boundaryStrategy) Name() string { return string(Boundary) }

// Select pairs every pool row with its nearest row of a different predicted
// class and takes pairs closest first, both members of each pair. When the
// model predicts a single class everywhere it falls back to least confident.
func (s *boundaryStrategy) Select(committee []classifier.Classifier, pool dataset.Partition, n int) ([]int, error) {
	if len(committee) == 0 {
		return nil, ErrNoCommittee
	}
	m := pool.Len()
	if m == 0 {
		return nil, nil
	}
	pred := committee[0].Predict(pool.X)

	partner := make([]int, m)
	dist := make([]float64, m)
	for i := 0; i < m; i++ {
		partner[i], dist[i] = -1, math.Inf(1)
		for j := 0; j < m; j++ {
			if pred[j] == pred[i] {
				continue
			}
			if d := sqDist(pool.X[i], pool.X[j]); d < dist[i] {
				partner[i], dist[i] = j, d
			}
		}
	}

	order := stableOrder(m, func(a, b int) bool { return dist[a] < dist[b] })
	want := clamp(n, m)
	picked := make([]int, 0, want)
	seen := make(map[int]bool, want)
	take := func(i int) {
		if i >= 0 && !seen[i] && len(picked) < want {
			seen[i] = true
			picked = append(picked, i)
		}
	}
	for _, i := range order {
		if partner[i] < 0 {
			break
		}
		take(i)
		take(partner[i])
	}
	if len(picked) < want {
		proba := committee[0].PredictProba(pool.X)
		scores := make([]float64, m)
		for i, row := range proba {
			scores[i] = leastConfident(row)
		}
		for _, i := range topScores(scores, m) {
			take(i)
		}
	}
	return picked, nil
}

func sqDist(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		x := a[i] - b[i]
		d += x * x
	}
	return d
}

// #endregion boundary

// #region committee
type committeeStrategy struct{}

func (s *committeeStrategy) Name() string { return string(Committee) }

// Select scores each row by the entropy of the committee's votes.
func (s *committeeStrategy) Select(committee []classifier.Classifier, pool dataset.Partition, n int) ([]int, error) {
	if len(committee) == 0 {
		return nil, ErrNoCommittee
	}
	m := pool.Len()
	if m == 0 {
		return nil, nil
	}
	votes := make([]map[int]int, m)
	for i := range votes {
		votes[i] = make(map[int]int)
	}
	for _, member := range committee {
		for i, c := range member.Predict(pool.X) {
			votes[i][c]++
		}
	}
	size := float64(len(committee))
	scores := make([]float64, m)
	for i, v := range votes {
		for _, count := range v {
			p := float64(count) / size
			scores[i] -= p * math.Log(p)
		}
	}
	return topScores(scores, n), nil
}

// #endregion committee

// #region helpers

// topScores returns the positions of the n highest scores. Equal scores keep
// pool order.
func topScores(scores []float64, n int) []int {
	order := stableOrder(len(scores), func(a, b int) bool { return scores[a] > scores[b] })
	return order[:clamp(n, len(order))]
}

func stableOrder(m int, less func(a, b int) bool) []int {
	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return less(order[i], order[j]) })
	return order
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}

// #endregion helpers
