package stopping

import (
	"errors"
	"math"
	"testing"
)

// #region helpers
// fixedClassifier returns canned predictions with columns in a chosen order.
type fixedClassifier struct {
	classes []int
	pred    []int
	proba   [][]float64
}

func (f *fixedClassifier) Fit([][]float64, []int, []float64) error { return nil }
func (f *fixedClassifier) Predict([][]float64) []int               { return f.pred }
func (f *fixedClassifier) PredictProba([][]float64) [][]float64    { return f.proba }
func (f *fixedClassifier) Classes() []int                          { return f.classes }

// #endregion helpers

// #region accuracy-tests
func TestAccuracy_EchoesLast(t *testing.T) {
	if got := Accuracy([]float64{0.2, 0.9}); got != 0.9 {
		t.Errorf("expected 0.9, got %f", got)
	}
	if got := Accuracy(nil); !math.IsNaN(got) {
		t.Errorf("expected NaN on empty history, got %f", got)
	}
}

// #endregion accuracy-tests

// #region stddev-tests
func TestStdDev_Windowing(t *testing.T) {
	history := []float64{0.1, 0.5, 0.5, 0.5, 0.5, 0.5, 0.7}

	for i := 1; i < DefaultWindow; i++ {
		if got := StdDev(history[:i], DefaultWindow); !math.IsNaN(got) {
			t.Errorf("cycle %d: expected NaN, got %f", i, got)
		}
	}

	// first five: mean 0.42, population variance 0.0256
	if got := StdDev(history[:5], DefaultWindow); math.Abs(got-0.16) > 1e-9 {
		t.Errorf("expected 0.16, got %f", got)
	}
	// last five of six are constant
	if got := StdDev(history[:6], DefaultWindow); math.Abs(got) > 1e-12 {
		t.Errorf("expected 0, got %f", got)
	}
	// window slides: [0.5 0.5 0.5 0.5 0.7] -> mean 0.54, var 0.0064
	if got := StdDev(history, DefaultWindow); math.Abs(got-0.08) > 1e-9 {
		t.Errorf("expected 0.08, got %f", got)
	}
}

func TestStdDev_NonPositiveWindow(t *testing.T) {
	if got := StdDev([]float64{1, 2}, 0); !math.IsNaN(got) {
		t.Errorf("expected NaN for k=0, got %f", got)
	}
}

// #endregion stddev-tests

// #region certainty-tests
func TestCertainty_Minimum(t *testing.T) {
	pred := []int{0, 1, 0}
	proba := [][]float64{{0.9, 0.1}, {0.4, 0.6}, {0.7, 0.3}}
	got, err := Certainty(pred, proba, []int{0, 1})
	if err != nil {
		t.Fatalf("Certainty: %v", err)
	}
	if got != 0.6 {
		t.Errorf("expected 0.6, got %f", got)
	}
}

func TestCertainty_RemapsColumns(t *testing.T) {
	// Classifier saw class 2 first: column 0 is class 2, column 2 is class 0.
	classes := []int{2, 1, 0}
	pred := []int{0, 2}
	proba := [][]float64{
		{0.05, 0.15, 0.80}, // class 0 at column 2
		{0.55, 0.25, 0.20}, // class 2 at column 0
	}
	got, err := Certainty(pred, proba, classes)
	if err != nil {
		t.Fatalf("Certainty: %v", err)
	}
	if got != 0.55 {
		t.Errorf("expected 0.55 from remapped columns, got %f (position-indexing would give 0.05)", got)
	}
	if got < 0 || got > 1 {
		t.Errorf("certainty %f outside [0,1]", got)
	}
}

func TestCertainty_UnknownClass(t *testing.T) {
	_, err := Certainty([]int{3}, [][]float64{{1}}, []int{0})
	if !errors.Is(err, ErrUnknownClass) {
		t.Fatalf("expected ErrUnknownClass, got %v", err)
	}
}

func TestCertainty_EmptyPool(t *testing.T) {
	_, err := Certainty(nil, nil, []int{0})
	if !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

// #endregion certainty-tests

// #region evaluate-tests
func TestEvaluate_Independent(t *testing.T) {
	clf := &fixedClassifier{
		classes: []int{1, 0},
		pred:    []int{1, 0},
		proba:   [][]float64{{0.7, 0.3}, {0.1, 0.9}},
	}
	sig, err := Evaluate([]float64{0.4, 0.6}, DefaultWindow, clf, [][]float64{{0}, {1}})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if sig.Accuracy != 0.6 {
		t.Errorf("expected accuracy 0.6, got %f", sig.Accuracy)
	}
	if !math.IsNaN(sig.StdDev) {
		t.Errorf("expected NaN stddev, got %f", sig.StdDev)
	}
	if sig.Certainty != 0.7 {
		t.Errorf("expected certainty 0.7, got %f", sig.Certainty)
	}
}

func TestEvaluate_EmptyPool(t *testing.T) {
	_, err := Evaluate([]float64{1}, DefaultWindow, &fixedClassifier{}, nil)
	if !errors.Is(err, ErrEmptyPool) {
		t.Fatalf("expected ErrEmptyPool, got %v", err)
	}
}

// #endregion evaluate-tests

// #region rule-tests
func TestRule_FirstCycle(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name   string
		rule   Rule
		values []float64
		want   int
	}{
		{"accuracy-fires", Rule{CriterionAccuracy, 0.9}, []float64{0.5, 0.95, 1}, 1},
		{"accuracy-never", Rule{CriterionAccuracy, 0.99}, []float64{0.5, 0.9}, -1},
		{"stddev-skips-nan", Rule{CriterionStdDev, 0.05}, []float64{nan, nan, 0.2, 0.01}, 3},
		{"certainty-fires", Rule{CriterionCertainty, 0.6}, []float64{0.6}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rule.FirstCycle(tt.values)
			if err != nil {
				t.Fatalf("FirstCycle: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestRule_UnknownCriterion(t *testing.T) {
	if _, err := (Rule{Criterion: "bogus"}).FirstCycle(nil); err == nil {
		t.Fatal("expected error for unknown criterion")
	}
}

// #endregion rule-tests
