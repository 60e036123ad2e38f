package dataset

import (
	"fmt"
	"sort"
)

// #region encoder
// LabelEncoder maps label values to contiguous class indices. Classes are kept
// in sorted order; the index of a label in Classes() is its encoded value.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder fits an encoder on the distinct values of labels.
func NewLabelEncoder(labels []string) *LabelEncoder {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for l := range set {
		classes = append(classes, l)
	}
	sort.Strings(classes)

	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &LabelEncoder{classes: classes, index: index}
}

// Classes returns the canonical label ordering.
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// Len returns the number of classes.
func (e *LabelEncoder) Len() int {
	return len(e.classes)
}

// Index returns the encoded value of label.
func (e *LabelEncoder) Index(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return i, nil
}

// Label returns the label value for an encoded class.
func (e *LabelEncoder) Label(class int) (string, error) {
	if class < 0 || class >= len(e.classes) {
		return "", fmt.Errorf("%w: class index %d", ErrUnknownLabel, class)
	}
	return e.classes[class], nil
}

// Transform encodes a slice of labels.
func (e *LabelEncoder) Transform(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		c, err := e.Index(l)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// InverseTransform decodes a slice of class indices.
func (e *LabelEncoder) InverseTransform(classes []int) ([]string, error) {
	out := make([]string, len(classes))
	for i, c := range classes {
		l, err := e.Label(c)
		if err != nil {
			return nil, err
		}
		out[i] = l
	}
	return out, nil
}

// #endregion encoder
