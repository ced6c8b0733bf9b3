package ml

import (
	"fmt"
	"sort"
)

// LabelEncoder maps each category onto its index in the sorted class list.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// FitLabelEncoder collects the distinct values and freezes their order.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, 8)
	for _, v := range values {
		seen[v] = struct{}{}
	}

	classes := make([]string, 0, len(seen))
	for v := range seen {
		classes = append(classes, v)
	}
	sort.Strings(classes)

	return &LabelEncoder{Classes: classes}
}

// Transform returns the code of value or ErrUnknownCategory.
func (e *LabelEncoder) Transform(value string) (int, error) {
	i := sort.SearchStrings(e.Classes, value)
	if i < len(e.Classes) && e.Classes[i] == value {
		return i, nil
	}

	return 0, fmt.Errorf("%w: %q (known: %v)", ErrUnknownCategory, value, e.Classes)
}

// EncoderSet holds one encoder per categorical column.
type EncoderSet map[string]*LabelEncoder

// Transform encodes value for column col.
func (s EncoderSet) Transform(col, value string) (int, error) {
	enc, ok := s[col]
	if !ok {
		return 0, fmt.Errorf("%w: no encoder for column %s", ErrArtifactMismatch, col)
	}

	code, err := enc.Transform(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}

	return code, nil
}

// Classes lists the known values per column, used to populate the form.
func (s EncoderSet) Classes() map[string][]string {
	out := make(map[string][]string, len(s))
	for col, enc := range s {
		out[col] = append([]string(nil), enc.Classes...)
	}

	return out
}
