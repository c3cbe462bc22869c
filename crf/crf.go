// Package crf holds a first-order linear-chain Conditional Random Field and
// exposes it to the sequences inference engine.
package crf

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is returned for a model whose weights do not match its
// alphabets.
var ErrInvalidModel = errors.New("crf: invalid model")

// Alphabet maps between string labels/attributes and integer IDs.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// NewAlphabet creates an alphabet holding entries in order.
func NewAlphabet(entries ...string) *Alphabet {
	a := &Alphabet{ToID: make(map[string]int)}
	for _, s := range entries {
		a.Add(s)
	}
	return a
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Label returns the string for id, or "" when id is out of range.
func (a *Alphabet) Label(id int) string {
	if id < 0 || id >= len(a.ToStr) {
		return ""
	}
	return a.ToStr[id]
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}

// Model holds the CRF parameters.
//
// Weight layout: state weights first, indexed attrID*NumLabels + labelID,
// then the NumLabels x NumLabels transition block indexed
// TransOffset() + from*NumLabels + to.
type Model struct {
	Labels     *Alphabet `json:"labels"`
	Attributes *Alphabet `json:"attributes"`
	Weights    []float64 `json:"weights"`
	NumLabels  int       `json:"num_labels"`
}

// NewModel creates a model over labels and attributes with zero weights.
func NewModel(labels, attributes *Alphabet) *Model {
	if labels == nil {
		labels = NewAlphabet()
	}
	if attributes == nil {
		attributes = NewAlphabet()
	}
	m := &Model{Labels: labels, Attributes: attributes, NumLabels: labels.Size()}
	m.Weights = make([]float64, m.NumWeights())
	return m
}

// TransOffset returns the offset where transition features start in the weight vector.
func (m *Model) TransOffset() int {
	return m.Attributes.Size() * m.NumLabels
}

// NumWeights returns the total number of weights.
func (m *Model) NumWeights() int {
	return m.TransOffset() + m.NumLabels*m.NumLabels
}

// StateFeatureIndex returns the weight index for a state feature.
func (m *Model) StateFeatureIndex(attrID, labelID int) int {
	return attrID*m.NumLabels + labelID
}

// TransFeatureIndex returns the weight index for a transition feature.
func (m *Model) TransFeatureIndex(fromLabelID, toLabelID int) int {
	return m.TransOffset() + fromLabelID*m.NumLabels + toLabelID
}

// Validate checks that the alphabets and weight vector agree.
func (m *Model) Validate() error {
	if m.Labels == nil || m.Attributes == nil {
		return fmt.Errorf("%w: missing alphabet", ErrInvalidModel)
	}
	if m.NumLabels < 1 || m.NumLabels != m.Labels.Size() {
		return fmt.Errorf("%w: num_labels %d, label alphabet has %d", ErrInvalidModel, m.NumLabels, m.Labels.Size())
	}
	if len(m.Weights) != m.NumWeights() {
		return fmt.Errorf("%w: %d weights, want %d", ErrInvalidModel, len(m.Weights), m.NumWeights())
	}
	return nil
}

// StateScores computes state feature scores for each position and label.
// Returns a [T][L] matrix; unknown attributes are ignored. m must be valid.
func (m *Model) StateScores(attrs []map[string]float64) [][]float64 {
	L := m.NumLabels
	scores := make([][]float64, len(attrs))
	for t, feats := range attrs {
		scores[t] = make([]float64, L)
		for attr, val := range feats {
			attrID := m.Attributes.Get(attr)
			if attrID < 0 {
				continue
			}
			row := m.Weights[m.StateFeatureIndex(attrID, 0):m.StateFeatureIndex(attrID, L)]
			for y, w := range row {
				scores[t][y] += w * val
			}
		}
	}
	return scores
}

// TransScores returns the [L][L] transition score matrix. Rows share
// storage with Weights.
func (m *Model) TransScores() [][]float64 {
	L := m.NumLabels
	trans := make([][]float64, L)
	for from := range L {
		trans[from] = m.Weights[m.TransFeatureIndex(from, 0):m.TransFeatureIndex(from, L)]
	}
	return trans
}
