package model

import (
	"fmt"
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Node is a split of the form "x[FeatureIndex] < Threshold ?" in a tree.
type Node struct {
	FeatureIndex int     `json:"feature_index"`
	Threshold    float64 `json:"threshold"`
	LeftChild    int     `json:"left_child"`
	LeftIsLeaf   bool    `json:"left_is_leaf"`
	RightChild   int     `json:"right_child"`
	RightIsLeaf  bool    `json:"right_is_leaf"`
}

// Tree is a flat decision tree. Leaf indices address Outputs, which hold
// the fraud probability of each leaf.
type Tree struct {
	Nodes   []Node    `json:"nodes"`
	Outputs []float64 `json:"outputs"`
	Depth   int       `json:"depth"`
}

// Forest is a random forest classifier: the fraud probability is the mean
// of the per-tree leaf probabilities.
type Forest struct {
	Trees []Tree `json:"trees"`

	features []string
}

func (t *Tree) validate(numFeatures int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if t.Depth <= 0 {
		return fmt.Errorf("tree depth must be > 0")
	}
	for i, o := range t.Outputs {
		if math.IsNaN(o) || o < 0 || o > 1 {
			return fmt.Errorf("leaf %d output %v outside [0,1]", i, o)
		}
	}
	for i, n := range t.Nodes {
		if n.FeatureIndex < 0 || n.FeatureIndex >= numFeatures {
			return fmt.Errorf("node %d feature index %d out of range [0,%d)", i, n.FeatureIndex, numFeatures)
		}
		if err := t.checkChild(n.LeftChild, n.LeftIsLeaf); err != nil {
			return fmt.Errorf("node %d left: %w", i, err)
		}
		if err := t.checkChild(n.RightChild, n.RightIsLeaf); err != nil {
			return fmt.Errorf("node %d right: %w", i, err)
		}
	}
	return nil
}

func (t *Tree) checkChild(idx int, leaf bool) error {
	limit := len(t.Nodes)
	if leaf {
		limit = len(t.Outputs)
	}
	if idx < 0 || idx >= limit {
		return fmt.Errorf("child index %d out of range [0,%d)", idx, limit)
	}
	return nil
}

// leaf drops x down the tree and returns the index of the leaf it ends in.
func (t *Tree) leaf(x []float64) (int, error) {
	cur := t.Nodes[0]
	for i := 0; i < t.Depth; i++ {
		if x[cur.FeatureIndex] < cur.Threshold {
			if cur.LeftIsLeaf {
				return cur.LeftChild, nil
			}
			cur = t.Nodes[cur.LeftChild]
		} else {
			if cur.RightIsLeaf {
				return cur.RightChild, nil
			}
			cur = t.Nodes[cur.RightChild]
		}
	}
	return 0, fmt.Errorf("%w: tree traversal exceeded depth %d", domain.ErrCompute, t.Depth)
}

// ExpectedFeatures implements domain.Model.
func (f *Forest) ExpectedFeatures() []string {
	return f.features
}

// Predict implements domain.Model.
func (f *Forest) Predict(x []float64) (float64, error) {
	if len(x) != len(f.features) {
		return 0, fmt.Errorf("%w: forest expects %d features, got %d", domain.ErrSchemaMismatch, len(f.features), len(x))
	}
	var sum float64
	for i := range f.Trees {
		leaf, err := f.Trees[i].leaf(x)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += f.Trees[i].Outputs[leaf]
	}
	return clamp01(sum / float64(len(f.Trees))), nil
}

func (f *Forest) validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	for i := range f.Trees {
		if err := f.Trees[i].validate(len(f.features)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
