package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// RandomForest is an ensemble of decision trees serialized as a JSON
// artifact. Prediction is a majority vote across trees; confidence is the
// winning class's vote share.
type RandomForest struct {
	NumFeatures int    `json:"num_features"`
	Trees       []Tree `json:"trees"`
}

type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
}

func (f *RandomForest) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var loaded RandomForest
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("invalid forest artifact: %w", err)
	}
	if loaded.NumFeatures <= 0 {
		return errors.New("invalid forest artifact: num_features must be positive")
	}
	if len(loaded.Trees) == 0 {
		return errors.New("invalid forest artifact: no trees")
	}
	for i, tree := range loaded.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("invalid forest artifact: tree %d has no nodes", i)
		}
	}

	*f = loaded
	return nil
}

func (f *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(f.Trees) == 0 {
		return 0, 0, errors.New("model not loaded")
	}
	if len(features) != f.NumFeatures {
		return 0, 0, fmt.Errorf("feature count mismatch: got %d, want %d", len(features), f.NumFeatures)
	}

	// Majority vote. Ties break to the class that reached the winning count
	// first in tree order, so repeated calls are reproducible.
	votes := make(map[int]int)
	order := make([]int, 0, 4)
	for _, tree := range f.Trees {
		label, err := tree.classify(features)
		if err != nil {
			return 0, 0, err
		}
		if _, seen := votes[label]; !seen {
			order = append(order, label)
		}
		votes[label]++
	}

	best := order[0]
	for _, label := range order[1:] {
		if votes[label] > votes[best] {
			best = label
		}
	}

	return best, float64(votes[best]) / float64(len(f.Trees)), nil
}

func (t *Tree) classify(features []float64) (int, error) {
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(t.Nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}
