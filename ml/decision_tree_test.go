package ml

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDecisionTreeTrainPredict(t *testing.T) {
	features := [][]float64{
		{0.1, 0.2},
		{0.2, 0.1},
		{0.9, 0.8},
		{0.8, 0.9},
	}
	labels := []int{0, 0, 2, 2}

	model := NewDecisionTree(TreeParams{MaxDepth: 2})
	if err := model.Train(features, labels); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, err := model.Predict([]float64{0.15, 0.15})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != 0 {
		t.Fatalf("expected label 0, got %d", label)
	}
	proba, err := model.PredictProba([]float64{0.85, 0.85})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proba) != NumClasses || proba[2] != 1 {
		t.Fatalf("expected certain class 2, got %v", proba)
	}
}

func TestDecisionTreeMaxDepth(t *testing.T) {
	samples, err := LoadIrisDataset()
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	x, y := BuildTrainingSet(samples)

	model := NewDecisionTree(TreeParams{MaxDepth: 1})
	if err := model.Train(x, y); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if depth := model.depth(); depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}

	// A depth-1 stump cannot be certain about versicolor and virginica at once.
	proba, err := model.PredictProba(x[100])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := proba[0] + proba[1] + proba[2]
	if sum < 0.999999 || sum > 1.000001 {
		t.Fatalf("probabilities should sum to 1, got %v", proba)
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	model := NewDecisionTree(TreeParams{})
	if _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained, got %v", err)
	}
	if err := model.Train(nil, nil); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
	if err := model.Train([][]float64{{1}, {2}}, []int{0}); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected size mismatch error, got %v", err)
	}
	if err := model.Train([][]float64{{1}, {2}}, []int{0, 5}); err == nil {
		t.Fatal("expected out of range label error")
	}
	if err := model.Train([][]float64{{1}, {2}}, []int{0, 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := model.Predict([]float64{1, 2}); !errors.Is(err, ErrFeatureCount) {
		t.Fatalf("expected ErrFeatureCount, got %v", err)
	}
}

func TestDecisionTreeSaveLoad(t *testing.T) {
	samples, err := LoadIrisDataset()
	if err != nil {
		t.Fatalf("load dataset: %v", err)
	}
	x, y := BuildTrainingSet(samples)
	model := NewDecisionTree(TreeParams{Seed: 7})
	if err := model.Train(x, y); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tree.json")
	if err := model.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadModel(ModelTypeDecisionTree, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i, row := range x {
		want, _ := model.Predict(row)
		got, err := loaded.Predict(row)
		if err != nil {
			t.Fatalf("predict row %d: %v", i, err)
		}
		if want != got {
			t.Fatalf("row %d: expected %d after reload, got %d", i, want, got)
		}
	}
}

func TestValidateNodesRejectsCycles(t *testing.T) {
	nodes := []TreeNode{
		{FeatureIdx: 0, Threshold: 1, LeftChild: 0, RightChild: 1},
		{IsLeaf: true, Probabilities: []float64{1, 0, 0}},
	}
	if err := validateNodes(nodes, 1); err == nil {
		t.Fatal("expected invalid children error")
	}
}
