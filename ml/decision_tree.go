package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// TreeParams controls how a DecisionTree grows.
type TreeParams struct {
	// MaxDepth limits tree depth. Zero or negative means unlimited.
	MaxDepth int

	// MinSamplesSplit is the minimum number of samples needed to split a node.
	MinSamplesSplit int

	// MaxFeatures is the number of non-constant features examined per split.
	// Zero or negative means all features.
	MaxFeatures int

	// Seed drives the feature order at each split.
	Seed int64
}

// DecisionTree is a CART classifier using Gini impurity. Leaves hold class
// probabilities rather than a single label.
type DecisionTree struct {
	params    TreeParams
	nodes     []TreeNode
	nFeatures int
}

// TreeNode is one node of the flattened tree. Children are absolute indexes
// into the node slice.
type TreeNode struct {
	FeatureIdx    int       `json:"feature_idx"`
	Threshold     float64   `json:"threshold"`
	LeftChild     int       `json:"left_child"`
	RightChild    int       `json:"right_child"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	IsLeaf        bool      `json:"is_leaf"`
}

// NewDecisionTree returns an untrained tree.
func NewDecisionTree(params TreeParams) *DecisionTree {
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	return &DecisionTree{params: params}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	nFeatures, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}

	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}

	dt.nFeatures = nFeatures
	dt.nodes = nil
	rng := rand.New(rand.NewSource(dt.params.Seed))
	dt.buildNode(features, labels, indices, 0, rng)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	proba := make([]float64, len(leaf.Probabilities))
	copy(proba, leaf.Probabilities)
	return proba, nil
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrModelNotTrained
	}
	return writeArtifact(path, &artifact{
		Type:      ModelTypeDecisionTree,
		NFeatures: dt.nFeatures,
		Trees:     []treeState{{Nodes: dt.nodes}},
	})
}

func (dt *DecisionTree) Load(path string) error {
	a, err := readArtifact(path, ModelTypeDecisionTree)
	if err != nil {
		return err
	}
	if len(a.Trees) != 1 {
		return fmt.Errorf("decision tree artifact has %d trees", len(a.Trees))
	}
	return dt.restore(a.Trees[0], a.NFeatures)
}

// depth of the trained tree, zero for a single leaf.
func (dt *DecisionTree) depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	return dt.depthFrom(0)
}

func (dt *DecisionTree) depthFrom(idx int) int {
	node := dt.nodes[idx]
	if node.IsLeaf {
		return 0
	}
	left := dt.depthFrom(node.LeftChild)
	right := dt.depthFrom(node.RightChild)
	if left > right {
		return left + 1
	}
	return right + 1
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if len(dt.nodes) == 0 {
		return nil, ErrModelNotTrained
	}
	if len(features) != dt.nFeatures {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrFeatureCount, dt.nFeatures, len(features))
	}

	idx := 0
	for {
		node := &dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

func (dt *DecisionTree) state() treeState {
	return treeState{Nodes: dt.nodes}
}

func (dt *DecisionTree) restore(state treeState, nFeatures int) error {
	if err := validateNodes(state.Nodes, nFeatures); err != nil {
		return err
	}
	dt.nodes = state.Nodes
	dt.nFeatures = nFeatures
	return nil
}

// buildNode appends the subtree for indices and returns its root index.
func (dt *DecisionTree) buildNode(features [][]float64, labels []int, indices []int, depth int, rng *rand.Rand) int {
	counts := classCounts(labels, indices)
	self := len(dt.nodes)
	dt.nodes = append(dt.nodes, TreeNode{
		FeatureIdx:    -1,
		LeftChild:     -1,
		RightChild:    -1,
		Probabilities: normalizeCounts(counts, len(indices)),
		IsLeaf:        true,
	})

	if dt.params.MaxDepth > 0 && depth >= dt.params.MaxDepth {
		return self
	}
	if len(indices) < dt.params.MinSamplesSplit || isPure(counts) {
		return self
	}

	featureIdx, threshold, ok := dt.findBestSplit(features, labels, indices, counts, rng)
	if !ok {
		return self
	}

	left, right := splitIndices(features, indices, featureIdx, threshold)
	if len(left) == 0 || len(right) == 0 {
		return self
	}

	leftChild := dt.buildNode(features, labels, left, depth+1, rng)
	rightChild := dt.buildNode(features, labels, right, depth+1, rng)

	dt.nodes[self] = TreeNode{
		FeatureIdx: featureIdx,
		Threshold:  threshold,
		LeftChild:  leftChild,
		RightChild: rightChild,
	}
	return self
}

// findBestSplit sweeps every candidate threshold of up to MaxFeatures
// non-constant features, visited in random order.
func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int, parent [NumClasses]int, rng *rand.Rand) (int, float64, bool) {
	total := len(indices)
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, total)
	visited := 0
	for _, featureIdx := range rng.Perm(dt.nFeatures) {
		if dt.params.MaxFeatures > 0 && visited >= dt.params.MaxFeatures {
			break
		}

		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})
		if features[sorted[0]][featureIdx] == features[sorted[total-1]][featureIdx] {
			continue
		}
		visited++

		var left [NumClasses]int
		right := parent
		for i := 0; i < total-1; i++ {
			label := labels[sorted[i]]
			left[label]++
			right[label]--

			current := features[sorted[i]][featureIdx]
			next := features[sorted[i+1]][featureIdx]
			if current == next {
				continue
			}

			leftSize := i + 1
			rightSize := total - leftSize
			impurity := (float64(leftSize)*gini(left, leftSize) + float64(rightSize)*gini(right, rightSize)) / float64(total)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
			}
		}
	}

	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func splitIndices(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if features[idx][featureIdx] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

func classCounts(labels []int, indices []int) [NumClasses]int {
	var counts [NumClasses]int
	for _, idx := range indices {
		counts[labels[idx]]++
	}
	return counts
}

func normalizeCounts(counts [NumClasses]int, total int) []float64 {
	proba := make([]float64, NumClasses)
	if total == 0 {
		return proba
	}
	for i, count := range counts {
		proba[i] = float64(count) / float64(total)
	}
	return proba
}

func gini(counts [NumClasses]int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	return impurity
}

func isPure(counts [NumClasses]int) bool {
	nonZero := 0
	for _, count := range counts {
		if count > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func checkTrainingSet(features [][]float64, labels []int) (int, error) {
	if len(features) == 0 || len(labels) == 0 {
		return 0, ErrEmptyDataset
	}
	if len(features) != len(labels) {
		return 0, fmt.Errorf("%w: %d rows, %d labels", ErrEmptyDataset, len(features), len(labels))
	}
	nFeatures := len(features[0])
	if nFeatures == 0 {
		return 0, ErrEmptyDataset
	}
	for i, row := range features {
		if len(row) != nFeatures {
			return 0, fmt.Errorf("%w: row %d has %d values, expected %d", ErrFeatureCount, i, len(row), nFeatures)
		}
		if labels[i] < 0 || labels[i] >= NumClasses {
			return 0, fmt.Errorf("label %d at row %d out of range", labels[i], i)
		}
	}
	return nFeatures, nil
}

func validateNodes(nodes []TreeNode, nFeatures int) error {
	if len(nodes) == 0 {
		return ErrModelNotTrained
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if len(node.Probabilities) != NumClasses {
				return fmt.Errorf("leaf %d has %d probabilities", i, len(node.Probabilities))
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		// Children always follow their parent, which rules out cycles.
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, node.LeftChild, node.RightChild)
		}
	}
	return nil
}
