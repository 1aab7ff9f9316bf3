package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams controls RandomForest training.
type ForestParams struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int

	// MaxFeatures per split; zero or negative means sqrt(n_features).
	MaxFeatures int

	Seed int64

	// Workers bounds concurrent tree fitting; zero or negative means GOMAXPROCS.
	Workers int
}

// DefaultForestParams mirrors a 100-tree forest with unlimited depth.
func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// RandomForest averages the class probabilities of bootstrapped trees.
type RandomForest struct {
	params    ForestParams
	trees     []*DecisionTree
	nFeatures int
}

func NewRandomForest(params ForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = DefaultForestParams().NEstimators
	}
	return &RandomForest{params: params}
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	return rf.TrainContext(context.Background(), features, labels)
}

// TrainContext fits the trees concurrently. Each tree draws its bootstrap
// sample from its own seeded source, so results do not depend on scheduling.
func (rf *RandomForest) TrainContext(ctx context.Context, features [][]float64, labels []int) error {
	nFeatures, err := checkTrainingSet(features, labels)
	if err != nil {
		return err
	}

	maxFeatures := rf.params.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
	}
	workers := rf.params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*DecisionTree, rf.params.NEstimators)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(rf.params.Seed + int64(i)))
			sampleX, sampleY := bootstrap(features, labels, rng)

			tree := NewDecisionTree(TreeParams{
				MaxDepth:        rf.params.MaxDepth,
				MinSamplesSplit: rf.params.MinSamplesSplit,
				MaxFeatures:     maxFeatures,
				Seed:            rng.Int63(),
			})
			if err := tree.Train(sampleX, sampleY); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.trees = trees
	rf.nFeatures = nFeatures
	return nil
}

func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.trees) == 0 {
		return nil, ErrModelNotTrained
	}

	proba := make([]float64, NumClasses)
	for _, tree := range rf.trees {
		leaf, err := tree.leaf(features)
		if err != nil {
			return nil, err
		}
		for i, p := range leaf.Probabilities {
			proba[i] += p
		}
	}
	for i := range proba {
		proba[i] /= float64(len(rf.trees))
	}
	return proba, nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrModelNotTrained
	}
	states := make([]treeState, len(rf.trees))
	for i, tree := range rf.trees {
		states[i] = tree.state()
	}
	return writeArtifact(path, &artifact{
		Type:      ModelTypeRandomForest,
		NFeatures: rf.nFeatures,
		Trees:     states,
	})
}

func (rf *RandomForest) Load(path string) error {
	a, err := readArtifact(path, ModelTypeRandomForest)
	if err != nil {
		return err
	}
	if len(a.Trees) == 0 {
		return fmt.Errorf("random forest artifact at %s has no trees", path)
	}

	trees := make([]*DecisionTree, len(a.Trees))
	for i, state := range a.Trees {
		tree := &DecisionTree{}
		if err := tree.restore(state, a.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = tree
	}
	rf.trees = trees
	rf.nFeatures = a.NFeatures
	return nil
}

// NumTrees returns the number of fitted trees.
func (rf *RandomForest) NumTrees() int {
	return len(rf.trees)
}

func bootstrap(features [][]float64, labels []int, rng *rand.Rand) ([][]float64, []int) {
	n := len(features)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	for i := 0; i < n; i++ {
		idx := rng.Intn(n)
		sampleX[i] = features[idx]
		sampleY[i] = labels[idx]
	}
	return sampleX, sampleY
}
