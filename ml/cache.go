package ml

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// PredictionCache memoises predictions per measurement. The model never
// changes after startup, so a cached prediction stays valid.
type PredictionCache struct {
	cache *lru.Cache[Measurement, Prediction]
}

// NewPredictionCache returns nil when size is not positive; a nil cache is
// valid and never hits.
func NewPredictionCache(size int) (*PredictionCache, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New[Measurement, Prediction](size)
	if err != nil {
		return nil, err
	}
	return &PredictionCache{cache: cache}, nil
}

func (c *PredictionCache) Get(m Measurement) (Prediction, bool) {
	if c == nil {
		return Prediction{}, false
	}
	p, ok := c.cache.Get(m)
	if !ok {
		return Prediction{}, false
	}
	return clonePrediction(p), true
}

func (c *PredictionCache) Add(m Measurement, p Prediction) {
	if c == nil {
		return
	}
	c.cache.Add(m, clonePrediction(p))
}

func (c *PredictionCache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// clonePrediction copies the probability map so callers cannot mutate
// cached entries.
func clonePrediction(p Prediction) Prediction {
	probabilities := make(map[string]float64, len(p.Probabilities))
	for k, v := range p.Probabilities {
		probabilities[k] = v
	}
	p.Probabilities = probabilities
	return p
}
