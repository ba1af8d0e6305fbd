package core

import (
	"math/rand/v2"
	"sync"
)

// Classifier assigns an anomaly probability and anomaly types to a record.
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(r Record) (AnomalyProbability, []AnomalyType)
}

// RandomClassifier tags records from a single uniform draw per record.
// It is a placeholder until a real detector is available.
type RandomClassifier struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomClassifier creates a classifier seeded from the runtime source.
func NewRandomClassifier() *RandomClassifier {
	return &RandomClassifier{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededClassifier creates a classifier with a fixed seed, giving
// reproducible tagging.
func NewSeededClassifier(seed uint64) *RandomClassifier {
	return &RandomClassifier{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Classify implements Classifier.
func (c *RandomClassifier) Classify(Record) (AnomalyProbability, []AnomalyType) {
	c.mu.Lock()
	v := c.rng.Float64()
	c.mu.Unlock()
	return ClassifyValue(v)
}

// ClassifyValue maps a draw in [0,1) to a probability and type set.
func ClassifyValue(v float64) (AnomalyProbability, []AnomalyType) {
	var p AnomalyProbability
	switch {
	case v > 0.85:
		p = ProbabilityHigh
	case v > 0.65:
		p = ProbabilityElevated
	case v > 0.35:
		p = ProbabilityMedium
	default:
		p = ProbabilityLow
	}

	types := []AnomalyType{}
	if v > 0.8 {
		types = append(types, AnomalyWeight)
	}
	if v > 0.9 {
		types = append(types, AnomalyTime)
	}
	if v > 0.85 {
		types = append(types, AnomalyRoute)
	}
	return p, types
}

// FixedClassifier returns the same tagging for every record.
type FixedClassifier struct {
	Probability AnomalyProbability
	Types       []AnomalyType
}

// Classify implements Classifier.
func (c FixedClassifier) Classify(Record) (AnomalyProbability, []AnomalyType) {
	p := c.Probability
	if !p.Valid() {
		p = ProbabilityLow
	}
	types := make([]AnomalyType, len(c.Types))
	copy(types, c.Types)
	return p, types
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(Record) (AnomalyProbability, []AnomalyType)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(r Record) (AnomalyProbability, []AnomalyType) {
	return f(r)
}
