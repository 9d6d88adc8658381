// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hed1ad/pulseguard/pkg/detectors"
)

var (
	// ErrNotTrained is returned when scoring before Fit.
	ErrNotTrained = errors.New("model not trained")
	// ErrEmptyData is returned by Fit on an empty dataset.
	ErrEmptyData = errors.New("empty training data")
	// ErrFeatureMismatch is returned for rows whose width differs from the
	// training data.
	ErrFeatureMismatch = errors.New("feature count mismatch")
)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
//
// Besides the classic path-length score, each tree remembers the range of
// its subsample. A query beyond that range by more than the mean sample
// spacing can be cut off by the root split itself, so far excursions score
// higher than any training point instead of sharing the path of the
// nearest edge sample.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	seed          int64

	// Trained model
	trees     []*iTree
	trained   bool
	nFeatures int
	maxDepth  int

	// Statistics from training
	avgPathLength float64
	threshold     float64
}

// iTree represents a single isolation tree.
type iTree struct {
	root   *node
	bounds []span
}

// span is the per-feature range of a tree's subsample.
type span struct {
	lo, hi float64
	// tol is the mean spacing between sorted samples; excursions within it
	// are indistinguishable from the edge sample.
	tol float64
}

// node is a node in the isolation tree.
type node struct {
	// Split parameters (for internal nodes)
	splitFeature int
	splitValue   float64

	// Children
	left  *node
	right *node

	// Leaf information
	size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility. Every Fit starts from
// this seed, so refitting identical data yields an identical forest.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.05,
		seed:          42,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// NewDetector builds a forest from a detectors.Config. It is the
// detectors.Factory used by the pipeline.
func NewDetector(cfg detectors.Config) detectors.Detector {
	return New(
		WithTrees(cfg.Trees),
		WithSampleSize(cfg.SampleSize),
		WithContamination(cfg.Contamination),
		WithSeed(cfg.RandomSeed),
	)
}

// Fit trains the Isolation Forest on the provided data.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return ErrEmptyData
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return fmt.Errorf("%w: rows have no features", ErrFeatureMismatch)
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureMismatch, i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	sampleSize := f.sampleSize
	if sampleSize <= 0 || sampleSize > nSamples {
		sampleSize = nSamples
	}

	rng := rand.New(rand.NewSource(f.seed))
	f.maxDepth = int(math.Ceil(math.Log2(float64(sampleSize))))
	f.nFeatures = nFeatures

	// Build trees
	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &iTree{
			root:   f.buildNode(rng, sample, nFeatures, 0),
			bounds: sampleBounds(sample, nFeatures),
		}
	}

	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	if f.avgPathLength == 0 {
		f.avgPathLength = 1
	}
	f.trained = true

	// The boundary is the score of the most anomalous training sample
	// still counted as normal: floor(contamination*n) samples lie above it.
	scores := f.predict(data)
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	k := int(math.Floor(f.contamination * float64(nSamples)))
	if k >= nSamples {
		k = nSamples - 1
	}
	f.threshold = scores[k]

	return nil
}

func (f *IsolationForest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	// Random feature and split value
	feature := rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		if row[feature] < minVal {
			minVal = row[feature]
		}
		if row[feature] > maxVal {
			maxVal = row[feature]
		}
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{size: n}
	}

	// Random split value
	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		splitFeature: feature,
		splitValue:   splitValue,
		left:         f.buildNode(rng, leftData, nFeatures, depth+1),
		right:        f.buildNode(rng, rightData, nFeatures, depth+1),
	}
}

func sampleBounds(sample [][]float64, nFeatures int) []span {
	bounds := make([]span, nFeatures)
	for j := range bounds {
		lo, hi := sample[0][j], sample[0][j]
		for _, row := range sample[1:] {
			lo = math.Min(lo, row[j])
			hi = math.Max(hi, row[j])
		}
		bounds[j] = span{lo: lo, hi: hi}
		if len(sample) > 1 {
			bounds[j].tol = (hi - lo) / float64(len(sample)-1)
		}
	}
	return bounds
}

// Predict returns anomaly scores for the given samples.
func (f *IsolationForest) Predict(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, ErrNotTrained
	}
	for i, row := range data {
		if len(row) != f.nFeatures {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrFeatureMismatch, i, len(row), f.nFeatures)
		}
	}

	return f.predict(data), nil
}

func (f *IsolationForest) predict(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.predictOne(sample)
	}
	return scores
}

// PredictOne returns the anomaly score for a single sample.
func (f *IsolationForest) PredictOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return 0, ErrNotTrained
	}
	if len(sample) != f.nFeatures {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrFeatureMismatch, len(sample), f.nFeatures)
	}

	return f.predictOne(sample), nil
}

// Classify scores a sample and compares it with the fitted threshold.
func (f *IsolationForest) Classify(sample []float64) (detectors.Score, error) {
	score, err := f.PredictOne(sample)
	if err != nil {
		return detectors.Score{}, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return detectors.Score{
		Value:     score,
		IsAnomaly: score > f.threshold,
		Features:  sample,
	}, nil
}

func (f *IsolationForest) predictOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += tree.pathLength(sample)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength is the expected isolation depth of sample in t: with
// probability p the root split separates it immediately (depth 1),
// otherwise it follows the tree like its nearest in-range value.
func (t *iTree) pathLength(sample []float64) float64 {
	h := pathLength(sample, t.root, 0)
	p := t.rootIsolation(sample)
	if p == 0 {
		return h
	}
	return p + (1-p)*h
}

// rootIsolation returns the probability that a root split drawn over the
// subsample range extended to sample isolates it, averaged over features.
func (t *iTree) rootIsolation(sample []float64) float64 {
	var p float64
	for j, b := range t.bounds {
		var dist float64
		switch x := sample[j]; {
		case x > b.hi:
			dist = x - b.hi
		case x < b.lo:
			dist = b.lo - x
		}
		excess := dist - b.tol
		if excess <= 0 {
			continue
		}
		p += excess / (excess + (b.hi - b.lo))
	}
	return p / float64(len(t.bounds))
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.left == nil && n.right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.size))
	}

	if sample[n.splitFeature] < n.splitValue {
		return pathLength(sample, n.left, currentDepth+1)
	}
	return pathLength(sample, n.right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, where H is harmonic number
	// Approximation: H(n) ≈ ln(n) + 0.5772156649 (Euler-Mascheroni constant)
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

// Threshold returns the current anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

var _ detectors.Detector = (*IsolationForest)(nil)
