package iforest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/pulseguard/pkg/detectors"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithContamination(0.05), WithSeed(123)},
			wantNTrees: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
		})
	}
}

func TestNewDetectorFromConfig(t *testing.T) {
	cfg := detectors.DefaultConfig()
	cfg.Trees = 7
	cfg.RandomSeed = 9

	f, ok := NewDetector(cfg).(*IsolationForest)
	require.True(t, ok)
	assert.Equal(t, 7, f.nTrees)
	assert.Equal(t, int64(9), f.seed)
	assert.Equal(t, 0.05, f.contamination)
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		wantErr error
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: ErrEmptyData,
		},
		{
			name:    "ragged rows",
			data:    [][]float64{{1, 2}, {3}},
			wantErr: ErrFeatureMismatch,
		},
		{
			name: "single sample",
			data: [][]float64{{1.0, 2.0, 3.0}},
		},
		{
			name: "normal data",
			data: generateTestData(100, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(WithTrees(10), WithSeed(42))
			err := f.Fit(tt.data)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.False(t, f.trained)
				return
			}
			assert.NoError(t, err)
			assert.True(t, f.trained)
			assert.Len(t, f.trees, f.nTrees)
		})
	}
}

func TestPredict(t *testing.T) {
	// Train on normal data
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSampleSize(100), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("predict on normal data", func(t *testing.T) {
		testData := generateTestData(100, 5)
		scores, err := f.Predict(testData)

		require.NoError(t, err)
		assert.Len(t, scores, len(testData))

		// All scores should be in [0, 1]
		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("predict on anomalies", func(t *testing.T) {
		// Anomalous data: very different from training
		anomalies := [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		}
		scores, err := f.Predict(anomalies)

		require.NoError(t, err)
		// Anomalies should have higher scores
		for _, score := range scores {
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
			assert.Greater(t, score, f.Threshold())
		}
	})

	t.Run("wrong width", func(t *testing.T) {
		_, err := f.Predict([][]float64{{1, 2}})
		assert.ErrorIs(t, err, ErrFeatureMismatch)
	})

	t.Run("predict before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Predict(trainData)
		assert.ErrorIs(t, err, ErrNotTrained)
	})
}

func TestPredictOne(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	score, err := f.PredictOne([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	_, err = New().PredictOne([]float64{0.5})
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestContaminationThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := make([][]float64, 400)
	for i := range data {
		data[i] = []float64{70 + rng.NormFloat64()*2}
	}

	f := New(WithContamination(0.05), WithSeed(42))
	require.NoError(t, f.Fit(data))

	flagged := 0
	for _, row := range data {
		s, err := f.Classify(row)
		require.NoError(t, err)
		if s.IsAnomaly {
			flagged++
		}
	}
	// floor(0.05*400) samples lie strictly above the boundary; ties with
	// the boundary sample are not flagged.
	assert.LessOrEqual(t, flagged, 20)
	assert.Greater(t, flagged, 0)
}

func TestZeroContaminationFlagsNoTrainingSample(t *testing.T) {
	data := [][]float64{{70}, {72}, {71}, {69}, {73}}
	f := New(WithContamination(0), WithSeed(42))
	require.NoError(t, f.Fit(data))

	for _, row := range data {
		s, err := f.Classify(row)
		require.NoError(t, err)
		assert.False(t, s.IsAnomaly, "training sample %v", row)
	}
}

func TestRangeAwareIsolation(t *testing.T) {
	baseline := [][]float64{{70}, {72}, {71}, {69}, {73}}
	f := New(WithContamination(0.05), WithSeed(42))
	require.NoError(t, f.Fit(baseline))

	edge, err := f.PredictOne([]float64{73})
	require.NoError(t, err)

	// Within one mean spacing of the edge: same score as the edge sample.
	near, err := f.PredictOne([]float64{74})
	require.NoError(t, err)
	assert.Equal(t, edge, near)

	far, err := f.Classify([]float64{150})
	require.NoError(t, err)
	assert.True(t, far.IsAnomaly)
	assert.Greater(t, far.Value, edge)

	low, err := f.Classify([]float64{20})
	require.NoError(t, err)
	assert.True(t, low.IsAnomaly)

	s, err := f.Classify([]float64{74})
	require.NoError(t, err)
	assert.False(t, s.IsAnomaly)
}

func TestRootIsolationGrowsWithDistance(t *testing.T) {
	tree := &iTree{bounds: []span{{lo: 69, hi: 73, tol: 1}}}

	assert.Equal(t, 0.0, tree.rootIsolation([]float64{71}))
	assert.Equal(t, 0.0, tree.rootIsolation([]float64{74}))
	assert.Equal(t, 0.0, tree.rootIsolation([]float64{68}))
	assert.InDelta(t, 0.5, tree.rootIsolation([]float64{78}), 1e-12)
	assert.InDelta(t, 0.95, tree.rootIsolation([]float64{150}), 1e-12)

	flat := &iTree{bounds: []span{{lo: 70, hi: 70}}}
	assert.Equal(t, 1.0, flat.rootIsolation([]float64{70.5}))
	assert.Equal(t, 0.0, flat.rootIsolation([]float64{70}))
}

func TestFitIsDeterministic(t *testing.T) {
	data := generateTestData(300, 1)
	sample := generateTestData(50, 1)

	a := New(WithSeed(42))
	b := New(WithSeed(42))
	require.NoError(t, a.Fit(data))
	require.NoError(t, b.Fit(data))

	sa, err := a.Predict(sample)
	require.NoError(t, err)
	sb, err := b.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
	assert.Equal(t, a.Threshold(), b.Threshold())

	// Refitting the same instance starts over from the seed.
	require.NoError(t, a.Fit(data))
	again, err := a.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, sa, again)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100), WithSampleSize(256))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkPredictOne(b *testing.B) {
	trainData := generateTestData(5000, 1)
	f := New(WithTrees(100), WithSampleSize(256))
	f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.PredictOne([]float64{rand.Float64()})
	}
}

func generateTestData(n, features int) [][]float64 {
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rand.NormFloat64()
		}
	}
	return data
}
