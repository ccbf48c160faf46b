package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/symptomcheck/internal/dataset"
	"github.com/Skufu/symptomcheck/internal/forest"
)

type memStore struct {
	mu      sync.Mutex
	arts    *Artifacts
	saveErr error
	saves   int
}

func (m *memStore) Load(ctx context.Context) (*Artifacts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.arts == nil {
		return nil, ErrNotFound
	}
	cp := *m.arts
	return &cp, nil
}

func (m *memStore) Save(ctx context.Context, a *Artifacts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	cp := *a
	m.arts = &cp
	return nil
}

func (m *memStore) Close() error { return nil }

func trained(t *testing.T, store Store) *Pipeline {
	t.Helper()
	p := New(store)
	_, err := p.Train(context.Background(), dataset.Synthesize(dataset.DefaultSeed).Samples)
	require.NoError(t, err)
	return p
}

func TestTrainReferenceAccuracy(t *testing.T) {
	p := New(&memStore{})
	assert.Equal(t, StateUnloaded, p.State())

	acc, err := p.Train(context.Background(), dataset.Synthesize(dataset.DefaultSeed).Samples)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.60)
	assert.LessOrEqual(t, acc, 1.0)
	assert.Equal(t, StateReady, p.State())
	assert.True(t, p.Ready())
}

func TestPredictRespiratoryScenario(t *testing.T) {
	p := trained(t, &memStore{})

	preds, err := p.Predict([]string{"fever", "cough", "fatigue", "headache"})
	require.NoError(t, err)
	require.NotEmpty(t, preds)

	top := preds
	if len(top) > 3 {
		top = top[:3]
	}
	found := false
	for _, pr := range top {
		if pr.Disease == "Influenza" || pr.Disease == "COVID-19" {
			found = true
		}
	}
	assert.True(t, found, "expected Influenza or COVID-19 in top 3, got %+v", preds)
}

func TestPredictRankingInvariant(t *testing.T) {
	p := trained(t, &memStore{})

	queries := [][]string{{}, {"rash"}, {"fever", "nausea"}, dataset.Vocabulary()}
	for _, d := range dataset.Diseases() {
		queries = append(queries, d.Symptoms)
	}

	for _, q := range queries {
		preds, err := p.Predict(q)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(preds), MaxPredictions)
		for i, pr := range preds {
			assert.Greater(t, pr.Confidence, 1.0, "query %v", q)
			assert.LessOrEqual(t, pr.Confidence, 100.0)
			if i > 0 {
				assert.GreaterOrEqual(t, preds[i-1].Confidence, pr.Confidence, "query %v", q)
			}
		}
	}
}

func TestPredictPrimarySymptomsFindDisease(t *testing.T) {
	p := trained(t, &memStore{})

	preds, err := p.Predict([]string{"rash", "itching", "dry_mouth"})
	require.NoError(t, err)
	require.NotEmpty(t, preds)
	assert.Equal(t, "Eczema", preds[0].Disease)
}

func TestPredictEmptyAndUnknown(t *testing.T) {
	p := trained(t, &memStore{})

	preds, err := p.Predict(nil)
	require.NoError(t, err)
	assert.NotNil(t, preds)

	withUnknown, err := p.Predict([]string{"fever", "definitely_not_a_symptom", "fever"})
	require.NoError(t, err)
	plain, err := p.Predict([]string{"fever"})
	require.NoError(t, err)
	assert.Equal(t, plain, withUnknown)
}

func TestPredictCachedResultIsCopy(t *testing.T) {
	p := trained(t, &memStore{})

	first, err := p.Predict([]string{"joint_pain", "swelling"})
	require.NoError(t, err)
	require.NotEmpty(t, first)
	first[0].Disease = "mutated"

	second, err := p.Predict([]string{"swelling", "joint_pain"})
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second[0].Disease)
}

func TestNotReady(t *testing.T) {
	p := New(&memStore{})

	_, err := p.Predict([]string{"fever"})
	assert.ErrorIs(t, err, ErrModelNotReady)

	_, err = p.ModelInfo()
	assert.ErrorIs(t, err, ErrModelNotReady)
}

func TestModelInfo(t *testing.T) {
	p := trained(t, &memStore{})

	info, err := p.ModelInfo()
	require.NoError(t, err)
	assert.Equal(t, ModelType, info.ModelType)
	assert.Equal(t, 100, info.NEstimators)
	assert.Equal(t, 10, info.MaxDepth)
	assert.Equal(t, len(dataset.Vocabulary()), info.TotalFeatures)
	assert.Equal(t, 20, info.TotalDiseases)
	assert.NotEmpty(t, info.Generation)

	require.LessOrEqual(t, len(info.TopImportantSymptoms), 10)
	require.LessOrEqual(t, len(info.TopImportantSymptoms), info.TotalFeatures)
	for i := 1; i < len(info.TopImportantSymptoms); i++ {
		assert.GreaterOrEqual(t, info.TopImportantSymptoms[i-1].Importance, info.TopImportantSymptoms[i].Importance)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	p := trained(t, store)
	gen := p.Snapshot().Generation
	assert.FileExists(t, filepath.Join(dir, modelName(gen)))
	assert.FileExists(t, filepath.Join(dir, labelsName(gen)))
	current, err := os.ReadFile(filepath.Join(dir, currentFile))
	require.NoError(t, err)
	assert.Equal(t, gen+"\n", string(current))

	reloaded := New(store)
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, StateReady, reloaded.State())
	assert.Equal(t, p.Snapshot().Generation, reloaded.Snapshot().Generation)
	assert.Equal(t, p.Snapshot().Vocabulary, reloaded.Snapshot().Vocabulary)

	assertSamePredictions(t, p, reloaded)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	p := trained(t, store)

	reloaded := New(store)
	require.NoError(t, reloaded.Load(context.Background()))
	assertSamePredictions(t, p, reloaded)
}

func assertSamePredictions(t *testing.T, a, b *Pipeline) {
	t.Helper()
	queries := [][]string{
		{"fever", "cough", "fatigue", "headache"},
		{"nausea", "vomiting", "diarrhea"},
		{"palpitations"},
		{},
	}
	for _, q := range queries {
		want, err := a.Predict(q)
		require.NoError(t, err)
		got, err := b.Predict(q)
		require.NoError(t, err)
		require.Len(t, got, len(want), "query %v", q)
		for i := range want {
			assert.Equal(t, want[i].Disease, got[i].Disease)
			assert.InDelta(t, want[i].Confidence, got[i].Confidence, 1e-9)
		}
	}
}

func TestLoadFallsBackToTraining(t *testing.T) {
	store := &memStore{}
	p := New(store)

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, 1, store.saves)
	assert.GreaterOrEqual(t, p.Snapshot().Accuracy, 0.60)
}

func TestLoadCorruptArtifactIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("g1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, modelName("g1")), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, labelsName("g1")), []byte(`{"classes":[]}`), 0o600))

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	p := New(store)

	err = p.Load(context.Background())
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, StateUnloaded, p.State())
	assert.False(t, p.Ready())
}

func TestLoadRejectsInconsistentArtifacts(t *testing.T) {
	base := &memStore{}
	trained(t, base)

	cases := map[string]func(a *Artifacts){
		"generation mismatch": func(a *Artifacts) { a.Labels.Generation = "other" },
		"vocabulary drift": func(a *Artifacts) {
			v := append([]string(nil), a.Model.Vocabulary...)
			v[0], v[1] = v[1], v[0]
			a.Model.Vocabulary = v
		},
		"schema version": func(a *Artifacts) { a.Model.SchemaVersion = SchemaVersion + 1 },
		"label count": func(a *Artifacts) { a.Labels.Classes = a.Labels.Classes[:3] },
		"missing forest": func(a *Artifacts) { a.Model.Forest = nil },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			arts, err := base.Load(context.Background())
			require.NoError(t, err)
			mutate(arts)

			p := New(&memStore{arts: arts})
			err = p.Load(context.Background())
			var serr *StorageError
			assert.ErrorAs(t, err, &serr)
			assert.False(t, p.Ready())
		})
	}
}

func TestTrainErrorKeepsServingModel(t *testing.T) {
	store := &memStore{}
	p := trained(t, store)
	gen := p.Snapshot().Generation

	_, err := p.Train(context.Background(), []dataset.Sample{
		{Disease: "Lonely", Features: make([]float64, len(dataset.Vocabulary()))},
	})
	var terr *TrainingError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, forest.ErrTooFewSamples)
	assert.Equal(t, gen, p.Snapshot().Generation)
	assert.Equal(t, StateReady, p.State())

	store.saveErr = errors.New("disk full")
	_, err = p.Train(context.Background(), dataset.Synthesize(7).Samples)
	require.Error(t, err)
	assert.Equal(t, gen, p.Snapshot().Generation, "failed save must not swap the model")
}

func TestTrainRejectsWrongFeatureWidth(t *testing.T) {
	p := New(&memStore{})
	_, err := p.Train(context.Background(), []dataset.Sample{{Disease: "A", Features: []float64{1}}})
	var terr *TrainingError
	assert.ErrorAs(t, err, &terr)
	assert.Equal(t, StateUnloaded, p.State())
}

func TestRetrainSwapsGeneration(t *testing.T) {
	p := New(&memStore{}, WithParams(forest.Params{Trees: 10, MaxDepth: 10, MinSplit: 5, Seed: 42}))
	require.NoError(t, p.Load(context.Background()))
	before := p.Snapshot()

	var wg sync.WaitGroup
	results := make([]RetrainResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Retrain(context.Background())
		}(i)
	}
	for i := 0; i < 50; i++ {
		_, err := p.Predict([]string{"fever", "cough"})
		require.NoError(t, err)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, 1000, results[i].TotalSamples)
	}
	assert.NotEqual(t, before.Generation, p.Snapshot().Generation)
	assert.Equal(t, StateReady, p.State())
}

func TestFileStoreInterruptedSaveKeepsPreviousGeneration(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	old := trained(t, store)
	oldGen := old.Snapshot().Generation

	// A save that stopped before switching CURRENT: the new generation's
	// labels, and only part of its model, are on disk.
	next, err := New(&memStore{}).fit(dataset.Synthesize(7).Samples)
	require.NoError(t, err)
	arts := toArtifacts(next)
	labels, err := json.Marshal(arts.Labels)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, labelsName(next.Generation)), labels, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, modelName(next.Generation)+".tmp-1"), []byte(`{"schema_ver`), 0o600))

	reloaded := New(store)
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, oldGen, reloaded.Snapshot().Generation)
	assertSamePredictions(t, old, reloaded)
}

func TestFileStorePrunesOldGenerations(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	p := New(store, WithParams(forest.Params{Trees: 5, MaxDepth: 10, MinSplit: 5, Seed: 42}))
	require.NoError(t, p.Load(context.Background()))
	first := p.Snapshot().Generation
	_, err = p.Retrain(context.Background())
	require.NoError(t, err)
	second := p.Snapshot().Generation
	require.NotEqual(t, first, second)

	assert.NoFileExists(t, filepath.Join(dir, modelName(first)))
	assert.NoFileExists(t, filepath.Join(dir, labelsName(first)))
	assert.FileExists(t, filepath.Join(dir, modelName(second)))
	assert.FileExists(t, filepath.Join(dir, labelsName(second)))
}

func TestFileStoreMissingArtifactIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentFile), []byte("gone\n"), 0o600))
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFileStoreRejectsUnsafeGeneration(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save(context.Background(), &Artifacts{
		Model:  ModelArtifact{Generation: "../escape"},
		Labels: LabelArtifact{Generation: "../escape"},
	})
	var serr *StorageError
	assert.ErrorAs(t, err, &serr)
}

// gatedStore blocks the first Save until release is closed, then honours
// ctx like FileStore does.
type gatedStore struct {
	memStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Save(ctx context.Context, a *Artifacts) error {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.memStore.Save(ctx, a)
}

func TestRetrainSurvivesCancelledCaller(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	p := New(store, WithParams(forest.Params{Trees: 5, MaxDepth: 10, MinSplit: 5, Seed: 42}))

	ctx1, cancel1 := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Retrain(ctx1)
		firstErr <- err
	}()
	<-store.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := p.Retrain(context.Background())
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel1()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(store.release)

	require.NoError(t, <-secondErr)
	assert.True(t, p.Ready())
	assert.Equal(t, StateReady, p.State())
	assert.GreaterOrEqual(t, store.saves, 1)
}

func TestPredictWithPinsSnapshot(t *testing.T) {
	p := New(&memStore{}, WithParams(forest.Params{Trees: 10, MaxDepth: 10, MinSplit: 5, Seed: 42}))
	require.NoError(t, p.Load(context.Background()))
	old := p.Snapshot()

	query := []string{"fever", "cough", "fatigue"}
	want, err := p.PredictWith(old, query)
	require.NoError(t, err)

	_, err = p.Train(context.Background(), dataset.Synthesize(7).Samples)
	require.NoError(t, err)
	require.NotEqual(t, old.Generation, p.Snapshot().Generation)

	got, err := p.PredictWith(old, query)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = p.PredictWith(nil, query)
	assert.ErrorIs(t, err, ErrModelNotReady)
}

func TestPredictionCacheIsBounded(t *testing.T) {
	p := New(&memStore{}, WithCacheLimit(2), WithParams(forest.Params{Trees: 5, MaxDepth: 10, MinSplit: 5, Seed: 42}))
	require.NoError(t, p.Load(context.Background()))

	for _, s := range dataset.Vocabulary()[:6] {
		_, err := p.Predict([]string{s})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, p.cache.ItemCount())

	uncached := New(&memStore{}, WithCacheLimit(0), WithParams(forest.Params{Trees: 5, MaxDepth: 10, MinSplit: 5, Seed: 42}))
	require.NoError(t, uncached.Load(context.Background()))
	_, err := uncached.Predict([]string{"fever"})
	require.NoError(t, err)
	assert.Zero(t, uncached.cache.ItemCount())
}

func TestRank(t *testing.T) {
	labels := FitLabels([]string{"a", "b", "c", "d", "e", "f", "g"})
	proba := []float64{0.005, 0.3, 0.01, 0.2, 0.25, 0.12346, 0.1}

	preds, err := rank(proba, labels)
	require.NoError(t, err)
	assert.Equal(t, []Prediction{
		{Disease: "b", Confidence: 30},
		{Disease: "e", Confidence: 25},
		{Disease: "d", Confidence: 20},
		{Disease: "f", Confidence: 12.35},
		{Disease: "g", Confidence: 10},
	}, preds)

	preds, err = rank([]float64{0.01, 0.99}, FitLabels([]string{"x", "y"}))
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Disease: "y", Confidence: 99}}, preds)
}

func TestLabelEncoder(t *testing.T) {
	enc := FitLabels([]string{"b", "a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, enc.Classes)

	i, err := enc.Encode("c")
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	name, err := enc.Decode(0)
	require.NoError(t, err)
	assert.Equal(t, "a", name)

	_, err = enc.Encode("z")
	assert.Error(t, err)
	_, err = enc.Decode(3)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "state(9)", State(9).String())
}
