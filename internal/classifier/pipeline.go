// Package classifier owns the fitted symptom classifier: training,
// persistence, reload and ranked prediction. A Pipeline holds exactly one
// fitted state and replaces it wholesale; readers always see a complete
// snapshot.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/Skufu/symptomcheck/internal/dataset"
	"github.com/Skufu/symptomcheck/internal/forest"
	"github.com/Skufu/symptomcheck/internal/logging"
	"github.com/Skufu/symptomcheck/internal/metrics"
)

// ModelType is reported by the API alongside predictions.
const ModelType = "Random Forest Classifier"

const (
	defaultTestFraction = 0.2
	predictionCacheTTL  = 10 * time.Minute

	// DefaultCacheLimit bounds the number of cached prediction results.
	DefaultCacheLimit = 10000
)

// State is the lifecycle position of a Pipeline.
type State int32

const (
	StateUnloaded State = iota
	StateLoading
	StateTraining
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateTraining:
		return "training"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Fitted is one immutable trained model with everything needed to serve it.
type Fitted struct {
	Generation string
	Forest     *forest.Forest
	Labels     *LabelEncoder
	Vocabulary []string
	Accuracy   float64
	TrainedAt  time.Time

	index map[string]int
}

func newFitted(gen string, f *forest.Forest, labels *LabelEncoder, vocab []string, acc float64, at time.Time) *Fitted {
	idx := make(map[string]int, len(vocab))
	for i, s := range vocab {
		idx[s] = i
	}
	return &Fitted{
		Generation: gen,
		Forest:     f,
		Labels:     labels,
		Vocabulary: vocab,
		Accuracy:   acc,
		TrainedAt:  at,
		index:      idx,
	}
}

func (f *Fitted) encode(symptoms []string) []float64 {
	vec := make([]float64, len(f.Vocabulary))
	for _, s := range symptoms {
		if i, ok := f.index[s]; ok {
			vec[i] = 1
		}
	}
	return vec
}

// RetrainResult is returned by Retrain.
type RetrainResult struct {
	Accuracy     float64
	TotalSamples int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParams overrides the forest hyperparameters.
func WithParams(p forest.Params) Option {
	return func(pl *Pipeline) { pl.params = p }
}

// WithSeed sets the seed used for synthesis and the evaluation split.
func WithSeed(seed int64) Option {
	return func(pl *Pipeline) { pl.seed = seed }
}

// WithTestFraction sets the held-out share used for evaluation.
func WithTestFraction(f float64) Option {
	return func(pl *Pipeline) { pl.testFraction = f }
}

// WithCacheLimit caps the prediction cache at n entries. Zero disables it.
func WithCacheLimit(n int) Option {
	return func(pl *Pipeline) { pl.cacheLimit = n }
}

// Pipeline serves predictions from a single fitted state. Construct once
// with New and share the pointer.
type Pipeline struct {
	store        Store
	params       forest.Params
	seed         int64
	testFraction float64

	state   atomic.Int32
	current atomic.Pointer[Fitted]

	trainMu    sync.Mutex
	retrain    singleflight.Group
	cache      *cache.Cache
	cacheLimit int
}

// New creates an unloaded pipeline backed by store.
func New(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:        store,
		params:       forest.DefaultParams(),
		seed:         dataset.DefaultSeed,
		testFraction: defaultTestFraction,
		cache:        cache.New(predictionCacheTTL, 2*predictionCacheTTL),
		cacheLimit:   DefaultCacheLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State reports the current lifecycle state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Ready reports whether a model is available to serve.
func (p *Pipeline) Ready() bool {
	return p.current.Load() != nil
}

// Snapshot returns the serving model, or nil.
func (p *Pipeline) Snapshot() *Fitted {
	return p.current.Load()
}

// Params returns the configured forest hyperparameters.
func (p *Pipeline) Params() forest.Params {
	return p.params
}

// Dataset regenerates the training corpus for this pipeline's seed.
func (p *Pipeline) Dataset() *dataset.Dataset {
	return dataset.Synthesize(p.seed)
}

// Vocabulary returns the vocabulary of the serving model, or the embedded
// vocabulary if nothing is loaded yet.
func (p *Pipeline) Vocabulary() []string {
	if f := p.current.Load(); f != nil {
		return slices.Clone(f.Vocabulary)
	}
	return dataset.Vocabulary()
}

// Load restores persisted state. When the store holds nothing it trains a
// fresh model from the synthesized corpus and logs the substitution. Any
// other storage failure is returned unchanged.
func (p *Pipeline) Load(ctx context.Context) error {
	p.state.Store(int32(StateLoading))

	arts, err := p.store.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		logging.Warn().
			Str("reason", "no persisted model").
			Msg("training fresh model in place of persisted one")
		metrics.FallbackTrainingsTotal.Inc()

		ds := p.Dataset()
		acc, err := p.Train(ctx, ds.Samples)
		if err != nil {
			return fmt.Errorf("fallback training: %w", err)
		}
		logging.Info().Float64("accuracy", acc).Msg("fallback model trained")
		return nil
	}
	if err != nil {
		p.settle()
		return err
	}

	fitted, err := fromArtifacts(arts)
	if err != nil {
		p.settle()
		return err
	}

	p.install(fitted)
	logging.Info().
		Str("generation", fitted.Generation).
		Float64("accuracy", fitted.Accuracy).
		Time("trained_at", fitted.TrainedAt).
		Msg("model loaded")
	return nil
}

// Train fits a new model on samples, evaluates it on a stratified held-out
// split, persists it and then swaps it in. The previous model keeps serving
// until the swap; on any error it stays in place.
func (p *Pipeline) Train(ctx context.Context, samples []dataset.Sample) (acc float64, err error) {
	p.trainMu.Lock()
	defer p.trainMu.Unlock()

	p.state.Store(int32(StateTraining))
	start := time.Now()
	defer func() {
		metrics.RecordTraining(time.Since(start), acc, err)
		if err != nil {
			p.settle()
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fitted, err := p.fit(samples)
	if err != nil {
		return 0, err
	}

	if err := p.store.Save(ctx, toArtifacts(fitted)); err != nil {
		return 0, fmt.Errorf("persist model: %w", err)
	}

	p.install(fitted)
	logging.Info().
		Str("generation", fitted.Generation).
		Float64("accuracy", fitted.Accuracy).
		Int("samples", len(samples)).
		Dur("took", time.Since(start)).
		Msg("model trained")
	return fitted.Accuracy, nil
}

// Retrain synthesizes a fresh corpus and trains on it. Concurrent callers
// share a single run. The run ignores caller cancellation: a caller whose
// ctx ends gets ctx.Err() right away while the run completes for the rest.
func (p *Pipeline) Retrain(ctx context.Context) (RetrainResult, error) {
	runCtx := context.WithoutCancel(ctx)
	ch := p.retrain.DoChan("retrain", func() (any, error) {
		ds := p.Dataset()
		acc, err := p.Train(runCtx, ds.Samples)
		if err != nil {
			return nil, err
		}
		return RetrainResult{Accuracy: acc, TotalSamples: len(ds.Samples)}, nil
	})

	select {
	case <-ctx.Done():
		return RetrainResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return RetrainResult{}, res.Err
		}
		return res.Val.(RetrainResult), nil
	}
}

func (p *Pipeline) fit(samples []dataset.Sample) (*Fitted, error) {
	if len(samples) == 0 {
		return nil, &TrainingError{Reason: "no samples"}
	}

	vocab := dataset.Vocabulary()
	names := make([]string, len(samples))
	for i, s := range samples {
		if len(s.Features) != len(vocab) {
			return nil, &TrainingError{Reason: fmt.Sprintf("sample %d has %d features, vocabulary has %d", i, len(s.Features), len(vocab))}
		}
		names[i] = s.Disease
	}

	labels := FitLabels(names)
	y := make([]int, len(samples))
	for i, n := range names {
		y[i], _ = labels.Encode(n)
	}

	trainIdx, testIdx, err := forest.StratifiedSplit(y, p.testFraction, uint64(p.seed))
	if err != nil {
		return nil, &TrainingError{Reason: "stratified split", Err: err}
	}

	xTrain := make([][]float64, len(trainIdx))
	yTrain := make([]int, len(trainIdx))
	for i, row := range trainIdx {
		xTrain[i] = samples[row].Features
		yTrain[i] = y[row]
	}

	f, err := forest.Fit(xTrain, yTrain, labels.Len(), p.params)
	if err != nil {
		return nil, &TrainingError{Reason: "fit", Err: err}
	}

	correct := 0
	for _, row := range testIdx {
		got, err := f.Predict(samples[row].Features)
		if err != nil {
			return nil, &TrainingError{Reason: "evaluate", Err: err}
		}
		if got == y[row] {
			correct++
		}
	}
	acc := float64(correct) / float64(len(testIdx))

	return newFitted(uuid.NewString(), f, labels, vocab, acc, time.Now().UTC()), nil
}

func (p *Pipeline) install(f *Fitted) {
	p.current.Store(f)
	p.cache.Flush()
	metrics.ModelAccuracy.Set(f.Accuracy)
	p.state.Store(int32(StateReady))
}

// settle returns to Ready if an older model is still serving, otherwise to
// Unloaded.
func (p *Pipeline) settle() {
	if p.current.Load() != nil {
		p.state.Store(int32(StateReady))
		return
	}
	p.state.Store(int32(StateUnloaded))
}

func toArtifacts(f *Fitted) *Artifacts {
	return &Artifacts{
		Model: ModelArtifact{
			SchemaVersion: SchemaVersion,
			Generation:    f.Generation,
			Vocabulary:    f.Vocabulary,
			Accuracy:      f.Accuracy,
			TrainedAt:     f.TrainedAt,
			Forest:        f.Forest,
		},
		Labels: LabelArtifact{
			Generation: f.Generation,
			Classes:    f.Labels.Classes,
		},
	}
}

// fromArtifacts checks that both halves belong together and match the
// embedded vocabulary before building a servable model.
func fromArtifacts(a *Artifacts) (*Fitted, error) {
	m := a.Model
	if m.SchemaVersion != SchemaVersion {
		return nil, &StorageError{Op: "load", Err: fmt.Errorf("schema version %d, want %d", m.SchemaVersion, SchemaVersion)}
	}
	if m.Generation == "" || m.Generation != a.Labels.Generation {
		return nil, &StorageError{Op: "load", Err: fmt.Errorf("model generation %q does not match labels generation %q", m.Generation, a.Labels.Generation)}
	}
	if !slices.Equal(m.Vocabulary, dataset.Vocabulary()) {
		return nil, &StorageError{Op: "load", Err: errors.New("persisted vocabulary differs from embedded vocabulary")}
	}
	if m.Forest == nil {
		return nil, &StorageError{Op: "load", Err: errors.New("model artifact has no forest")}
	}
	if err := m.Forest.Validate(); err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	if m.Forest.Features != len(m.Vocabulary) {
		return nil, &StorageError{Op: "load", Err: fmt.Errorf("forest has %d features, vocabulary %d", m.Forest.Features, len(m.Vocabulary))}
	}
	if m.Forest.Classes != len(a.Labels.Classes) {
		return nil, &StorageError{Op: "load", Err: fmt.Errorf("forest has %d classes, labels %d", m.Forest.Classes, len(a.Labels.Classes))}
	}

	return newFitted(m.Generation, m.Forest, newLabelEncoder(a.Labels.Classes), m.Vocabulary, m.Accuracy, m.TrainedAt), nil
}
