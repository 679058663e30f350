// Package classify owns the loaded model handle and translates model
// failures into the service's error taxonomy.
package classify

import (
	"errors"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"mindserve/ml"
	"mindserve/normalize"
)

// Result is the outcome of one classification before label mapping.
type Result struct {
	// Code is the model's raw output identifier.
	Code string
	// Confidence is the winning class's score, in [0,1].
	Confidence float64
}

// Config locates the model artifacts. At least one of the two paths must be
// set; each configured artifact must load or startup fails.
type Config struct {
	TextPath   string
	ForestPath string
	CacheSize  int
}

// Gateway holds the process-wide model handle. It is read-only after New
// returns; both model implementations are reentrant, so concurrent calls
// need no serialization.
type Gateway struct {
	forest ml.Model
	text   ml.TextModel
	cache  *lru.Cache[string, Result]
	logger *zap.Logger
}

// New loads the configured model artifacts exactly once. A missing or
// malformed artifact is a ModelLoadError; callers treat it as fatal.
func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if cfg.TextPath == "" && cfg.ForestPath == "" {
		return nil, &ModelLoadError{Err: errors.New("no model artifact configured")}
	}

	g := &Gateway{logger: logger}

	if cfg.ForestPath != "" {
		forest := &ml.RandomForest{}
		if err := forest.Load(cfg.ForestPath); err != nil {
			return nil, &ModelLoadError{Path: cfg.ForestPath, Err: err}
		}
		g.forest = forest
		logger.Info("forest model loaded",
			zap.String("path", cfg.ForestPath),
			zap.Int("trees", len(forest.Trees)))
	}

	if cfg.TextPath != "" {
		text := &ml.KeywordModel{}
		if err := text.Load(cfg.TextPath); err != nil {
			return nil, &ModelLoadError{Path: cfg.TextPath, Err: err}
		}
		g.text = text
		logger.Info("text model loaded",
			zap.String("path", cfg.TextPath),
			zap.Int("classes", len(text.Classes)))
	}

	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, Result](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		g.cache = cache
	}

	return g, nil
}

// ClassifyText classifies one raw text input. Results are memoized in the
// LRU cache when one is configured; inference is deterministic, so cached
// results never go stale.
func (g *Gateway) ClassifyText(text string) (Result, error) {
	if g.text == nil {
		return Result{}, &InferenceError{Err: errors.New("no text model loaded")}
	}

	if g.cache != nil {
		if cached, ok := g.cache.Get(text); ok {
			return cached, nil
		}
	}

	scores, err := g.text.Scores(text)
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	if len(scores) == 0 {
		return Result{}, &InferenceError{Err: errors.New("model returned no scores")}
	}

	// Max score wins; ties break to the first class in the model's native
	// ordering, keeping the choice reproducible.
	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	result := Result{Code: best.Code, Confidence: best.Score}
	if g.cache != nil {
		g.cache.Add(text, result)
	}
	return result, nil
}

// ClassifyRecord classifies one canonical structured record.
func (g *Gateway) ClassifyRecord(rec normalize.CanonicalRecord) (Result, error) {
	if g.forest == nil {
		return Result{}, &InferenceError{Err: errors.New("no structured-record model loaded")}
	}

	code, confidence, err := g.forest.Predict(rec.Features())
	if err != nil {
		return Result{}, &InferenceError{Err: err}
	}
	return Result{Code: strconv.Itoa(code), Confidence: confidence}, nil
}

// ClassifyBatch classifies records in order. The batch is fail-closed: the
// first failing record aborts the whole batch with no partial results.
func (g *Gateway) ClassifyBatch(recs []normalize.CanonicalRecord) ([]Result, error) {
	results := make([]Result, 0, len(recs))
	for _, rec := range recs {
		result, err := g.ClassifyRecord(rec)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
