package classify

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"mindserve/ml"
	"mindserve/normalize"
)

type fakeTextModel struct {
	scores []ml.ClassScore
	err    error
	calls  int
}

func (f *fakeTextModel) Scores(text string) ([]ml.ClassScore, error) {
	f.calls++
	return f.scores, f.err
}

type fakeRecordModel struct {
	label      int
	confidence float64
	err        error
	// labelFromScore labels each record by its post_score, to check ordering.
	labelFromScore bool
	seen           [][]float64
}

func (f *fakeRecordModel) Predict(features []float64) (int, float64, error) {
	f.seen = append(f.seen, features)
	if f.labelFromScore {
		return int(features[0]), f.confidence, f.err
	}
	return f.label, f.confidence, f.err
}

func TestClassifyTextPicksMaxScore(t *testing.T) {
	g := &Gateway{
		text: &fakeTextModel{scores: []ml.ClassScore{
			{Code: "LABEL_0", Score: 0.2},
			{Code: "LABEL_1", Score: 0.8},
		}},
		logger: zap.NewNop(),
	}

	result, err := g.ClassifyText("I feel hopeless")
	if err != nil {
		t.Fatalf("ClassifyText failed: %v", err)
	}
	if result.Code != "LABEL_1" {
		t.Errorf("code = %q, want LABEL_1", result.Code)
	}
	if result.Confidence != 0.8 {
		t.Errorf("confidence = %f, want 0.8", result.Confidence)
	}
}

func TestClassifyTextTieBreaksToFirstClass(t *testing.T) {
	g := &Gateway{
		text: &fakeTextModel{scores: []ml.ClassScore{
			{Code: "LABEL_0", Score: 0.5},
			{Code: "LABEL_1", Score: 0.5},
		}},
		logger: zap.NewNop(),
	}

	result, err := g.ClassifyText("ambivalent")
	if err != nil {
		t.Fatal(err)
	}
	if result.Code != "LABEL_0" {
		t.Errorf("tie broke to %q, want first-encountered LABEL_0", result.Code)
	}
}

func TestClassifyTextErrors(t *testing.T) {
	g := &Gateway{logger: zap.NewNop()}
	var infErr *InferenceError
	if _, err := g.ClassifyText("anything"); !errors.As(err, &infErr) {
		t.Fatalf("no text model: got %v, want InferenceError", err)
	}

	g = &Gateway{
		text:   &fakeTextModel{err: errors.New("shape mismatch")},
		logger: zap.NewNop(),
	}
	if _, err := g.ClassifyText("anything"); !errors.As(err, &infErr) {
		t.Fatalf("model fault: got %v, want InferenceError", err)
	}
}

func TestClassifyTextCache(t *testing.T) {
	fake := &fakeTextModel{scores: []ml.ClassScore{{Code: "LABEL_1", Score: 0.9}}}
	g, err := New(Config{TextPath: writeTextArtifact(t), CacheSize: 8}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	g.text = fake

	for i := 0; i < 3; i++ {
		if _, err := g.ClassifyText("same message"); err != nil {
			t.Fatal(err)
		}
	}
	if fake.calls != 1 {
		t.Errorf("model invoked %d times for identical text, want 1", fake.calls)
	}
}

func TestClassifyBatchPreservesOrder(t *testing.T) {
	g := &Gateway{
		forest: &fakeRecordModel{labelFromScore: true, confidence: 1},
		logger: zap.NewNop(),
	}

	recs := make([]normalize.CanonicalRecord, 5)
	for i := range recs {
		recs[i] = normalize.CanonicalRecord{PostScore: i, UpvoteRatio: 0.5}
	}

	results, err := g.ClassifyBatch(recs)
	if err != nil {
		t.Fatalf("ClassifyBatch failed: %v", err)
	}
	if len(results) != len(recs) {
		t.Fatalf("got %d results, want %d", len(results), len(recs))
	}
	for i, result := range results {
		if result.Code != strconv.Itoa(i) {
			t.Errorf("results[%d].Code = %q, want %q", i, result.Code, strconv.Itoa(i))
		}
	}
}

func TestClassifyBatchFailClosed(t *testing.T) {
	g := &Gateway{
		forest: &fakeRecordModel{err: errors.New("incompatible feature count")},
		logger: zap.NewNop(),
	}

	results, err := g.ClassifyBatch([]normalize.CanonicalRecord{{}, {}})
	if err == nil {
		t.Fatal("expected error")
	}
	if results != nil {
		t.Fatalf("partial results returned: %v", results)
	}
}

func TestNewModelLoadError(t *testing.T) {
	var loadErr *ModelLoadError

	_, err := New(Config{}, zap.NewNop())
	if !errors.As(err, &loadErr) {
		t.Fatalf("no artifacts: got %v, want ModelLoadError", err)
	}

	_, err = New(Config{TextPath: "/nonexistent/model.json"}, zap.NewNop())
	if !errors.As(err, &loadErr) {
		t.Fatalf("missing artifact: got %v, want ModelLoadError", err)
	}
}

func TestNewLoadsArtifacts(t *testing.T) {
	g, err := New(Config{TextPath: writeTextArtifact(t)}, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result, err := g.ClassifyText("so hopeless")
	if err != nil {
		t.Fatalf("ClassifyText failed: %v", err)
	}
	if result.Code != "LABEL_1" {
		t.Errorf("code = %q, want LABEL_1", result.Code)
	}
}

func writeTextArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "text.json")
	artifact := `{"classes":[` +
		`{"code":"LABEL_0","bias":0.1,"keywords":{"fine":1.0}},` +
		`{"code":"LABEL_1","keywords":{"hopeless":3.0}}]}`
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
