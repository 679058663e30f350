package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"mindserve/classify"
	"mindserve/db"
	"mindserve/normalize"
)

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test.db"
	if err := db.InitDB(dbPath); err != nil {
		panic(err)
	}

	code := m.Run()

	// Teardown
	db.Close()
	os.Remove(dbPath)
	os.Exit(code)
}

type fakeClassifier struct {
	code       string
	confidence float64
	err        error
}

func (f *fakeClassifier) ClassifyText(text string) (classify.Result, error) {
	if f.err != nil {
		return classify.Result{}, f.err
	}
	return classify.Result{Code: f.code, Confidence: f.confidence}, nil
}

// ClassifyBatch labels each record by its post_score so tests can check
// result ordering.
func (f *fakeClassifier) ClassifyBatch(recs []normalize.CanonicalRecord) ([]classify.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := make([]classify.Result, len(recs))
	for i, rec := range recs {
		results[i] = classify.Result{Code: strconv.Itoa(rec.PostScore), Confidence: f.confidence}
	}
	return results, nil
}

type stubMapper struct{}

func (stubMapper) Map(code string) string {
	table := map[string]string{
		"LABEL_0": "non_mental_health_issue",
		"LABEL_1": "mental_health_issue",
		"0":       "happy",
		"1":       "mental_health_issue",
		"2":       "neutral",
	}
	if label, ok := table[code]; ok {
		return label
	}
	return "Unknown"
}

func newTestMux(t *testing.T, c Classifier) *http.ServeMux {
	t.Helper()
	SetClassifier(c)
	SetLabelMapper(stubMapper{})
	if _, err := db.ClearHistory(); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	RegisterHandlers(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, body *bytes.Buffer, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(body.Bytes(), out); err != nil {
		t.Fatalf("invalid json %q: %v", body.String(), err)
	}
}

func TestHealthHandler(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{})

	w := do(t, mux, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var payload map[string]string
	decodeJSON(t, w.Body, &payload)
	if payload["status"] != "ok" {
		t.Errorf("status field = %q, want ok", payload["status"])
	}
}

func TestPredictScenario(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{code: "1", confidence: 0.93})

	w := do(t, mux, http.MethodPost, "/predict", "application/json",
		`{"text": "I feel hopeless", "caller_id": 7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp predictionResponse
	decodeJSON(t, w.Body, &resp)
	if resp.CallerID != 7 || resp.Text != "I feel hopeless" {
		t.Errorf("echoed request wrong: %+v", resp)
	}
	if resp.Label != "mental_health_issue" {
		t.Errorf("label = %q, want mental_health_issue", resp.Label)
	}
	if resp.Confidence != 0.93 {
		t.Errorf("confidence = %f, want 0.93", resp.Confidence)
	}

	// The prediction must show up in the caller's history.
	w = do(t, mux, http.MethodGet, "/history/7", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist struct {
		History []db.HistoryEntry `json:"history"`
	}
	decodeJSON(t, w.Body, &hist)
	if len(hist.History) != 1 {
		t.Fatalf("history has %d entries, want 1", len(hist.History))
	}
	entry := hist.History[0]
	if entry.CallerID != 7 || entry.Text != "I feel hopeless" || entry.Label != "mental_health_issue" {
		t.Errorf("history entry wrong: %+v", entry)
	}
	if entry.ID == 0 || entry.Timestamp.IsZero() {
		t.Errorf("store did not assign id/timestamp: %+v", entry)
	}
}

func TestPredictValidation(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{code: "1"})

	tests := []struct {
		name string
		body string
	}{
		{"missing caller_id", `{"text": "hello"}`},
		{"empty text", `{"text": "", "caller_id": 1}`},
		{"not json", `text=hello`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, mux, http.MethodPost, "/predict", "application/json", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var resp errorResponse
			decodeJSON(t, w.Body, &resp)
			if resp.Error.Kind != "validation" {
				t.Errorf("kind = %q, want validation", resp.Error.Kind)
			}
			if resp.Error.Message == "" {
				t.Error("error message is empty")
			}
		})
	}

	// Validation failures never write history.
	entries, err := db.QueryHistory(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("validation failure wrote %d history entries", len(entries))
	}
}

func TestPredictUnmappedCode(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{code: "LABEL_99", confidence: 0.6})

	w := do(t, mux, http.MethodPost, "/predict", "application/json",
		`{"text": "whatever", "caller_id": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (unmapped code degrades, not fails)", w.Code)
	}

	var resp predictionResponse
	decodeJSON(t, w.Body, &resp)
	if resp.Label != "Unknown" {
		t.Errorf("label = %q, want Unknown", resp.Label)
	}
}

func TestPredictInferenceError(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{
		err: &classify.InferenceError{Err: errors.New("incompatible feature count")},
	})

	w := do(t, mux, http.MethodPost, "/predict", "application/json",
		`{"text": "hello", "caller_id": 11}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var resp errorResponse
	decodeJSON(t, w.Body, &resp)
	if resp.Error.Kind != "inference" {
		t.Errorf("kind = %q, want inference", resp.Error.Kind)
	}

	// Failed classifications never reach history.
	entries, err := db.QueryHistory(11)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("inference failure wrote %d history entries", len(entries))
	}
}

func TestPredictBatchJSONOrdering(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{})

	w := do(t, mux, http.MethodPost, "/predict", "application/json",
		`[{"post_score": 1}, {"post_score": 2}, {"post_score": 0}]`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Predictions []string `json:"predictions"`
	}
	decodeJSON(t, w.Body, &resp)
	want := []string{"mental_health_issue", "neutral", "happy"}
	if len(resp.Predictions) != len(want) {
		t.Fatalf("got %d predictions, want %d", len(resp.Predictions), len(want))
	}
	for i := range want {
		if resp.Predictions[i] != want[i] {
			t.Errorf("predictions[%d] = %q, want %q", i, resp.Predictions[i], want[i])
		}
	}
}

func TestPredictCSV(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{})

	body := "post_score,upvote_ratio\n2,0.9\n1,\n"
	w := do(t, mux, http.MethodPost, "/predict", "text/csv", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Predictions []string `json:"predictions"`
	}
	decodeJSON(t, w.Body, &resp)
	if len(resp.Predictions) != 2 || resp.Predictions[0] != "neutral" || resp.Predictions[1] != "mental_health_issue" {
		t.Errorf("predictions = %v", resp.Predictions)
	}
}

func TestPredictCSVFailClosed(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{})

	body := "post_score\n1\nnot-a-number\n"
	w := do(t, mux, http.MethodPost, "/predict", "text/csv", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp errorResponse
	decodeJSON(t, w.Body, &resp)
	if resp.Error.Kind != "validation" {
		t.Errorf("kind = %q, want validation", resp.Error.Kind)
	}
}

func TestHistoryEmptyCaller(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{})

	w := do(t, mux, http.MethodGet, "/history/4242", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		History []db.HistoryEntry `json:"history"`
		Message string            `json:"message"`
	}
	decodeJSON(t, w.Body, &resp)
	if resp.History == nil || len(resp.History) != 0 {
		t.Errorf("history = %v, want empty array", resp.History)
	}
	if resp.Message == "" {
		t.Error("expected explanatory message for empty history")
	}
}

func TestHistoryInvalidCallerID(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{})

	w := do(t, mux, http.MethodGet, "/history/not-a-number", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHistoryClear(t *testing.T) {
	mux := newTestMux(t, &fakeClassifier{code: "1", confidence: 0.8})

	for i := 0; i < 3; i++ {
		w := do(t, mux, http.MethodPost, "/predict", "application/json",
			`{"text": "msg", "caller_id": 21}`)
		if w.Code != http.StatusOK {
			t.Fatalf("seed predict failed: %d", w.Code)
		}
	}

	w := do(t, mux, http.MethodDelete, "/history/clear", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp map[string]int64
	decodeJSON(t, w.Body, &resp)
	if resp["deleted_count"] != 3 {
		t.Errorf("deleted_count = %d, want 3", resp["deleted_count"])
	}

	w = do(t, mux, http.MethodGet, "/history/21", "", "")
	var hist struct {
		History []db.HistoryEntry `json:"history"`
	}
	decodeJSON(t, w.Body, &hist)
	if len(hist.History) != 0 {
		t.Errorf("history not empty after clear: %v", hist.History)
	}
}
