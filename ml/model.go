package ml

// Model classifies a fixed-width feature vector into a raw class code.
type Model interface {
	Predict(features []float64) (int, float64, error)
}

// ClassScore is one class's score from a model that exposes its full
// per-class distribution.
type ClassScore struct {
	Code  string  `json:"code"`
	Score float64 `json:"score"`
}

// TextModel scores free text across every class it knows. The returned
// slice preserves the model's native class ordering.
type TextModel interface {
	Scores(text string) ([]ClassScore, error)
}
