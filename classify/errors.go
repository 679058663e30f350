package classify

import "fmt"

// ModelLoadError indicates the model artifact was missing or malformed at
// startup. It signals misconfiguration, so it is fatal and never retried.
type ModelLoadError struct {
	Path string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("loading model %s: %v", e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// InferenceError indicates the model rejected an invocation. Inference
// failures are deterministic for a given input, so callers must not retry.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error { return e.Err }
