package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mindserve/classify"
	"mindserve/db"
	"mindserve/normalize"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// errorKind classifies an error into the taxonomy and its HTTP status.
func errorKind(err error) (string, int) {
	var verr *normalize.ValidationError
	var ierr *classify.InferenceError

	switch {
	case errors.As(err, &verr):
		return "validation", http.StatusBadRequest
	case errors.As(err, &ierr):
		return "inference", http.StatusInternalServerError
	case errors.Is(err, db.ErrStorageUnavailable):
		return "storage", http.StatusServiceUnavailable
	default:
		return "internal", http.StatusInternalServerError
	}
}

// writeError 统一错误响应
func writeError(w http.ResponseWriter, err error) {
	kind, status := errorKind(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", kind), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Kind: kind, Message: err.Error()}})
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}
