package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mindserve/db"
	"mindserve/normalize"
)

// RegisterHandlers 注册所有处理器
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /predict", handlePredict)
	mux.HandleFunc("GET /history/{caller_id}", handleHistory)
	mux.HandleFunc("DELETE /history/clear", handleHistoryClear)
	mux.HandleFunc("GET /ws/predict", handlePredictStream)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// predictionRequest 单条文本预测请求
type predictionRequest struct {
	Text     string `json:"text"`
	CallerID *int64 `json:"caller_id"`
}

// predictionResponse 单条文本预测响应
type predictionResponse struct {
	CallerID   int64   `json:"caller_id"`
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// handlePredict 按请求内容类型分发：JSON单条、JSON批量、CSV批量
func handlePredict(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "text/csv"):
		handlePredictCSV(w, r.Body)

	case strings.HasPrefix(contentType, "multipart/form-data"):
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, &normalize.ValidationError{Reason: "multipart upload needs a \"file\" field: " + err.Error()})
			return
		}
		defer file.Close()
		handlePredictCSV(w, file)

	default:
		handlePredictJSON(w, r)
	}
}

func handlePredictJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, &normalize.ValidationError{Reason: "reading request body: " + err.Error()})
		return
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		writeError(w, &normalize.ValidationError{Reason: "empty request body"})
		return
	}

	// 数组为结构化记录批量，对象为单条文本
	if trimmed[0] == '[' {
		records, err := normalize.Records(body)
		if err != nil {
			writeError(w, err)
			return
		}
		respondBatch(w, records)
		return
	}

	var req predictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, &normalize.ValidationError{Reason: "body is not a valid prediction request: " + err.Error()})
		return
	}
	if req.CallerID == nil {
		writeError(w, &normalize.ValidationError{Field: "caller_id", Reason: "required"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, &normalize.ValidationError{Field: "text", Reason: "required"})
		return
	}

	result, err := classifier.ClassifyText(req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	label := labelMapper.Map(result.Code)

	// 历史记录尽力而为：推理结果已产生，存储失败不影响响应
	confidence := result.Confidence
	if _, err := db.InsertHistory(*req.CallerID, req.Text, label, &confidence); err != nil {
		logger.Error("history write failed",
			zap.Int64("caller_id", *req.CallerID),
			zap.Error(err))
	}

	respondJSON(w, predictionResponse{
		CallerID:   *req.CallerID,
		Text:       req.Text,
		Label:      label,
		Confidence: result.Confidence,
	})
}

func handlePredictCSV(w http.ResponseWriter, body io.Reader) {
	records, err := normalize.CSV(body)
	if err != nil {
		writeError(w, err)
		return
	}
	respondBatch(w, records)
}

// respondBatch 批量分类并按输入顺序返回标签
func respondBatch(w http.ResponseWriter, records []normalize.CanonicalRecord) {
	results, err := classifier.ClassifyBatch(records)
	if err != nil {
		writeError(w, err)
		return
	}

	predictions := make([]string, len(results))
	for i, result := range results {
		predictions[i] = labelMapper.Map(result.Code)
	}
	respondJSON(w, map[string][]string{"predictions": predictions})
}

func handleHistory(w http.ResponseWriter, r *http.Request) {
	callerID, err := strconv.ParseInt(r.PathValue("caller_id"), 10, 64)
	if err != nil {
		writeError(w, &normalize.ValidationError{Field: "caller_id", Reason: "must be an integer"})
		return
	}

	entries, err := db.QueryHistory(callerID)
	if err != nil {
		writeError(w, err)
		return
	}

	if len(entries) == 0 {
		respondJSON(w, map[string]interface{}{
			"history": []db.HistoryEntry{},
			"message": fmt.Sprintf("no history found for caller %d", callerID),
		})
		return
	}

	respondJSON(w, map[string]interface{}{"history": entries})
}

func handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := db.ClearHistory()
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, map[string]int64{"deleted_count": deleted})
}
