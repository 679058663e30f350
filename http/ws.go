package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mindserve/db"
	"mindserve/normalize"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: 生产环境应该检查 Origin 白名单
		return true
	},
}

// handlePredictStream 持久双向流：逐条接收文本，逐条返回标签。
// 会话状态机：OPEN → (receive → classify → send)* → CLOSED。
// 单条消息的分类失败通过带内错误帧报告，不中断会话。
func handlePredictStream(w http.ResponseWriter, r *http.Request) {
	var callerID int64
	hasCaller := false
	if s := r.URL.Query().Get("caller_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, &normalize.ValidationError{Field: "caller_id", Reason: "must be an integer"})
			return
		}
		callerID, hasCaller = id, true
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger.Info("stream session opened",
		zap.Int64("caller_id", callerID),
		zap.Bool("history_enabled", hasCaller))

	// 消息循环：每条消息同步处理，响应发出后才接收下一条
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// 对端正常关闭不算错误
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				logger.Error("stream read error", zap.Error(err))
			}
			break
		}

		reply := classifyStreamMessage(string(data), callerID, hasCaller)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			logger.Error("stream write error", zap.Error(err))
			break
		}
	}

	logger.Info("stream session closed", zap.Int64("caller_id", callerID))
}

// classifyStreamMessage 处理一条流消息，返回标签或带内错误帧
func classifyStreamMessage(text string, callerID int64, hasCaller bool) string {
	if strings.TrimSpace(text) == "" {
		return streamErrorFrame("validation", "empty message")
	}

	result, err := classifier.ClassifyText(text)
	if err != nil {
		kind, _ := errorKind(err)
		return streamErrorFrame(kind, err.Error())
	}
	label := labelMapper.Map(result.Code)

	if hasCaller {
		// 历史记录尽力而为，与同步路径一致
		confidence := result.Confidence
		if _, err := db.InsertHistory(callerID, text, label, &confidence); err != nil {
			logger.Error("stream history write failed",
				zap.Int64("caller_id", callerID),
				zap.Error(err))
		}
	}

	return label
}

func streamErrorFrame(kind, message string) string {
	return fmt.Sprintf("error[%s]: %s", kind, message)
}
