package http

import (
	"go.uber.org/zap"

	"mindserve/classify"
	"mindserve/normalize"
)

// Classifier 分类能力接口
type Classifier interface {
	ClassifyText(text string) (classify.Result, error)
	ClassifyBatch(recs []normalize.CanonicalRecord) ([]classify.Result, error)
}

// LabelMapper 标签映射接口
type LabelMapper interface {
	Map(rawCode string) string
}

var (
	classifier  Classifier
	labelMapper LabelMapper
	logger      = zap.NewNop()
)

// SetClassifier 设置分类服务
func SetClassifier(c Classifier) {
	classifier = c
}

// SetLabelMapper 设置标签映射器
func SetLabelMapper(m LabelMapper) {
	labelMapper = m
}

// SetLogger 设置日志器
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l
	}
}
