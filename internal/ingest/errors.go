package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationKind 校验错误类别
type ValidationKind string

const (
	// KindInvalidPath 键路径结构不合法
	KindInvalidPath ValidationKind = "invalid_path"
	// KindMissingField 负载缺少必需字段
	KindMissingField ValidationKind = "missing_field"
	// KindNotANumber 数值字段无法解析为有限数
	KindNotANumber ValidationKind = "not_a_number"
	// KindInvalidTimestamp 时间戳无法解析
	KindInvalidTimestamp ValidationKind = "invalid_timestamp"
	// KindInvalidGpsData 坐标/时间校验失败的聚合错误
	KindInvalidGpsData ValidationKind = "invalid_gps_data"
)

// ValidationError 校验类错误：结构性问题，重试无意义，不可重试
type ValidationError struct {
	Kind    ValidationKind
	Message string
	// Violations 聚合错误（KindInvalidGpsData）包含的全部违规项
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewValidationError 创建单项校验错误
func NewValidationError(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewAggregateValidationError 创建聚合校验错误，violations 包含所有失败的检查项
func NewAggregateValidationError(violations []string) *ValidationError {
	return &ValidationError{Kind: KindInvalidGpsData, Violations: violations}
}

// IsValidation 判断错误是否为校验类（不可重试）
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationKindOf 返回错误的校验类别，非校验错误返回 ""
func ValidationKindOf(err error) ValidationKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}
