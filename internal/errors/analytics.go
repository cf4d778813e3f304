package errors

import (
	"fmt"
	"sync"
	"time"
)

// ErrorAnalytics 错误分析
type ErrorAnalytics struct {
	mu            sync.RWMutex
	TotalErrors   int
	ErrorsByCode  map[ErrorCode]int
	ErrorsByPath  map[string]int
	ErrorPatterns map[string]int
	LastErrorTime time.Time
}

// NewErrorAnalytics 创建错误分析器
func NewErrorAnalytics() *ErrorAnalytics {
	return &ErrorAnalytics{
		ErrorsByCode:  make(map[ErrorCode]int),
		ErrorsByPath:  make(map[string]int),
		ErrorPatterns: make(map[string]int),
	}
}

// Record 记录错误
func (a *ErrorAnalytics) Record(err *TracedError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.TotalErrors++
	a.ErrorsByCode[err.Code]++
	a.ErrorsByPath[err.Context.Path]++
	a.LastErrorTime = err.Timestamp

	if pattern := a.identifyPattern(err); pattern != "" {
		a.ErrorPatterns[pattern]++
	}
}

// identifyPattern 将错误归类为 "方法 路径 -> 错误码"
func (a *ErrorAnalytics) identifyPattern(err *TracedError) string {
	if err.Context.Path == "" {
		return ""
	}
	return fmt.Sprintf("%s %s -> %d", err.Context.Method, err.Context.Path, err.Code)
}

// GetStats 获取统计信息
func (a *ErrorAnalytics) GetStats() map[string]interface{} {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byCode := make(map[ErrorCode]int, len(a.ErrorsByCode))
	for k, v := range a.ErrorsByCode {
		byCode[k] = v
	}
	byPath := make(map[string]int, len(a.ErrorsByPath))
	for k, v := range a.ErrorsByPath {
		byPath[k] = v
	}
	patterns := make(map[string]int, len(a.ErrorPatterns))
	for k, v := range a.ErrorPatterns {
		patterns[k] = v
	}

	return map[string]interface{}{
		"total_errors":   a.TotalErrors,
		"errors_by_code": byCode,
		"errors_by_path": byPath,
		"error_patterns": patterns,
		"last_error":     a.LastErrorTime,
	}
}
