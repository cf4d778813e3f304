package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type tempErr struct{}

func (tempErr) Error() string   { return "temporary" }
func (tempErr) Temporary() bool { return true }

// TestWithRetryRecovers 测试临时错误重试后成功
func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return tempErr{}
		}
		return nil
	}, 5, time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

// TestWithRetryStopsOnPermanentError 测试非临时错误不重试
func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := WithRetry(context.Background(), func() error {
		calls++
		return permanent
	}, 5, time.Millisecond)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

// TestWithRetryHonoursContext 测试取消上下文后停止重试
func TestWithRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetry(ctx, func() error { return tempErr{} }, 5, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
