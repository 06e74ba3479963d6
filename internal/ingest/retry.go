package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/observability"
)

// Result 重试执行结果
type Result string

const (
	// ResultOK 操作成功
	ResultOK Result = "ok"
	// ResultSkipped 操作被放弃（校验失败或重试次数耗尽），流式摄取不中断
	ResultSkipped Result = "skipped"
)

// RetryExecutor 有界重试执行器
// 校验类错误不重试（结构性问题重试无意义），瞬时错误按 delay = baseDelay * attempt 退避重试
type RetryExecutor struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

// NewRetryExecutor 创建重试执行器
// maxAttempts <= 0 时取默认值3，baseDelay <= 0 时取默认值1秒
func NewRetryExecutor(maxAttempts int, baseDelay time.Duration, logger *zap.Logger) *RetryExecutor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &RetryExecutor{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      logger,
	}
}

// Execute 执行操作，失败时按策略重试
// 返回 ResultSkipped 而不是错误：单个点的失败绝不能中断流监听
func (e *RetryExecutor) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) Result {
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return ResultOK
		}

		// 校验类错误只尝试一次：重试结构性非法的输入不可能成功
		if IsValidation(err) {
			e.logger.Warn("Validation failed, skipping without retry",
				zap.String("operation", operation),
				zap.String("kind", string(ValidationKindOf(err))),
				zap.Error(err),
			)
			return ResultSkipped
		}

		lastErr = err
		if attempt == e.maxAttempts {
			break
		}

		// 只统计真正的重试（首次尝试失败本身不算重试）
		observability.RetryAttempts.Inc()

		delay := e.baseDelay * time.Duration(attempt)
		e.logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			e.logger.Warn("Retry aborted by context cancellation",
				zap.String("operation", operation),
			)
			return ResultSkipped
		case <-time.After(delay):
		}
	}

	e.logger.Error("Operation failed after all retry attempts, skipping",
		zap.String("operation", operation),
		zap.Int("attempts", e.maxAttempts),
		zap.Error(lastErr),
	)
	return ResultSkipped
}
