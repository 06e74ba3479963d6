package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/cache"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/observability"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/optimizer"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/repository"
)

// Pipeline 单点入库管道：解析 → 归一化 → 采样决策 → 带重试的幂等入库
type Pipeline struct {
	repo      repository.GPSPointRepository
	cache     cache.LastPointCache
	optimizer *optimizer.Service
	retry     *RetryExecutor
	logger    *zap.Logger

	// 关停后丢弃新事件，不入队
	shuttingDown atomic.Bool
}

// NewPipeline 创建入库管道
func NewPipeline(
	repo repository.GPSPointRepository,
	lastPointCache cache.LastPointCache,
	optimizerService *optimizer.Service,
	retry *RetryExecutor,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		repo:      repo,
		cache:     lastPointCache,
		optimizer: optimizerService,
		retry:     retry,
		logger:    logger,
	}
}

var _ PointSink = (*Pipeline)(nil)

// Shutdown 设置关停标志，之后提交的点全部丢弃
func (p *Pipeline) Shutdown() {
	p.shuttingDown.Store(true)
}

// SubmitPoint 处理单个GPS点负载
// 校验失败返回校验错误（由调用方隔离），瞬时存储故障在内部重试后放弃，不向上传播
func (p *Pipeline) SubmitPoint(ctx context.Context, rawPath string, payload map[string]interface{}) error {
	if p.shuttingDown.Load() {
		p.logger.Debug("Dropping point, pipeline is shutting down", zap.String("path", rawPath))
		return nil
	}

	parsed, err := ParsePath(rawPath)
	if err != nil {
		observability.ValidationFailures.WithLabelValues(string(ValidationKindOf(err))).Inc()
		return err
	}

	point, err := CoercePoint(parsed, rawPath, payload)
	if err != nil {
		observability.ValidationFailures.WithLabelValues(string(ValidationKindOf(err))).Inc()
		return err
	}

	// 自适应采样决策：不值得保存的点直接丢弃，不落库
	decision, err := p.optimizer.Decide(ctx, point, nil)
	if err != nil {
		// 决策依赖（缓存/查询）故障时不丢数据，按保存处理
		p.logger.Warn("Sampling decision failed, saving point anyway",
			zap.String("path", rawPath),
			zap.Error(err),
		)
		decision = optimizer.SaveDecision{Saved: true, Reason: optimizer.ReasonDecisionUnavailable}
	}
	if !decision.Saved {
		observability.PointsSkipped.WithLabelValues(string(decision.Reason)).Inc()
		p.logger.Debug("Point skipped by sampling decision",
			zap.String("path", rawPath),
			zap.String("reason", string(decision.Reason)),
			zap.Float64("distance_m", decision.DistanceMeters),
			zap.Float64("elapsed_s", decision.ElapsedSeconds),
		)
		return nil
	}

	start := time.Now()
	result := p.retry.Execute(ctx, "gps_point_upsert", func(ctx context.Context) error {
		saved, err := p.repo.Upsert(ctx, point)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", rawPath, err)
		}
		p.updateLastPoint(ctx, saved)
		return nil
	})
	observability.ObserveUpsertLatency(start)

	if result != ResultOK {
		observability.PointsSkipped.WithLabelValues("retry_exhausted").Inc()
		return nil
	}

	observability.PointsUpserted.Inc()
	p.logger.Debug("Point persisted",
		zap.String("path", rawPath),
		zap.String("user_id", point.UserID),
		zap.String("reason", string(decision.Reason)),
	)
	return nil
}

// updateLastPoint 入库成功后刷新最近保存点缓存（尽力而为）
func (p *Pipeline) updateLastPoint(ctx context.Context, saved *models.GPSPoint) {
	err := p.cache.Set(ctx, saved.UserID, saved.TripIDValue(), &cache.LastPoint{
		Latitude:  saved.Latitude,
		Longitude: saved.Longitude,
		Timestamp: saved.Timestamp,
		Speed:     saved.Speed,
	})
	if err != nil {
		p.logger.Warn("Failed to update last point cache",
			zap.String("user_id", saved.UserID),
			zap.Error(err),
		)
	}
}
