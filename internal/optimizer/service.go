package optimizer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/cache"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/observability"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/repository"
)

// tripQueryLimit 整段行程加载的条数上限。超过该规模的行程只处理最近的
// tripQueryLimit 个点，loadTripAscending 会记录告警
const tripQueryLimit = 50000

// Service 轨迹优化服务：基于已持久化的行程点做采样决策、压缩与分析
//
// 注意：Compress 会删除存储中的点，与同一行程的并发摄取之间没有协调机制，
// 调用方需要自行保证压缩窗口内没有该行程的新数据写入
type Service struct {
	repo   repository.GPSPointRepository
	cache  cache.LastPointCache
	logger *zap.Logger
}

// NewService 创建轨迹优化服务
func NewService(repo repository.GPSPointRepository, lastPointCache cache.LastPointCache, logger *zap.Logger) *Service {
	return &Service{repo: repo, cache: lastPointCache, logger: logger}
}

// Decide 对候选点做自适应采样决策
// 上一个已保存点优先取Redis缓存，未命中时回落到存储查询
func (s *Service) Decide(ctx context.Context, candidate models.NormalizedPoint, patch *models.OptimizationConfigPatch) (SaveDecision, error) {
	cfg := models.MergeOptimizationConfig(patch)

	lastSaved, err := s.lastSavedSample(ctx, candidate.UserID, candidate.TripID)
	if err != nil {
		return SaveDecision{}, err
	}

	return Decide(Sample{
		Latitude:  candidate.Latitude,
		Longitude: candidate.Longitude,
		Timestamp: candidate.Timestamp,
		Speed:     candidate.Speed,
	}, lastSaved, cfg), nil
}

// Compress 压缩一段行程的历史轨迹并删除被淘汰的点
// 空行程或点数不足时返回零值结果，不报错
func (s *Service) Compress(ctx context.Context, userID string, tripID *string, patch *models.OptimizationConfigPatch) (CompressionResult, error) {
	cfg := models.MergeOptimizationConfig(patch)

	points, err := s.loadTripAscending(ctx, userID, tripID)
	if err != nil {
		return CompressionResult{}, err
	}

	result := CompressSeries(points, cfg)
	if len(result.RemovedIDs) == 0 {
		return result, nil
	}

	deleted, err := s.repo.DeletePoints(ctx, result.RemovedIDs)
	if err != nil {
		return CompressionResult{}, fmt.Errorf("failed to delete compressed points: %w", err)
	}
	observability.CompressionRemoved.Add(float64(deleted))

	s.logger.Info("Compressed trip track",
		zap.String("user_id", userID),
		zap.Stringp("trip_id", tripID),
		zap.Int("original_points", len(points)),
		zap.Int("kept_points", len(result.Kept)),
		zap.Int64("deleted_points", deleted),
		zap.Float64("compression_ratio", result.CompressionRatio),
	)

	return result, nil
}

// Analyze 分析一段行程的静止时段
func (s *Service) Analyze(ctx context.Context, userID string, tripID *string, patch *models.OptimizationConfigPatch) (TrackAnalysis, error) {
	cfg := models.MergeOptimizationConfig(patch)

	points, err := s.loadTripAscending(ctx, userID, tripID)
	if err != nil {
		return TrackAnalysis{}, err
	}
	return AnalyzeStationaryPeriods(points, cfg), nil
}

// Summarize 统计一段行程的存储冗余度
func (s *Service) Summarize(ctx context.Context, userID string, tripID *string) (RedundancySummary, error) {
	points, err := s.loadTripAscending(ctx, userID, tripID)
	if err != nil {
		return RedundancySummary{}, err
	}
	return SummarizeRedundancy(points), nil
}

// lastSavedSample 读取 (userId, tripId) 的最近保存点
func (s *Service) lastSavedSample(ctx context.Context, userID string, tripID *string) (*Sample, error) {
	tripKey := ""
	if tripID != nil {
		tripKey = *tripID
	}

	cached, err := s.cache.Get(ctx, userID, tripKey)
	if err != nil {
		// 缓存故障不阻塞决策，回落到存储查询
		s.logger.Warn("Last point cache read failed, falling back to repository",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	if cached != nil {
		return &Sample{
			Latitude:  cached.Latitude,
			Longitude: cached.Longitude,
			Timestamp: cached.Timestamp,
			Speed:     cached.Speed,
		}, nil
	}

	latest, err := s.repo.LatestPoint(ctx, userID, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest point: %w", err)
	}
	if latest == nil {
		return nil, nil
	}
	return &Sample{
		Latitude:  latest.Latitude,
		Longitude: latest.Longitude,
		Timestamp: latest.Timestamp,
		Speed:     latest.Speed,
	}, nil
}

// loadTripAscending 加载整段行程并转为时间升序
func (s *Service) loadTripAscending(ctx context.Context, userID string, tripID *string) ([]models.GPSPoint, error) {
	points, err := s.repo.QueryPoints(ctx, userID, tripID, &repository.QueryFilters{Limit: tripQueryLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to load trip points: %w", err)
	}

	if len(points) == tripQueryLimit {
		// 命中上限意味着行程可能被截断，早期的点（含行程首点）不在处理范围内
		s.logger.Warn("Trip point load hit the query limit, older points are excluded",
			zap.String("user_id", userID),
			zap.Stringp("trip_id", tripID),
			zap.Int("limit", tripQueryLimit),
		)
	}

	// 查询结果为时间倒序，这里反转为升序
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
