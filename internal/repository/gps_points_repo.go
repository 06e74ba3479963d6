package repository

import (
	"context"
	"time"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// QueryFilters 轨迹点查询过滤条件
type QueryFilters struct {
	BeginTime *time.Time
	EndTime   *time.Time
	// Limit 返回条数上限，<=0 时取默认值100
	Limit int
}

// DefaultQueryLimit 查询默认条数上限
const DefaultQueryLimit = 100

// GPSPointRepository 轨迹点存储接口
type GPSPointRepository interface {
	// Upsert 幂等写入：同一 (userId, tripId, timestamp) 键只保留一行，重复写入合并更新
	Upsert(ctx context.Context, point models.NormalizedPoint) (*models.GPSPoint, error)

	// QueryPoints 查询轨迹点，按时间倒序（最新在前），可选时间范围过滤
	QueryPoints(ctx context.Context, userID string, tripID *string, filters *QueryFilters) ([]models.GPSPoint, error)

	// LatestPoint 查询最近一个轨迹点，不存在时返回 (nil, nil)
	LatestPoint(ctx context.Context, userID string, tripID *string) (*models.GPSPoint, error)

	// DeletePoints 按ID批量删除（仅供压缩流程调用），返回删除行数
	DeletePoints(ctx context.Context, ids []string) (int64, error)
}
