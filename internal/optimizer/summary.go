package optimizer

import (
	"fmt"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/geo"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// 冗余判定的固定启发式阈值（独立于 OptimizationConfig）
const (
	redundantMaxDistanceMeters = 10.0
	redundantMaxElapsedSeconds = 60.0
)

// estimatedBytesPerPoint 单个存储点的估算字节数（含索引开销）
const estimatedBytesPerPoint = 120

// RedundancySummary 行程存储冗余度报告
type RedundancySummary struct {
	TotalPoints           int
	RedundantPoints       int
	EstimatedStorageBytes int64
	PotentialSavingsBytes int64
	Recommendations       []string
}

// SummarizeRedundancy 统计时间升序轨迹的冗余点并给出优化建议
//
// 与前一点距离小于10米且间隔小于60秒的点视为冗余；
// 冗余率超过30%、点数超过1000或静止时间占比超过50%时生成建议
func SummarizeRedundancy(points []models.GPSPoint) RedundancySummary {
	summary := RedundancySummary{
		TotalPoints:           len(points),
		EstimatedStorageBytes: int64(len(points)) * estimatedBytesPerPoint,
	}
	if len(points) == 0 {
		return summary
	}

	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		curr := points[i]
		distance := geo.DistanceMeters(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)
		elapsed := curr.Timestamp.Sub(prev.Timestamp).Seconds()
		if distance < redundantMaxDistanceMeters && elapsed < redundantMaxElapsedSeconds {
			summary.RedundantPoints++
		}
	}
	summary.PotentialSavingsBytes = int64(summary.RedundantPoints) * estimatedBytesPerPoint

	redundancyRate := float64(summary.RedundantPoints) / float64(len(points)) * 100
	if redundancyRate > 30 {
		summary.Recommendations = append(summary.Recommendations, fmt.Sprintf(
			"%.1f%% of points are redundant; run track compression to reclaim ~%d bytes",
			redundancyRate, summary.PotentialSavingsBytes))
	}
	if len(points) > 1000 {
		summary.Recommendations = append(summary.Recommendations, fmt.Sprintf(
			"trip has %d points; consider compressing historical data", len(points)))
	}

	analysis := AnalyzeStationaryPeriods(points, models.DefaultOptimizationConfig())
	if analysis.TotalDurationSeconds > 0 &&
		analysis.StationaryDurationSeconds/analysis.TotalDurationSeconds > 0.5 {
		summary.Recommendations = append(summary.Recommendations, fmt.Sprintf(
			"stationary time is %.0f%% of the trip; increase the stationary sampling interval",
			analysis.StationaryDurationSeconds/analysis.TotalDurationSeconds*100))
	}

	return summary
}
