package optimizer

import (
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/geo"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// CompressionResult 历史轨迹压缩结果
type CompressionResult struct {
	Kept []models.GPSPoint
	// RemovedIDs 被删除点的ID列表
	RemovedIDs []string
	// CompressionRatio 压缩比例（百分数）：(原始 - 保留) / 原始 * 100
	CompressionRatio float64
}

// CompressSeries 压缩时间升序的轨迹点序列
//
// 规则：
//   - 首尾两点永远保留
//   - 距离上一个保留锚点小于 SameLocationRadius 的连续点构成一个静止段
//   - 静止段时长超过 StationaryPointInterval 时，从段起点开始每个间隔保留一个点
//     （段起点本身算第一个间隔槽，保证对已压缩序列重复压缩为幂等操作）
//   - 静止段时长不超过间隔时，只保留段内最后一个点
//
// 纯函数：不触达存储，删除由调用方执行
func CompressSeries(points []models.GPSPoint, cfg models.OptimizationConfig) CompressionResult {
	if len(points) <= 2 {
		return CompressionResult{Kept: points, CompressionRatio: 0}
	}

	keptIDs := make(map[string]bool, len(points))
	var kept []models.GPSPoint

	keep := func(p models.GPSPoint) {
		if !keptIDs[p.ID] {
			keptIDs[p.ID] = true
			kept = append(kept, p)
		}
	}

	anchor := points[0]
	keep(anchor)

	var run []models.GPSPoint
	closeRun := func() {
		for _, p := range thinStationaryRun(run, cfg.StationaryPointIntervalSeconds) {
			keep(p)
		}
		run = nil
	}

	for _, p := range points[1:] {
		distance := geo.DistanceMeters(anchor.Latitude, anchor.Longitude, p.Latitude, p.Longitude)
		if distance < cfg.SameLocationRadiusMeters {
			run = append(run, p)
			continue
		}
		// 超出半径：结算当前静止段，该点成为新锚点
		closeRun()
		keep(p)
		anchor = p
	}
	closeRun()

	// 序列末点永远保留
	last := points[len(points)-1]
	keep(last)

	// 保持原始时间顺序
	ordered := make([]models.GPSPoint, 0, len(kept))
	var removedIDs []string
	for _, p := range points {
		if keptIDs[p.ID] {
			ordered = append(ordered, p)
		} else {
			removedIDs = append(removedIDs, p.ID)
		}
	}

	ratio := float64(len(points)-len(ordered)) / float64(len(points)) * 100

	return CompressionResult{
		Kept:             ordered,
		RemovedIDs:       removedIDs,
		CompressionRatio: ratio,
	}
}

// thinStationaryRun 结算一个静止段，返回要保留的点
func thinStationaryRun(run []models.GPSPoint, intervalSeconds float64) []models.GPSPoint {
	if len(run) == 0 {
		return nil
	}

	start := run[0].Timestamp
	duration := run[len(run)-1].Timestamp.Sub(start).Seconds()

	if duration <= intervalSeconds {
		// 短静止段：只留最后一个点
		return run[len(run)-1:]
	}

	// 长静止段：从段起点开始每个间隔保留一个点
	var kept []models.GPSPoint
	nextSlot := 0.0
	for _, p := range run {
		elapsed := p.Timestamp.Sub(start).Seconds()
		if elapsed >= nextSlot {
			kept = append(kept, p)
			nextSlot = elapsed + intervalSeconds
		}
	}
	return kept
}
