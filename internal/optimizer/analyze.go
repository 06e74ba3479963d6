package optimizer

import (
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/geo"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// TrackAnalysis 行程静止时段分析结果
type TrackAnalysis struct {
	TotalDurationSeconds      float64
	MovingDurationSeconds     float64
	StationaryDurationSeconds float64
	Periods                   []models.StationaryPeriod
}

// AnalyzeStationaryPeriods 识别时间升序轨迹中的静止时段
//
// 连续两点距离小于 SameLocationRadius 时延续当前时段，
// 距离超出半径或序列结束时结算；只有时长达到 StationaryPointInterval 的时段才计入结果
func AnalyzeStationaryPeriods(points []models.GPSPoint, cfg models.OptimizationConfig) TrackAnalysis {
	if len(points) < 2 {
		return TrackAnalysis{}
	}

	total := points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Seconds()

	var periods []models.StationaryPeriod
	var stationaryTotal float64

	periodStart := -1 // 当前静止时段的起始下标，-1 表示不在静止时段中

	closePeriod := func(endIdx int) {
		if periodStart < 0 {
			return
		}
		start := points[periodStart]
		end := points[endIdx]
		duration := end.Timestamp.Sub(start.Timestamp).Seconds()
		if duration >= cfg.StationaryPointIntervalSeconds {
			periods = append(periods, models.StationaryPeriod{
				StartTime:       start.Timestamp,
				EndTime:         end.Timestamp,
				DurationSeconds: duration,
				AnchorLatitude:  start.Latitude,
				AnchorLongitude: start.Longitude,
				PointCount:      endIdx - periodStart + 1,
			})
			stationaryTotal += duration
		}
		periodStart = -1
	}

	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		curr := points[i]
		distance := geo.DistanceMeters(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)

		if distance < cfg.SameLocationRadiusMeters {
			if periodStart < 0 {
				periodStart = i - 1
			}
			continue
		}
		// 半径条件被打破：以前一个点结算当前时段
		closePeriod(i - 1)
	}
	closePeriod(len(points) - 1)

	return TrackAnalysis{
		TotalDurationSeconds:      total,
		MovingDurationSeconds:     total - stationaryTotal,
		StationaryDurationSeconds: stationaryTotal,
		Periods:                   periods,
	}
}
