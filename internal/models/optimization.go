package models

import "time"

// OptimizationConfig 轨迹优化参数（不可变值对象，按调用合并默认值与覆盖项）
type OptimizationConfig struct {
	// MinMovementDistanceMeters 判定为有效移动的最小距离
	MinMovementDistanceMeters float64

	// StationaryPointIntervalSeconds 静止状态下保留采样点的时间间隔
	StationaryPointIntervalSeconds float64

	// MaxStationaryDurationSeconds 单个静止段的最大时长（超过则视为长时间停留）
	MaxStationaryDurationSeconds float64

	// StationarySpeedThresholdKmh 低于该速度视为静止
	StationarySpeedThresholdKmh float64

	// SameLocationRadiusMeters 判定为同一位置的半径
	SameLocationRadiusMeters float64
}

// DefaultOptimizationConfig 默认优化参数
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		MinMovementDistanceMeters:      10,
		StationaryPointIntervalSeconds: 300,
		MaxStationaryDurationSeconds:   1800,
		StationarySpeedThresholdKmh:    5,
		SameLocationRadiusMeters:       25,
	}
}

// OptimizationConfigPatch 调用方的部分覆盖项，nil字段沿用默认值
type OptimizationConfigPatch struct {
	MinMovementDistanceMeters      *float64
	StationaryPointIntervalSeconds *float64
	MaxStationaryDurationSeconds   *float64
	StationarySpeedThresholdKmh    *float64
	SameLocationRadiusMeters       *float64
}

// MergeOptimizationConfig 合并默认配置与覆盖项，返回新值（不修改默认配置）
func MergeOptimizationConfig(patch *OptimizationConfigPatch) OptimizationConfig {
	cfg := DefaultOptimizationConfig()
	if patch == nil {
		return cfg
	}
	if patch.MinMovementDistanceMeters != nil {
		cfg.MinMovementDistanceMeters = *patch.MinMovementDistanceMeters
	}
	if patch.StationaryPointIntervalSeconds != nil {
		cfg.StationaryPointIntervalSeconds = *patch.StationaryPointIntervalSeconds
	}
	if patch.MaxStationaryDurationSeconds != nil {
		cfg.MaxStationaryDurationSeconds = *patch.MaxStationaryDurationSeconds
	}
	if patch.StationarySpeedThresholdKmh != nil {
		cfg.StationarySpeedThresholdKmh = *patch.StationarySpeedThresholdKmh
	}
	if patch.SameLocationRadiusMeters != nil {
		cfg.SameLocationRadiusMeters = *patch.SameLocationRadiusMeters
	}
	return cfg
}

// StationaryPeriod 识别出的静止时段（派生结果，不持久化）
type StationaryPeriod struct {
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	AnchorLatitude  float64
	AnchorLongitude float64
	PointCount      int
}
