package optimizer

import (
	"time"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/geo"
	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// SaveReason 采样决策原因
type SaveReason string

const (
	// ReasonFirstPoint 行程首点，必存
	ReasonFirstPoint SaveReason = "first_point"
	// ReasonMovementDetected 移动距离达到阈值
	ReasonMovementDetected SaveReason = "movement_detected"
	// ReasonStationaryInterval 静止状态下的定时保活采样
	ReasonStationaryInterval SaveReason = "stationary_interval"
	// ReasonTimeInterval 疑似GPS漂移但距上次保存已超时，按时间保底保存
	ReasonTimeInterval SaveReason = "time_interval"
	// ReasonResubmission 与上个保存点同时间戳的重传，必须合并入库
	ReasonResubmission SaveReason = "resubmission"
	// ReasonDecisionUnavailable 决策依赖故障，保守保存
	ReasonDecisionUnavailable SaveReason = "decision_unavailable"
	// ReasonStationarySkip 静止且未到采样间隔，跳过
	ReasonStationarySkip SaveReason = "stationary_skip"
	// ReasonMinorMovementSkip 微小移动（疑似漂移）且未到采样间隔，跳过
	ReasonMinorMovementSkip SaveReason = "minor_movement_skip"
)

// Sample 采样决策的输入点
type Sample struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	Speed     *float64 // km/h，可为空
}

// SaveDecision 采样决策结果
type SaveDecision struct {
	Saved          bool
	Reason         SaveReason
	DistanceMeters float64
	ElapsedSeconds float64
}

// Decide 自适应采样决策：判断候选点相对上一个已保存点是否值得保存
//
// 静止（距离小于同位置半径且速度低于阈值）时按 StationaryPointInterval 定时采样；
// 移动时距离达到 MinMovementDistance 才保存，
// 距离不足视为GPS漂移，超过采样间隔后按时间保底保存
func Decide(candidate Sample, lastSaved *Sample, cfg models.OptimizationConfig) SaveDecision {
	if lastSaved == nil {
		return SaveDecision{Saved: true, Reason: ReasonFirstPoint}
	}

	distance := geo.DistanceMeters(
		lastSaved.Latitude, lastSaved.Longitude,
		candidate.Latitude, candidate.Longitude,
	)
	elapsed := candidate.Timestamp.Sub(lastSaved.Timestamp).Seconds()

	// 同时间戳重传是对同一自然键的更新，不参与采样过滤：
	// 无论位移多小都要入库，保证同键重复摄取收敛到最后一次的值
	if elapsed == 0 {
		return SaveDecision{Saved: true, Reason: ReasonResubmission, DistanceMeters: distance}
	}

	isStationary := distance < cfg.SameLocationRadiusMeters &&
		(candidate.Speed == nil || *candidate.Speed < cfg.StationarySpeedThresholdKmh)

	if isStationary {
		if elapsed >= cfg.StationaryPointIntervalSeconds {
			return SaveDecision{Saved: true, Reason: ReasonStationaryInterval, DistanceMeters: distance, ElapsedSeconds: elapsed}
		}
		return SaveDecision{Saved: false, Reason: ReasonStationarySkip, DistanceMeters: distance, ElapsedSeconds: elapsed}
	}

	if distance >= cfg.MinMovementDistanceMeters {
		return SaveDecision{Saved: true, Reason: ReasonMovementDetected, DistanceMeters: distance, ElapsedSeconds: elapsed}
	}

	// 移动但距离不足：疑似漂移，按时间保底
	if elapsed >= cfg.StationaryPointIntervalSeconds {
		return SaveDecision{Saved: true, Reason: ReasonTimeInterval, DistanceMeters: distance, ElapsedSeconds: elapsed}
	}
	return SaveDecision{Saved: false, Reason: ReasonMinorMovementSkip, DistanceMeters: distance, ElapsedSeconds: elapsed}
}
