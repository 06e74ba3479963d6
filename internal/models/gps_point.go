package models

import "time"

// GPSPoint 持久化的GPS轨迹点
// 自然键为 (UserID, TripID, Timestamp)，同键重复上报会合并更新而不是新增
type GPSPoint struct {
	ID        string
	UserID    string
	TripID    *string // 可为空：不属于任何行程的个人定位点
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	Accuracy  *float64
	Speed     *float64 // km/h
	Heading   *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TripIDValue 返回TripID的字符串值，空TripID返回 ""
func (p *GPSPoint) TripIDValue() string {
	if p.TripID == nil {
		return ""
	}
	return *p.TripID
}

// ParsedPath 从流事件的层级键路径解析出的键信息（临时对象，不持久化）
type ParsedPath struct {
	UserID       string
	TripID       *string
	TimestampKey string
}

// NormalizedPoint 归一化后的待入库点（坐标与时间戳均已通过校验）
type NormalizedPoint struct {
	UserID    string
	TripID    *string
	Latitude  float64
	Longitude float64
	Timestamp time.Time
	Accuracy  *float64
	Speed     *float64
	Heading   *float64
	RawPath   string
}
