package geo

import (
	"fmt"
	"math"
)

// earthRadiusMeters 地球平均半径
const earthRadiusMeters = 6371000.0

// DistanceMeters 计算两个经纬度坐标之间的大圆距离（Haversine公式），单位米
// 相同坐标返回0，对跖点数值稳定
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// 浮点误差可能使 a 略大于1，Sqrt(1-a) 会产生 NaN
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// EncodePoint 将坐标编码为紧凑字符串键（6位小数，约0.1米精度）
// 用于缓存键与日志中的位置标识
func EncodePoint(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}
