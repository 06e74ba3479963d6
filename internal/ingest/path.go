package ingest

import (
	"strings"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// ParsePath 解析层级键路径，提取 (userId, tripId?, timestampKey?)
// 支持两种形式：
//
//	/gps/{userId}/{tripId}/{timestampKey}
//	/gps/{userId}/{timestampKey}          （无行程的个人定位点）
//
// 路径可能带有协议/主机前缀（上游推送的完整引用），解析前会剥离
func ParsePath(raw string) (models.ParsedPath, error) {
	path := raw

	// 剥离 scheme://host 前缀
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
		if slash := strings.Index(path, "/"); slash >= 0 {
			path = path[slash:]
		} else {
			path = ""
		}
	}

	path = strings.TrimLeft(path, "/")

	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	// 丢弃开头的字面量 "gps" 根段
	if len(segments) > 0 && segments[0] == "gps" {
		segments = segments[1:]
	}

	if len(segments) == 0 {
		return models.ParsedPath{}, NewValidationError(KindInvalidPath, "empty path: %q", raw)
	}
	if strings.TrimSpace(segments[0]) == "" {
		return models.ParsedPath{}, NewValidationError(KindInvalidPath, "empty userId in path: %q", raw)
	}

	switch {
	case len(segments) >= 3:
		tripID := segments[1]
		return models.ParsedPath{
			UserID:       segments[0],
			TripID:       &tripID,
			TimestampKey: segments[2],
		}, nil
	case len(segments) == 2:
		return models.ParsedPath{
			UserID:       segments[0],
			TripID:       nil,
			TimestampKey: segments[1],
		}, nil
	default:
		return models.ParsedPath{}, NewValidationError(KindInvalidPath, "path has too few segments: %q", raw)
	}
}
