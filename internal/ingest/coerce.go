package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

// CoercePoint 将松散类型的点负载归一化为严格的 NormalizedPoint
// 字段别名：lat/latitude、long/longitude（短名优先）
// 时间戳来源优先级：路径中的 timestampKey > 负载的 timestamp 字段 > 当前时间
func CoercePoint(path models.ParsedPath, rawPath string, payload map[string]interface{}) (models.NormalizedPoint, error) {
	latRaw, ok := lookupAlias(payload, "lat", "latitude")
	if !ok {
		return models.NormalizedPoint{}, NewValidationError(KindMissingField,
			"missing latitude field, available keys: [%s]", availableKeys(payload))
	}
	lonRaw, ok := lookupAlias(payload, "long", "longitude")
	if !ok {
		return models.NormalizedPoint{}, NewValidationError(KindMissingField,
			"missing longitude field, available keys: [%s]", availableKeys(payload))
	}

	lat, err := coerceNumber("latitude", latRaw)
	if err != nil {
		return models.NormalizedPoint{}, err
	}
	lon, err := coerceNumber("longitude", lonRaw)
	if err != nil {
		return models.NormalizedPoint{}, err
	}

	ts, err := resolveTimestamp(path.TimestampKey, payload)
	if err != nil {
		return models.NormalizedPoint{}, err
	}

	// 坐标与时间的最终校验：收集所有违规项后一次性返回
	var violations []string
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		violations = append(violations, "latitude is not finite")
	} else if lat < -90 || lat > 90 {
		violations = append(violations, fmt.Sprintf("latitude %v out of range [-90, 90]", lat))
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		violations = append(violations, "longitude is not finite")
	} else if lon < -180 || lon > 180 {
		violations = append(violations, fmt.Sprintf("longitude %v out of range [-180, 180]", lon))
	}
	if ts.IsZero() {
		violations = append(violations, "timestamp is not a valid instant")
	}
	if len(violations) > 0 {
		return models.NormalizedPoint{}, NewAggregateValidationError(violations)
	}

	point := models.NormalizedPoint{
		UserID:    path.UserID,
		TripID:    path.TripID,
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ts,
		RawPath:   rawPath,
	}

	// 可选数值元数据：解析失败时忽略，不影响主流程
	point.Accuracy = optionalNumber(payload, "accuracy")
	point.Speed = optionalNumber(payload, "speed")
	point.Heading = optionalNumber(payload, "heading")

	return point, nil
}

// lookupAlias 按优先级顺序查找字段别名
func lookupAlias(payload map[string]interface{}, names ...string) (interface{}, bool) {
	for _, name := range names {
		if v, ok := payload[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func availableKeys(payload map[string]interface{}) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// coerceNumber 接受字符串与数值两种表示，非有限数返回 KindNotANumber
func coerceNumber(field string, raw interface{}) (float64, error) {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, NewValidationError(KindNotANumber, "%s: cannot parse %q as number", field, v.String())
		}
		value = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, NewValidationError(KindNotANumber, "%s: cannot parse %q as number", field, v)
		}
		value = f
	default:
		return 0, NewValidationError(KindNotANumber, "%s: unsupported value type %T", field, raw)
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, NewValidationError(KindNotANumber, "%s: value is not finite", field)
	}
	return value, nil
}

// resolveTimestamp 按优先级解析时间戳：timestampKey > payload["timestamp"] > 当前时间
// 字符串形式的毫秒时间戳必须先解析为整数
func resolveTimestamp(timestampKey string, payload map[string]interface{}) (time.Time, error) {
	if timestampKey != "" {
		ms, err := strconv.ParseInt(strings.TrimSpace(timestampKey), 10, 64)
		if err != nil {
			return time.Time{}, NewValidationError(KindInvalidTimestamp,
				"cannot parse timestamp key %q as epoch milliseconds", timestampKey)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	if raw, ok := payload["timestamp"]; ok {
		switch v := raw.(type) {
		case float64:
			return time.UnixMilli(int64(v)).UTC(), nil
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case json.Number:
			ms, err := v.Int64()
			if err != nil {
				return time.Time{}, NewValidationError(KindInvalidTimestamp,
					"cannot parse timestamp %q as epoch milliseconds", v.String())
			}
			return time.UnixMilli(ms).UTC(), nil
		case string:
			ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return time.Time{}, NewValidationError(KindInvalidTimestamp,
					"cannot parse timestamp %q as epoch milliseconds", v)
			}
			return time.UnixMilli(ms).UTC(), nil
		default:
			return time.Time{}, NewValidationError(KindInvalidTimestamp,
				"unsupported timestamp type %T", raw)
		}
	}

	return time.Now().UTC(), nil
}

// optionalNumber 解析可选数值字段，缺失或解析失败返回nil
func optionalNumber(payload map[string]interface{}, field string) *float64 {
	raw, ok := payload[field]
	if !ok {
		return nil
	}
	value, err := coerceNumber(field, raw)
	if err != nil {
		return nil
	}
	return &value
}
