package optimizer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/models"
)

func makePoint(id string, lat, lon float64, ts time.Time) models.GPSPoint {
	return models.GPSPoint{ID: id, UserID: "u1", Latitude: lat, Longitude: lon, Timestamp: ts}
}

// stationarySeries 生成同一位置附近每隔 step 一个点、持续 n 个点的序列
func stationarySeries(base time.Time, n int, step time.Duration) []models.GPSPoint {
	points := make([]models.GPSPoint, 0, n)
	for i := 0; i < n; i++ {
		points = append(points, makePoint(
			fmt.Sprintf("p%d", i),
			21.0285, 105.8542,
			base.Add(time.Duration(i)*step),
		))
	}
	return points
}

func TestCompressSeries_TwoOrFewerPointsUnchanged(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for n := 0; n <= 2; n++ {
		points := stationarySeries(base, n, time.Minute)
		result := CompressSeries(points, cfg)
		assert.Len(t, result.Kept, n)
		assert.Empty(t, result.RemovedIDs)
		assert.Equal(t, 0.0, result.CompressionRatio)
	}
}

func TestCompressSeries_FirstAndLastAlwaysKept(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	points := stationarySeries(base, 50, 10*time.Second)
	result := CompressSeries(points, cfg)

	require.NotEmpty(t, result.Kept)
	assert.Equal(t, points[0].ID, result.Kept[0].ID)
	assert.Equal(t, points[len(points)-1].ID, result.Kept[len(result.Kept)-1].ID)
	assert.LessOrEqual(t, len(result.Kept), len(points))
}

func TestCompressSeries_LongStationaryRunThinned(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	// 100个点每10秒一个，静止990秒，间隔300秒
	points := stationarySeries(base, 100, 10*time.Second)
	result := CompressSeries(points, cfg)

	// 大幅压缩：每300秒只留一个点，加上首尾
	assert.Less(t, len(result.Kept), 10)
	assert.Greater(t, result.CompressionRatio, 85.0)
	assert.Equal(t, len(points)-len(result.Kept), len(result.RemovedIDs))
}

func TestCompressSeries_ShortStationaryRunKeepsLast(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	// 静止2分钟（< 300秒间隔），随后移动到新位置
	points := []models.GPSPoint{
		makePoint("a", 21.0285, 105.8542, base),
		makePoint("b", 21.0285, 105.8542, base.Add(1*time.Minute)),
		makePoint("c", 21.0285, 105.8542, base.Add(2*time.Minute)),
		makePoint("d", 21.0400, 105.9000, base.Add(3*time.Minute)),
	}
	result := CompressSeries(points, cfg)

	// 短静止段只留最后一个点：b被删，a/c/d保留
	keptIDs := make([]string, 0, len(result.Kept))
	for _, p := range result.Kept {
		keptIDs = append(keptIDs, p.ID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, keptIDs)
	assert.Equal(t, []string{"b"}, result.RemovedIDs)
}

func TestCompressSeries_MovingTrackMostlyKept(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	// 每个点间隔约100米：全部超出同位置半径，全部保留
	points := make([]models.GPSPoint, 0, 10)
	for i := 0; i < 10; i++ {
		points = append(points, makePoint(
			fmt.Sprintf("m%d", i),
			21.0285+float64(i)*0.001, 105.8542,
			base.Add(time.Duration(i)*time.Minute),
		))
	}
	result := CompressSeries(points, cfg)

	assert.Len(t, result.Kept, 10)
	assert.Empty(t, result.RemovedIDs)
	assert.Equal(t, 0.0, result.CompressionRatio)
}

func TestCompressSeries_Idempotent(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	// 长静止段 + 移动段的混合轨迹
	points := stationarySeries(base, 100, 10*time.Second)
	points = append(points,
		makePoint("move1", 21.0400, 105.9000, base.Add(20*time.Minute)),
		makePoint("move2", 21.0500, 105.9100, base.Add(21*time.Minute)),
	)

	first := CompressSeries(points, cfg)
	second := CompressSeries(first.Kept, cfg)

	// 对已压缩序列再压缩是无操作
	assert.Empty(t, second.RemovedIDs)
	assert.Equal(t, 0.0, second.CompressionRatio)
	require.Len(t, second.Kept, len(first.Kept))
	for i := range first.Kept {
		assert.Equal(t, first.Kept[i].ID, second.Kept[i].ID)
	}
}

func TestCompressSeries_PreservesTimeOrder(t *testing.T) {
	cfg := models.DefaultOptimizationConfig()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	points := stationarySeries(base, 30, 30*time.Second)
	result := CompressSeries(points, cfg)

	for i := 1; i < len(result.Kept); i++ {
		assert.True(t, !result.Kept[i].Timestamp.Before(result.Kept[i-1].Timestamp))
	}
}
