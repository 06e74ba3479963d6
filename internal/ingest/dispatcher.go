package ingest

import (
	"context"

	"go.uber.org/zap"
)

// maxDispatchDepth 递归遍历的最大深度，防御病态嵌套负载
const maxDispatchDepth = 10

// PointSink 接收单个GPS点负载的处理端（通常为入库管道）
type PointSink interface {
	SubmitPoint(ctx context.Context, rawPath string, payload map[string]interface{}) error
}

// Dispatcher 递归遍历任意嵌套的事件体，找出其中所有GPS点并逐个提交
// 单个点的处理失败不会中断其余点的处理
type Dispatcher struct {
	sink   PointSink
	logger *zap.Logger
}

// NewDispatcher 创建事件分发器
func NewDispatcher(sink PointSink, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, logger: logger}
}

// Dispatch 从 rawPath 对应的事件体中提取并提交所有GPS点，返回提交成功的点数
func (d *Dispatcher) Dispatch(ctx context.Context, rawPath string, body interface{}) int {
	return d.walk(ctx, rawPath, body, 0)
}

func (d *Dispatcher) walk(ctx context.Context, path string, node interface{}, depth int) int {
	obj, ok := node.(map[string]interface{})
	if !ok {
		// 标量与数组节点直接跳过
		return 0
	}

	if isGPSPointNode(obj) {
		if err := d.sink.SubmitPoint(ctx, path, obj); err != nil {
			// 隔离单点失败：记录后继续处理兄弟节点
			d.logger.Warn("Failed to process GPS point",
				zap.String("path", path),
				zap.Error(err),
			)
			return 0
		}
		return 1
	}

	if depth >= maxDispatchDepth {
		d.logger.Debug("Max traversal depth reached, skipping subtree",
			zap.String("path", path),
			zap.Int("depth", depth),
		)
		return 0
	}

	count := 0
	for key, child := range obj {
		count += d.walk(ctx, path+"/"+key, child, depth+1)
	}
	return count
}

// isGPSPointNode 节点同时包含纬度键（lat/latitude）和经度键（long/longitude）时视为GPS点
func isGPSPointNode(obj map[string]interface{}) bool {
	_, hasLat := obj["lat"]
	if !hasLat {
		_, hasLat = obj["latitude"]
	}
	_, hasLon := obj["long"]
	if !hasLon {
		_, hasLon = obj["longitude"]
	}
	return hasLat && hasLon
}
