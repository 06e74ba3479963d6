package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeSink 记录提交的点，按路径注入失败
type fakeSink struct {
	submitted []string
	failPaths map[string]bool
}

func (s *fakeSink) SubmitPoint(_ context.Context, rawPath string, _ map[string]interface{}) error {
	if s.failPaths[rawPath] {
		return errors.New("injected failure")
	}
	s.submitted = append(s.submitted, rawPath)
	return nil
}

func TestDispatcher_SingleTopLevelPoint(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	count := d.Dispatch(context.Background(), "/gps/u1/t1/1700000000000", map[string]interface{}{
		"lat":  21.0,
		"long": 105.0,
	})

	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"/gps/u1/t1/1700000000000"}, sink.submitted)
}

func TestDispatcher_NestedPointsAtAnyDepth(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	body := map[string]interface{}{
		"meta": "sync-batch",
		"points": map[string]interface{}{
			"1700000000000": map[string]interface{}{"lat": 21.0, "long": 105.0},
			"1700000060000": map[string]interface{}{"latitude": 21.1, "longitude": 105.1},
		},
	}

	count := d.Dispatch(context.Background(), "/gps/u1/t1", body)

	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{
		"/gps/u1/t1/points/1700000000000",
		"/gps/u1/t1/points/1700000060000",
	}, sink.submitted)
}

func TestDispatcher_QualifyingNodeNotRecursedInto(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	// 合格节点内部的嵌套对象不再递归
	body := map[string]interface{}{
		"lat":  21.0,
		"long": 105.0,
		"extra": map[string]interface{}{
			"lat":  99.0,
			"long": 99.0,
		},
	}

	count := d.Dispatch(context.Background(), "/gps/u1/t1/x", body)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"/gps/u1/t1/x"}, sink.submitted)
}

func TestDispatcher_ArraysSkippedSilently(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	body := map[string]interface{}{
		"batch": []interface{}{
			map[string]interface{}{"lat": 21.0, "long": 105.0},
		},
		"valid": map[string]interface{}{"lat": 22.0, "long": 106.0},
	}

	count := d.Dispatch(context.Background(), "/gps/u1", body)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"/gps/u1/valid"}, sink.submitted)
}

func TestDispatcher_DepthLimit(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	// 深度11层的点超出递归上限，应被跳过
	deep := map[string]interface{}{"lat": 21.0, "long": 105.0}
	var body interface{} = deep
	for i := 0; i < 11; i++ {
		body = map[string]interface{}{"level": body}
	}

	count := d.Dispatch(context.Background(), "/gps/u1", body)
	assert.Equal(t, 0, count)
	assert.Empty(t, sink.submitted)
}

func TestDispatcher_PointWithinDepthLimit(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	deep := map[string]interface{}{"lat": 21.0, "long": 105.0}
	var body interface{} = deep
	for i := 0; i < 5; i++ {
		body = map[string]interface{}{"level": body}
	}

	count := d.Dispatch(context.Background(), "/gps/u1", body)
	assert.Equal(t, 1, count)
}

func TestDispatcher_PerPointFailureIsolation(t *testing.T) {
	sink := &fakeSink{failPaths: map[string]bool{"/gps/u1/bad": true}}
	d := NewDispatcher(sink, zap.NewNop())

	body := map[string]interface{}{
		"bad":  map[string]interface{}{"lat": 95.0, "long": 200.0},
		"good": map[string]interface{}{"lat": 21.0, "long": 105.0},
	}

	// 一个点失败不影响兄弟节点
	count := d.Dispatch(context.Background(), "/gps/u1", body)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"/gps/u1/good"}, sink.submitted)
}

func TestDispatcher_ScalarBody(t *testing.T) {
	sink := &fakeSink{}
	d := NewDispatcher(sink, zap.NewNop())

	assert.Equal(t, 0, d.Dispatch(context.Background(), "/gps/u1", "just a string"))
	assert.Equal(t, 0, d.Dispatch(context.Background(), "/gps/u1", 42.0))
	assert.Equal(t, 0, d.Dispatch(context.Background(), "/gps/u1", nil))
}
