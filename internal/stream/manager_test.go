package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeBroker 内存版Broker客户端，可注入连接/订阅失败并模拟消息推送
type fakeBroker struct {
	mu                sync.Mutex
	connected         bool
	connectCalls      int
	connectFailures   int // 前 n 次 Connect 失败
	subscribeFailures map[string]int
	subscriptions     map[string]MessageHandler
	unsubscribed      []string
	onConnectionLost  func(err error)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		subscriptions:     make(map[string]MessageHandler),
		subscribeFailures: make(map[string]int),
	}
}

func (b *fakeBroker) SetConnectionLostHandler(fn func(err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onConnectionLost = fn
}

func (b *fakeBroker) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectCalls++
	if b.connectFailures > 0 {
		b.connectFailures--
		return errors.New("broker unreachable")
	}
	b.connected = true
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeFailures[topic] > 0 {
		b.subscribeFailures[topic]--
		return errors.New("subscribe refused")
	}
	b.subscriptions[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribed = append(b.unsubscribed, topics...)
	for _, topic := range topics {
		delete(b.subscriptions, topic)
	}
	return nil
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// loseConnection 模拟连接丢失
func (b *fakeBroker) loseConnection(err error) {
	b.mu.Lock()
	b.connected = false
	fn := b.onConnectionLost
	b.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// push 模拟Broker向订阅者推送消息
func (b *fakeBroker) push(filter, topic string, payload []byte) bool {
	b.mu.Lock()
	handler, ok := b.subscriptions[filter]
	b.mu.Unlock()
	if !ok {
		return false
	}
	handler(topic, payload)
	return true
}

func (b *fakeBroker) subscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions)
}

// recordingSink 记录收到的分发调用
type recordingSink struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func newRecordingSink(expected int) *recordingSink {
	return &recordingSink{done: make(chan struct{}, expected)}
}

func (s *recordingSink) Dispatch(_ context.Context, rawPath string, _ interface{}) int {
	s.mu.Lock()
	s.events = append(s.events, rawPath)
	s.mu.Unlock()
	s.done <- struct{}{}
	return 1
}

func (s *recordingSink) paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

func testOptions() ManagerOptions {
	return ManagerOptions{
		TopicRoot:            "gps",
		MaxReconnectAttempts: 3,
		BaseReconnectDelay:   5 * time.Millisecond,
		ListenerRetryDelay:   5 * time.Millisecond,
	}
}

func TestManager_StartRegistersBothListeners(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	assert.Equal(t, StateConnected, m.Status())
	assert.Equal(t, 2, broker.subscriptionCount())
	_, hasAdded := broker.subscriptions["gps/point-added/#"]
	_, hasChanged := broker.subscriptions["gps/point-changed/#"]
	assert.True(t, hasAdded)
	assert.True(t, hasChanged)
}

func TestManager_EventTopicConvertedToPath(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(1)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	ok := broker.push("gps/point-added/#", "gps/point-added/u1/t1/1700000000000",
		[]byte(`{"lat": 21.0285, "long": 105.8542}`))
	require.True(t, ok)

	select {
	case <-sink.done:
	case <-time.After(time.Second):
		t.Fatal("event was not dispatched")
	}

	assert.Equal(t, []string{"/gps/u1/t1/1700000000000"}, sink.paths())
}

func TestManager_MalformedPayloadDropped(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(1)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	broker.push("gps/point-added/#", "gps/point-added/u1/x", []byte(`{not json`))

	select {
	case <-sink.done:
		t.Fatal("malformed payload should not reach the sink")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_ReconnectAfterConnectionLost(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	broker.loseConnection(errors.New("EOF"))

	// 等待重连完成并重新注册监听器
	require.Eventually(t, func() bool {
		return m.Status() == StateConnected && broker.subscriptionCount() == 2
	}, time.Second, 5*time.Millisecond)

	// 初始连接1次 + 重连1次
	assert.Equal(t, 2, broker.connectCalls)
}

func TestManager_ReconnectBackoffUntilSuccess(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	broker.mu.Lock()
	broker.connectFailures = 2
	broker.mu.Unlock()

	broker.loseConnection(errors.New("EOF"))

	require.Eventually(t, func() bool {
		return m.Status() == StateConnected
	}, time.Second, 5*time.Millisecond)

	// 初始1次 + 失败2次 + 成功1次
	assert.Equal(t, 4, broker.connectCalls)
}

func TestManager_ReconnectLimitExceeded(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	broker.mu.Lock()
	broker.connectFailures = 100 // 永远失败
	broker.mu.Unlock()

	broker.loseConnection(errors.New("EOF"))

	// 超过次数上限后放弃，状态回到 disconnected
	require.Eventually(t, func() bool {
		return m.Status() == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	// 初始1次 + 重连尝试3次（上限）
	assert.Equal(t, 1+3, broker.connectCalls)
}

func TestManager_ListenerFailureRetriedOnce(t *testing.T) {
	broker := newFakeBroker()
	broker.subscribeFailures["gps/point-changed/#"] = 1
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	// 失败的监听器在延迟后单独重试一次
	require.Eventually(t, func() bool {
		return broker.subscriptionCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestManager_StopUnsubscribesAndDisconnects(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	m.Stop()

	assert.Equal(t, StateDisconnected, m.Status())
	assert.False(t, broker.IsConnected())
	assert.ElementsMatch(t, []string{"gps/point-added/#", "gps/point-changed/#"}, broker.unsubscribed)
}

func TestManager_NoReconnectAfterStop(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(0)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))
	m.Stop()

	calls := broker.connectCalls
	// 关停后的连接丢失回调必须是无操作
	broker.loseConnection(errors.New("EOF"))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, calls, broker.connectCalls)
	assert.Equal(t, StateDisconnected, m.Status())
}

// blockingSink 阻塞到被放行为止，记录分发context是否被取消
type blockingSink struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
}

func (s *blockingSink) Dispatch(ctx context.Context, _ string, _ interface{}) int {
	close(s.started)
	select {
	case <-ctx.Done():
		s.ctxErr <- ctx.Err()
		return 0
	case <-s.release:
		s.ctxErr <- ctx.Err()
		return 1
	}
}

func TestManager_StopAllowsInFlightDispatchToComplete(t *testing.T) {
	broker := newFakeBroker()
	sink := newBlockingSink()
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))

	ok := broker.push("gps/point-added/#", "gps/point-added/u1/t1/1700000000000",
		[]byte(`{"lat": 21.0285, "long": 105.8542}`))
	require.True(t, ok)

	select {
	case <-sink.started:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not start")
	}

	// 分发仍在途时关停：在途工作必须被允许完成，不能被取消
	m.Stop()
	close(sink.release)

	select {
	case err := <-sink.ctxErr:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight dispatch did not finish")
	}
}

func TestManager_EventsDroppedDuringShutdown(t *testing.T) {
	broker := newFakeBroker()
	sink := newRecordingSink(1)
	m := NewManager(broker, sink, testOptions(), zap.NewNop())

	require.NoError(t, m.Start(context.Background()))

	// 抢在Unsubscribe之前抓住handler引用
	broker.mu.Lock()
	handler := broker.subscriptions["gps/point-added/#"]
	broker.mu.Unlock()

	m.Stop()
	handler("gps/point-added/u1/t1/1700000000000", []byte(`{"lat": 1, "long": 2}`))

	select {
	case <-sink.done:
		t.Fatal("events must be dropped after shutdown")
	case <-time.After(50 * time.Millisecond):
	}
}
