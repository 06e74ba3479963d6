package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/observability"
)

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// 订阅的事件类型，每个事件类型一个独立监听器
var eventTypes = []string{"point-added", "point-changed"}

// EventSink 接收流事件的处理端（递归分发器）
type EventSink interface {
	Dispatch(ctx context.Context, rawPath string, body interface{}) int
}

// ManagerOptions 连接管理器参数
type ManagerOptions struct {
	// TopicRoot 根主题，事件主题为 {TopicRoot}/{eventType}/#
	TopicRoot string
	QoS       byte
	// MaxReconnectAttempts 连续重连次数上限，超过后永久停止自动重连
	MaxReconnectAttempts int
	// BaseReconnectDelay 第 n 次重连前等待 n * BaseReconnectDelay
	BaseReconnectDelay time.Duration
	// ListenerRetryDelay 单个监听器注册失败后的延迟重试间隔
	ListenerRetryDelay time.Duration
}

// Manager 轨迹流订阅生命周期管理
//
// 状态机：disconnected → connected → reconnecting → connected | disconnected（关停后为终态）
type Manager struct {
	client BrokerClient
	sink   EventSink
	opts   ManagerOptions
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	reconnectAttempts int

	shuttingDown atomic.Bool

	// 事件分发context：来自Start的调用方。Stop不取消它，在途分发允许完成
	ctx context.Context

	// 重连调度context：Stop时取消，用于中止退避等待，不影响在途事件
	reconnectCtx    context.Context
	reconnectCancel context.CancelFunc
}

// NewManager 创建连接管理器
func NewManager(client BrokerClient, sink EventSink, opts ManagerOptions, logger *zap.Logger) *Manager {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 10
	}
	if opts.BaseReconnectDelay <= 0 {
		opts.BaseReconnectDelay = 5 * time.Second
	}
	if opts.ListenerRetryDelay <= 0 {
		opts.ListenerRetryDelay = 2 * time.Second
	}
	if opts.TopicRoot == "" {
		opts.TopicRoot = "gps"
	}
	return &Manager{
		client: client,
		sink:   sink,
		opts:   opts,
		logger: logger,
		state:  StateDisconnected,
	}
}

// Status 当前连接状态（可观测，供健康检查使用）
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start 建立连接并注册监听器
func (m *Manager) Start(ctx context.Context) error {
	m.ctx = ctx
	m.reconnectCtx, m.reconnectCancel = context.WithCancel(context.Background())
	m.client.SetConnectionLostHandler(m.onConnectionLost)

	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to telemetry stream: %w", err)
	}

	m.registerListeners()
	m.setState(StateConnected)
	m.resetReconnectAttempts()

	m.logger.Info("Telemetry stream connected",
		zap.String("topic_root", m.opts.TopicRoot),
	)
	return nil
}

// Stop 优雅关停：先置关停标志，再注销监听器、断开连接
// 在途的事件分发允许完成，只有重连调度被立即中止
// 每一步尽力而为，单步失败只记录日志不中断关停流程
func (m *Manager) Stop() {
	m.shuttingDown.Store(true)
	if m.reconnectCancel != nil {
		m.reconnectCancel()
	}

	if m.client.IsConnected() {
		topics := make([]string, 0, len(eventTypes))
		for _, eventType := range eventTypes {
			topics = append(topics, m.topicFilter(eventType))
		}
		if err := m.client.Unsubscribe(topics...); err != nil {
			m.logger.Warn("Failed to unsubscribe during shutdown", zap.Error(err))
		}
	}

	m.client.Disconnect(250)
	m.setState(StateDisconnected)
	m.logger.Info("Telemetry stream manager stopped")
}

func (m *Manager) topicFilter(eventType string) string {
	return m.opts.TopicRoot + "/" + eventType + "/#"
}

// registerListeners 为每个事件类型注册监听器
// 单个监听器注册失败时安排一次延迟重试（仅该监听器），不影响其他监听器
func (m *Manager) registerListeners() {
	for _, eventType := range eventTypes {
		m.registerListener(eventType, true)
	}
}

func (m *Manager) registerListener(eventType string, allowRetry bool) {
	topic := m.topicFilter(eventType)
	err := m.client.Subscribe(topic, m.opts.QoS, func(msgTopic string, payload []byte) {
		m.handleEvent(eventType, msgTopic, payload)
	})
	if err == nil {
		m.logger.Info("Listener registered",
			zap.String("event_type", eventType),
			zap.String("topic", topic),
		)
		return
	}

	m.logger.Error("Failed to register listener",
		zap.String("event_type", eventType),
		zap.Error(err),
	)
	if !allowRetry {
		return
	}

	// 延迟后重试一次，前提是仍处于连接状态且未关停
	go func() {
		time.Sleep(m.opts.ListenerRetryDelay)
		if m.shuttingDown.Load() || !m.client.IsConnected() {
			return
		}
		m.registerListener(eventType, false)
	}()
}

// handleEvent 单条流事件入口：解码后交给递归分发器，每条事件独立处理
func (m *Manager) handleEvent(eventType, topic string, payload []byte) {
	if m.shuttingDown.Load() {
		return
	}

	rawPath := m.topicToPath(eventType, topic)

	var body interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		m.logger.Warn("Failed to decode event payload",
			zap.String("event_type", eventType),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	// 每条事件为独立的异步工作单元，不保证跨事件顺序
	go func() {
		count := m.sink.Dispatch(m.ctx, rawPath, body)
		if count > 0 {
			m.logger.Debug("Event dispatched",
				zap.String("event_type", eventType),
				zap.String("path", rawPath),
				zap.Int("points", count),
			)
		}
	}()
}

// topicToPath 把事件主题还原为层级键路径
// "gps/point-added/u1/t1/1700000000000" → "/gps/u1/t1/1700000000000"
func (m *Manager) topicToPath(eventType, topic string) string {
	prefix := m.opts.TopicRoot + "/" + eventType
	remainder := strings.TrimPrefix(topic, prefix)
	return "/" + m.opts.TopicRoot + remainder
}

// onConnectionLost 连接丢失回调：进入重连状态机
func (m *Manager) onConnectionLost(err error) {
	if m.shuttingDown.Load() {
		return
	}

	m.logger.Warn("Telemetry stream connection lost", zap.Error(err))
	m.setState(StateReconnecting)
	go m.reconnectLoop()
}

// reconnectLoop 指数退避重连：第 n 次尝试前等待 n * BaseReconnectDelay
// 超过次数上限后永久放弃，需要运维介入重启进程
func (m *Manager) reconnectLoop() {
	for {
		m.mu.Lock()
		m.reconnectAttempts++
		attempt := m.reconnectAttempts
		m.mu.Unlock()

		if attempt > m.opts.MaxReconnectAttempts {
			m.logger.Error("Reconnect limit exceeded, giving up; restart required",
				zap.Int("max_attempts", m.opts.MaxReconnectAttempts),
			)
			m.setState(StateDisconnected)
			return
		}

		delay := m.opts.BaseReconnectDelay * time.Duration(attempt)
		m.logger.Info("Scheduling stream reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		select {
		case <-m.reconnectCtx.Done():
			return
		case <-time.After(delay):
		}

		if m.shuttingDown.Load() {
			return
		}

		observability.StreamReconnects.Inc()
		if err := m.client.Connect(); err != nil {
			m.logger.Warn("Stream reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		// 重连成功：重新注册监听器并复位计数
		m.registerListeners()
		m.resetReconnectAttempts()
		m.setState(StateConnected)
		m.logger.Info("Telemetry stream reconnected", zap.Int("attempts_used", attempt))
		return
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	observability.ConnectionState.Set(float64(state))
}

func (m *Manager) resetReconnectAttempts() {
	m.mu.Lock()
	m.reconnectAttempts = 0
	m.mu.Unlock()
}
