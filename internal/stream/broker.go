package stream

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nnminh-sam/trip-sync-microservices-sub001/internal/config"
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte)

// BrokerClient 轨迹流Broker连接的抽象（便于在测试中替换）
type BrokerClient interface {
	Connect() error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect(quiesceMs uint)
	IsConnected() bool
	// SetConnectionLostHandler 必须在 Connect 之前调用
	SetConnectionLostHandler(fn func(err error))
}

// PahoBrokerClient BrokerClient的MQTT实现
// 禁用paho自带的自动重连：重连状态机由 Manager 拥有
type PahoBrokerClient struct {
	client mqtt.Client
	opts   *mqtt.ClientOptions
}

// NewPahoBrokerClient 创建MQTT客户端封装
func NewPahoBrokerClient(cfg *config.MQTTConfig) *PahoBrokerClient {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)

	return &PahoBrokerClient{opts: opts}
}

var _ BrokerClient = (*PahoBrokerClient)(nil)

// SetConnectionLostHandler 注册连接丢失回调
func (c *PahoBrokerClient) SetConnectionLostHandler(fn func(err error)) {
	c.opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		fn(err)
	})
}

// Connect 连接Broker（首次调用时根据选项创建底层客户端）
func (c *PahoBrokerClient) Connect() error {
	if c.client == nil {
		c.client = mqtt.NewClient(c.opts)
	}
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Subscribe 订阅主题
func (c *PahoBrokerClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Unsubscribe 取消订阅
func (c *PahoBrokerClient) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect 断开连接
func (c *PahoBrokerClient) Disconnect(quiesceMs uint) {
	if c.client != nil {
		c.client.Disconnect(quiesceMs)
	}
}

// IsConnected 检查连接状态
func (c *PahoBrokerClient) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}
