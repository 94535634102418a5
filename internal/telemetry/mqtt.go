package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSource 通过 MQTT 订阅车辆遥测快照
type MQTTSource struct {
	logger *zap.Logger
	client mqtt.Client
	topic  string
	qos    byte

	mu      sync.Mutex
	started bool
	ch      chan Snapshot
}

// NewMQTTSource 创建 MQTT 遥测数据源
func NewMQTTSource(logger *zap.Logger, brokerURL, clientID, topic string, qos byte) *MQTTSource {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true)

	s := &MQTTSource{
		logger: logger,
		topic:  topic,
		qos:    qos,
		ch:     make(chan Snapshot, 64),
	}

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("topic", topic))
		if token := c.Subscribe(topic, qos, s.handleMessage); token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe telemetry topic", zap.Error(token.Error()))
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	s.client = mqtt.NewClient(opts)
	return s
}

// Start 连接 broker 并订阅遥测主题
func (s *MQTTSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect mqtt broker: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	s.started = true
	return nil
}

// Snapshots 返回快照通道
func (s *MQTTSource) Snapshots() <-chan Snapshot {
	return s.ch
}

// Stop 断开连接并关闭通道。先翻转 started 再关闭通道，
// 路由协程上仍在执行的 handleMessage 不会向已关闭的通道发送。
func (s *MQTTSource) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		s.logger.Warn("Failed to unsubscribe telemetry topic", zap.Error(token.Error()))
	}
	s.client.Disconnect(250)

	s.mu.Lock()
	close(s.ch)
	s.mu.Unlock()
}

// handleMessage 解析单条遥测消息
func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var snap Snapshot
	if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
		s.logger.Warn("Failed to decode telemetry payload",
			zap.String("topic", msg.Topic()),
			zap.Error(err))
		return
	}
	if snap.ExternalID == "" {
		s.logger.Warn("Telemetry payload without external_id, dropping", zap.String("topic", msg.Topic()))
		return
	}
	if snap.ObservedAt.IsZero() {
		snap.ObservedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}

	select {
	case s.ch <- snap:
	default:
		// 通道满时丢弃当前消息，下一轮询会带来更新的状态
		s.logger.Warn("Telemetry channel full, dropping snapshot", zap.String("external_id", snap.ExternalID))
	}
}
