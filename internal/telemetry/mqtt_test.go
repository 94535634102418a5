package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestSource() *MQTTSource {
	return NewMQTTSource(zap.NewNop(), "tcp://localhost:1883", "test", "vehicles/+", 0)
}

func TestHandleMessageDecodesSnapshot(t *testing.T) {
	s := newTestSource()
	s.started = true

	s.handleMessage(nil, &fakeMessage{
		topic:   "vehicles/vin-1",
		payload: []byte(`{"external_id":"vin-1","odometer":120.5,"odometer_unit":"km","charging":true}`),
	})

	require.Len(t, s.ch, 1)
	snap := <-s.ch
	assert.Equal(t, "vin-1", snap.ExternalID)
	assert.Equal(t, 120.5, snap.Odometer)
	assert.True(t, snap.Charging)
	// 缺失的观测时间回退为当前时间
	assert.False(t, snap.ObservedAt.IsZero())
}

func TestHandleMessageDropsInvalidPayload(t *testing.T) {
	s := newTestSource()
	s.started = true

	s.handleMessage(nil, &fakeMessage{topic: "vehicles/vin-1", payload: []byte(`{broken`)})
	s.handleMessage(nil, &fakeMessage{topic: "vehicles/vin-1", payload: []byte(`{"odometer":100}`)})

	assert.Empty(t, s.ch)
}

// Stop 之后路由协程上迟到的消息被丢弃，不会向已关闭的通道发送
func TestHandleMessageAfterStopDoesNotPanic(t *testing.T) {
	s := newTestSource()
	s.started = true

	s.handleMessage(nil, &fakeMessage{
		topic:   "vehicles/vin-1",
		payload: []byte(`{"external_id":"vin-1","odometer":100}`),
	})
	s.Stop()

	require.NotPanics(t, func() {
		s.handleMessage(nil, &fakeMessage{
			topic:   "vehicles/vin-1",
			payload: []byte(`{"external_id":"vin-1","odometer":101}`),
		})
	})

	// 关闭前入队的快照仍可读取，随后通道关闭
	snap, ok := <-s.ch
	assert.True(t, ok)
	assert.Equal(t, 100.0, snap.Odometer)
	_, ok = <-s.ch
	assert.False(t, ok)
}
