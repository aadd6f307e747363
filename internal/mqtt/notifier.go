package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"wisefido-allocator/internal/events"
)

// Publisher MQTT 发布接口（*Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Notifier 把通知、分配事件和看板推送给值班终端
//
// 主题：
//
//	{prefix}notifications/{type}      通知（alert / warning / info）
//	{prefix}assignments/{resource_id} 分配和状态变更
//	{prefix}board                     看板快照（retained，新订阅者立即拿到最新状态）
type Notifier struct {
	publisher Publisher
	prefix    string
	qos       byte
}

// NewNotifier 创建通知推送器
func NewNotifier(publisher Publisher, topicPrefix string, qos byte) *Notifier {
	return &Notifier{
		publisher: publisher,
		prefix:    topicPrefix,
		qos:       qos,
	}
}

// Name 实现 events.Sink
func (n *Notifier) Name() string { return "mqtt" }

// Handle 按事件类型发布到对应主题
func (n *Notifier) Handle(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		topic    string
		retained bool
		data     interface{}
	)
	switch {
	case ev.Notification != nil:
		topic = n.prefix + "notifications/" + string(ev.Notification.Type)
		data = ev.Notification
	case ev.Assignment != nil:
		topic = n.prefix + "assignments/" + ev.Assignment.ResourceID
		data = ev.Assignment
	case ev.Board != nil:
		topic = n.prefix + "board"
		retained = true
		data = ev.Board
	default:
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Kind(), err)
	}
	return n.publisher.Publish(topic, n.qos, retained, payload)
}
