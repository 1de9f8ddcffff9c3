// Package notify pushes route assignments to field vendors over MQTT.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RouteAssignment 新站点加入路线时推送给执行人的消息
type RouteAssignment struct {
	RouteID    string `json:"route_id"`
	RouteName  string `json:"route_name"`
	RouteDate  string `json:"route_date"`
	VendorID   string `json:"vendor_id,omitempty"`
	VendorName string `json:"vendor_name,omitempty"`
	EntryID    string `json:"entry_id"`
	StopOrder  int    `json:"stop_order"`
}

// Notifier 路线分配通知
type Notifier interface {
	RouteAssigned(ctx context.Context, a RouteAssignment) error
}

// Publisher is satisfied by common/mqtt.Client.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// MQTTNotifier publishes to <prefix>/vendors/<vendor>/routes.
type MQTTNotifier struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

func NewMQTTNotifier(pub Publisher, topicPrefix string, logger *zap.Logger) *MQTTNotifier {
	if topicPrefix == "" {
		topicPrefix = "fieldvisit"
	}
	return &MQTTNotifier{pub: pub, prefix: strings.TrimRight(topicPrefix, "/"), logger: logger}
}

// Topic 执行人的订阅主题；名称型执行人使用规范化名称
func (n *MQTTNotifier) Topic(a RouteAssignment) string {
	vendor := a.VendorID
	if vendor == "" {
		vendor = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(a.VendorName)), " ", "_")
	}
	return fmt.Sprintf("%s/vendors/%s/routes", n.prefix, vendor)
}

func (n *MQTTNotifier) RouteAssigned(_ context.Context, a RouteAssignment) error {
	payload, err := json.Marshal(struct {
		RouteAssignment
		SentAt string `json:"sent_at"`
	}{a, time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("failed to marshal route assignment: %w", err)
	}

	topic := n.Topic(a)
	if err := n.pub.Publish(topic, false, payload); err != nil {
		return err
	}
	n.logger.Debug("route assignment published",
		zap.String("topic", topic),
		zap.String("route_id", a.RouteID),
		zap.String("entry_id", a.EntryID),
	)
	return nil
}

// Nop MQTT 未启用时使用
type Nop struct{}

func (Nop) RouteAssigned(context.Context, RouteAssignment) error { return nil }
