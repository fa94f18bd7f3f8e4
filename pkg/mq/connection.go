package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// 所有任务命令与通知事件共用一个 topic exchange
const ExchangeName = "missminutes.events"

// Routing keys
const (
	RoutingTaskAssign            = "task.assign"
	RoutingTaskStatusUpdate      = "task.status_update"
	RoutingNotificationRequested = "notification.requested"
)

const heartbeat = 10 * time.Second

// NewConnection 连接 RabbitMQ，连接名会显示在管理后台
func NewConnection(url string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName("missminutes")

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// openChannel 建立连接与 channel 并声明 exchange；失败时已关闭的资源不会泄漏
func openChannel(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := DeclareExchange(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

// DeclareExchange declares the durable topic exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil)
}
