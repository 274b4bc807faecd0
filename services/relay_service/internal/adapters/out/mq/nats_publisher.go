package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
)

// SubjectPresenceChange 默认 subject 前缀，实际发布到 <prefix>.<userID>
const SubjectPresenceChange = "relay.presence"

type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSEventPublisher NATS事件发布器
type NATSEventPublisher struct {
	conn    natsConn
	subject string
}

// NewNATSEventPublisher 连接 NATS 并创建发布器
func NewNATSEventPublisher(url, subject string) (out.EventPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("relay-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			zap.L().Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			zap.L().Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect nats: %w", err)
	}
	return newNATSEventPublisher(nc, subject), nil
}

func newNATSEventPublisher(conn natsConn, subject string) *NATSEventPublisher {
	if subject == "" {
		subject = SubjectPresenceChange
	}
	return &NATSEventPublisher{conn: conn, subject: subject}
}

func (p *NATSEventPublisher) PublishPresenceChange(ctx context.Context, change *entity.PresenceChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal presence change event failed: %w", err)
	}
	subj := p.subject + "." + string(change.UserID)
	if err := p.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("publish presence change event failed: %w", err)
	}
	return nil
}

func (p *NATSEventPublisher) Close() error {
	return p.conn.Drain()
}

// NoopEventPublisher 未配置消息队列时使用
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishPresenceChange(context.Context, *entity.PresenceChange) error {
	return nil
}

func (NoopEventPublisher) Close() error { return nil }
