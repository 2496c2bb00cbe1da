package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Approval event types.
const (
	EventApprovalCreated  = "created"
	EventApprovalApproved = "approved"
	EventApprovalRejected = "rejected"
	EventLevelUnlocked    = "level_unlocked"
)

// NotificationPublisher publishes approval events to NATS so requesting
// modules can react to decisions without polling.
//
// Subject convention: <prefix>.<origin>.<event_type>
//
// Publishing is non-fatal: errors are logged and never reach the caller.
type NotificationPublisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// ApprovalEvent is the JSON schema published to NATS.
type ApprovalEvent struct {
	EventType      string                 `json:"event_type"`
	DocumentID     string                 `json:"document_id"`
	Origin         string                 `json:"origin"`
	OriginRef      string                 `json:"origin_ref"`
	GroupID        string                 `json:"group_id,omitempty"`
	ActorID        string                 `json:"actor_id,omitempty"`
	DocumentStatus string                 `json:"document_status"`
	Recipients     []string               `json:"recipients,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher on an established connection.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, prefix: prefix, log: log}
}

// ConnectNATS dials the NATS server with reconnects enabled.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
}

// Subject returns the subject an event is published on.
func (p *NotificationPublisher) Subject(event *ApprovalEvent) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, event.Origin, event.EventType)
}

// PublishApprovalEvent publishes one event.
func (p *NotificationPublisher) PublishApprovalEvent(ctx context.Context, event *ApprovalEvent) {
	if p == nil || p.conn == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.Subject(event)
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Nats-Msg-Id", fmt.Sprintf("%s:%s:%s:%d", event.DocumentID, event.GroupID, event.EventType, event.OccurredAt.UnixNano()))

	if err := p.conn.PublishMsg(msg); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", event.DocumentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", event.DocumentID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}

// Close drains the connection.
func (p *NotificationPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("nats: drain failed")
	}
}
