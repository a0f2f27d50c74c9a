// Package events announces relayed chat messages to other services over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bryanEnzee/skillance-relay/pkg/log"
)

// SubjectRelayed is suffixed with the room id: chat.relay.<roomId>.
const SubjectRelayed = "chat.relay"

// MessageRelayed is published once a message is confirmed on chain.
type MessageRelayed struct {
	BatchID     string    `json:"batchId"`
	Index       int       `json:"index"`
	RoomID      string    `json:"roomId"`
	TxHash      string    `json:"txHash"`
	BlockNumber uint64    `json:"blockNumber"`
	GasUsed     uint64    `json:"gasUsed"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

func Subject(roomID string) string {
	return SubjectRelayed + "." + roomID
}

type Publisher interface {
	PublishRelayed(ctx context.Context, ev *MessageRelayed) error
}

type Nop struct{}

func (Nop) PublishRelayed(ctx context.Context, ev *MessageRelayed) error { return nil }

type NATSConfig struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Name:          "chatrelay",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(config NATSConfig) (*NATSPublisher, error) {
	logger := log.GetLogger().WithModule("events")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", err)
			} else {
				logger.Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) PublishRelayed(ctx context.Context, ev *MessageRelayed) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(Subject(ev.RoomID), data); err != nil {
		return fmt.Errorf("nats publish %s: %w", Subject(ev.RoomID), err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		// flush pending publishes before closing
		_ = p.conn.Drain()
	}
}
