package clients

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"sponsor-backend/internal/config"
	"sponsor-backend/internal/events"
	"sponsor-backend/internal/metrics"
)

// SubmissionEventSubject subject for published submission results
const SubmissionEventSubject = "sponsor.transactions.submitted"

// NATSClient publishes pipeline events for operators. Optional: the pipeline
// runs fine without it.
type NATSClient struct {
	conn *nats.Conn
}

// NewNATSClient connects to the NATS server
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ [NATS] Disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ [NATS] Reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ [NATS] Connected: %s", cfg.URL)

	return &NATSClient{conn: conn}, nil
}

// PublishSubmissionResult publishes one terminal submission result. Publish
// failures are logged, never propagated - telemetry must not break the
// pipeline.
func (c *NATSClient) PublishSubmissionResult(event *events.SubmissionEvent) {
	if c == nil || c.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ [NATS] Failed to marshal submission event: %v", err)
		return
	}

	if err := c.conn.Publish(SubmissionEventSubject, data); err != nil {
		log.Printf("⚠️ [NATS] Failed to publish submission event: %v", err)
		return
	}
	metrics.NATSEventsPublished.WithLabelValues(SubmissionEventSubject).Inc()
}

// Close drains the connection
func (c *NATSClient) Close() {
	if c != nil && c.conn != nil {
		c.conn.Close()
		metrics.NATSConnectionStatus.Set(0)
	}
}
