package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

const defaultHTTPTimeout = 10 * time.Second

// Batch is the set of alerts detected in one poll cycle.
type Batch struct {
	CycleID    string        `json:"cycle_id"`
	DetectedAt time.Time     `json:"detected_at"`
	Alerts     []types.Alert `json:"alerts"`
}

// Notifier delivers a batch to one channel.
type Notifier interface {
	Notify(ctx context.Context, batch Batch) error
	Name() string
}

// DeliveryError describes a failed delivery. StatusCode is zero when the
// channel is not HTTP based or no response was received.
type DeliveryError struct {
	Channel    string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notify: %s: HTTP %d: %v", e.Channel, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("notify: %s: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// New returns the notifier selected by cfg, wrapped with retries when
// cfg.Retry.MaxRetries is positive.
func New(cfg config.NotifyConfig) (Notifier, error) {
	var n Notifier
	switch cfg.Type {
	case "slack", "teams", "http":
		url := cfg.WebhookURL()
		if url == "" {
			return nil, fmt.Errorf("notify: %s: webhook url is empty", cfg.Type)
		}
		n = newWebhook(cfg.Type, url, &http.Client{Timeout: defaultHTTPTimeout})
	case "kafka":
		k, err := newKafka(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		n = k
	case "log":
		n = Log{}
	default:
		return nil, fmt.Errorf("notify: unsupported type %q", cfg.Type)
	}

	if cfg.Retry.MaxRetries > 0 {
		n = WithRetry(n, cfg.Retry)
	}
	return n, nil
}

// Close releases resources held by n, if any.
func Close(n Notifier) error {
	if c, ok := n.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
