// Package notifier fans critical alerts out as push-style notifications
// over NATS JetStream. Delivery is best-effort: the compliance state in
// the record store is authoritative whether or not the push lands.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/napa14-design/infrahub/internal/model"
)

const (
	alertStreamName     = "ALERTS"
	alertSubjectPrefix  = "alert.critical."
	alertStreamSubjects = "alert.>"
)

// PushNotifier publishes critical alerts to the ALERTS stream, one
// subject per asset kind, so downstream consumers (mobile push, web
// socket bridges) can subscribe selectively.
type PushNotifier struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewPushNotifier creates the notifier, ensuring the alert stream exists.
func NewPushNotifier(logger *zap.Logger, js nats.JetStreamContext) (*PushNotifier, error) {
	_, err := js.StreamInfo(alertStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return nil, fmt.Errorf("failed to get stream info: %w", err)
		}
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     alertStreamName,
			Subjects: []string{alertStreamSubjects},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
		logger.Info("Created alert stream", zap.String("name", alertStreamName))
	}

	return &PushNotifier{
		logger: logger.Named("notifier"),
		js:     js,
	}, nil
}

// NotifyCritical publishes the alert. Non-critical severities are
// ignored; the sweep only calls this for critical tiers, but the guard
// keeps the contract local.
func (n *PushNotifier) NotifyCritical(ctx context.Context, alert *model.Alert) error {
	if alert.Severity != model.AlertSeverityCritical {
		return nil
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = n.js.Publish(alertSubjectPrefix+string(alert.Kind), data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	n.logger.Info("Published critical alert notification",
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("site_id", alert.SiteID))
	return nil
}
