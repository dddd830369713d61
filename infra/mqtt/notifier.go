// Package mqtt publishes stocking alerts to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/core/model"
	"github.com/kilianp07/atmcast/core/monitoring"
	"github.com/kilianp07/atmcast/infra/logger"
)

// DefaultTopicPrefix is used when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "atm"

// AlertMessage is the JSON payload published for an alert verdict.
type AlertMessage struct {
	MessageID    string    `json:"message_id"`
	SnapshotID   string    `json:"snapshot_id"`
	ATMID        string    `json:"atm_id"`
	MaxPredicted float64   `json:"max_predicted"`
	Threshold    float64   `json:"threshold"`
	Operator     string    `json:"operator"`
	PeakDate     string    `json:"peak_date"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// AlertNotifier publishes a message for every snapshot whose verdict is an
// alert. Degraded snapshots are never published.
type AlertNotifier struct {
	cli        pahoClient
	prefix     string
	qos        byte
	retain     bool
	maxRetries int
	backoff    time.Duration
	log        logger.Logger
}

// NewAlertNotifier connects to the broker described by cfg.
func NewAlertNotifier(cfg Config) (*AlertNotifier, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_notifier")
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	n := &AlertNotifier{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		log:        log,
	}
	if n.prefix == "" {
		n.prefix = DefaultTopicPrefix
	}
	if n.maxRetries <= 0 {
		n.maxRetries = 3
	}
	if n.backoff <= 0 {
		n.backoff = 100 * time.Millisecond
	}

	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	n.cli = c
	return n, nil
}

// Topic returns the alert topic for atmID.
func (n *AlertNotifier) Topic(atmID string) string {
	return fmt.Sprintf("%s/%s/alert", n.prefix, atmID)
}

// Notify publishes snap when it carries a real forecast that raised an
// alert. It reports whether a message was sent.
func (n *AlertNotifier) Notify(ctx context.Context, snap dashboard.Snapshot) (bool, error) {
	if snap.Status != dashboard.StatusOK || snap.Verdict == nil || !snap.Verdict.IsAlert {
		return false, nil
	}
	v := snap.Verdict
	msg := AlertMessage{
		MessageID:    uuid.NewString(),
		SnapshotID:   snap.ID,
		ATMID:        snap.ATMID,
		MaxPredicted: v.MaxPredicted,
		Threshold:    v.Threshold,
		Operator:     v.Operator,
		PeakDate:     v.PeakDate.Format(model.DateLayout),
		GeneratedAt:  snap.GeneratedAt,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	topic := n.Topic(snap.ATMID)

	var publishErr error
	for attempt := 0; ; attempt++ {
		token := n.cli.Publish(topic, n.qos, n.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			n.log.Infof("sent alert %s to %s", msg.MessageID, topic)
			return true, nil
		}
		n.log.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt >= n.maxRetries {
			break
		}
		if err := sleep(ctx, n.backoff*time.Duration(1<<attempt)); err != nil {
			publishErr = fmt.Errorf("%w (last error: %v)", err, publishErr)
			break
		}
	}
	monitoring.CaptureException(publishErr, map[string]string{"atm_id": snap.ATMID, "module": "mqtt"})
	return false, publishErr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run notifies every snapshot received on events until the channel is
// closed or ctx is canceled.
func (n *AlertNotifier) Run(ctx context.Context, events <-chan dashboard.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-events:
			if !ok {
				return
			}
			if _, err := n.Notify(ctx, snap); err != nil {
				n.log.Errorf("alert for %s not delivered: %v", snap.ATMID, err)
			}
		}
	}
}

// Close gracefully closes the MQTT connection.
func (n *AlertNotifier) Close() {
	if n.cli != nil && n.cli.IsConnected() {
		n.cli.Disconnect(250)
	}
}
