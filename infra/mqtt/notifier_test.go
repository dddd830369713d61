package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/core/model"
	coremon "github.com/kilianp07/atmcast/core/monitoring"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any)    {}
func (r *recordMonitor) Flush(time.Duration) {}

func alertSnapshot(isAlert bool) dashboard.Snapshot {
	peak := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	return dashboard.Snapshot{
		ID:     "snap-1",
		ATMID:  "ATM_001",
		Status: dashboard.StatusOK,
		Verdict: &model.AlertVerdict{
			ATMID: "ATM_001", MaxPredicted: 21000, Threshold: 20000, Operator: "gt", IsAlert: isAlert, PeakDate: peak,
		},
		GeneratedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestNotify_PublishesAlert(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id", TopicPrefix: "branch/", QoS: 1, Retain: true})
	require.NoError(t, err)

	sent, err := n.Notify(context.Background(), alertSnapshot(true))
	require.NoError(t, err)
	assert.True(t, sent)

	msgs := mc.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "branch/ATM_001/alert", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
	assert.True(t, msgs[0].retain)

	var m AlertMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &m))
	assert.NotEmpty(t, m.MessageID)
	assert.Equal(t, "snap-1", m.SnapshotID)
	assert.Equal(t, "2024-01-05", m.PeakDate)
	assert.Equal(t, 21000.0, m.MaxPredicted)
}

func TestNotify_SkipsSafeAndDegraded(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	require.NoError(t, err)
	assert.Equal(t, "atm/ATM_001/alert", n.Topic("ATM_001"))

	sent, err := n.Notify(context.Background(), alertSnapshot(false))
	require.NoError(t, err)
	assert.False(t, sent)

	demo := alertSnapshot(true)
	demo.Status = dashboard.StatusDemo
	sent, err = n.Notify(context.Background(), demo)
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = n.Notify(context.Background(), dashboard.Snapshot{ATMID: "ATM_001", Status: dashboard.StatusUnavailable})
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, mc.messages())
}

func TestNotify_Retries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	defer useMock(mc)()
	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)

	sent, err := n.Notify(context.Background(), alertSnapshot(true))
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, mc.messages(), 2)
}

func TestNotify_ErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail, fail}}
	defer useMock(mc)()
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})

	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id", BackoffMS: 1})
	require.NoError(t, err)
	sent, err := n.Notify(context.Background(), alertSnapshot(true))
	assert.False(t, sent)
	assert.ErrorIs(t, err, fail)
	assert.Len(t, mc.messages(), 4)
	require.Error(t, mon.err)
	assert.Equal(t, "ATM_001", mon.tags["atm_id"])
	assert.Equal(t, "mqtt", mon.tags["module"])
}

func TestNotify_CanceledDuringBackoff(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	defer useMock(mc)()
	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 60000})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = n.Notify(ctx, alertSnapshot(true))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, mc.messages(), 1)
}

func TestNewAlertNotifier_ConnectError(t *testing.T) {
	mc := &mockClient{connectErr: errors.New("refused")}
	defer useMock(mc)()
	_, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	assert.Error(t, err)
	_, err = NewAlertNotifier(Config{})
	assert.Error(t, err)
}

func TestRun_ConsumesEvents(t *testing.T) {
	mc := &mockClient{}
	defer useMock(mc)()
	n, err := NewAlertNotifier(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	require.NoError(t, err)

	events := make(chan dashboard.Snapshot, 2)
	events <- alertSnapshot(true)
	events <- alertSnapshot(false)
	close(events)
	n.Run(context.Background(), events)
	assert.Len(t, mc.messages(), 1)

	n.Close()
	assert.Equal(t, 1, mc.disconnects)
}
