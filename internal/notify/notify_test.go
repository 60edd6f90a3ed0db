package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/model"
)

func sampleNotification() model.Notification {
	return model.Notification{
		Kind:         model.NotifyStepAssigned,
		Recipients:   []string{"alice", "bob"},
		Channels:     []string{"email"},
		InstanceID:   "inst-1",
		WorkflowID:   "contract-high-value",
		WorkflowName: "High Value Contract",
		DocumentID:   "c-1",
		Collection:   "contracts",
		DocumentName: "Lease",
		StepIndex:    0,
		StepName:     "Legal Review",
	}
}

// --- CircuitBreaker ---

func TestCircuitBreaker_trips_and_recovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 1, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	assert.Equal(t, BreakerClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(time.Minute)
	assert.Equal(t, BreakerHalfOpen, cb.State())
	assert.NoError(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_half_open_failure_reopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, 3, time.Second)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	now = now.Add(2 * time.Second)
	require.Equal(t, BreakerHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, BreakerOpen, cb.State())
}

func TestCircuitBreaker_success_resets_failures(t *testing.T) {
	cb := NewCircuitBreaker(2, 1, time.Minute)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_defaults(t *testing.T) {
	cb := NewCircuitBreaker(0, 0, 0)
	assert.Equal(t, 5, cb.failureThreshold)
	assert.Equal(t, 2, cb.successThreshold)
	assert.Equal(t, 30*time.Second, cb.cooldown)
	assert.Equal(t, "closed", cb.State().String())
}

// --- LogNotifier ---

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), sampleNotification()))

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, model.NotifyStepAssigned, fields["kind"])
	assert.Equal(t, "inst-1", fields["instance_id"])
}

// --- Multi ---

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) Notify(context.Context, model.Notification) error {
	f.calls++
	return f.err
}

func TestMulti_tries_every_notifier(t *testing.T) {
	failing := &fakeNotifier{err: errors.New("smtp down")}
	ok := &fakeNotifier{}

	err := Multi{failing, ok}.Notify(context.Background(), sampleNotification())

	assert.ErrorContains(t, err, "smtp down")
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

// --- WebhookNotifier ---

func TestWebhookNotifier_posts_payload(t *testing.T) {
	var got webhookPayload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL}, zap.NewNop())
	require.NoError(t, n.Notify(context.Background(), sampleNotification()))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, model.NotifyStepAssigned, got.Kind)
	assert.Equal(t, []string{"alice", "bob"}, got.Recipients)
	assert.Equal(t, "Legal Review", got.StepName)
	assert.NotEmpty(t, got.ID)
}

func TestWebhookNotifier_server_errors_open_breaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{
		URL:            srv.URL,
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour},
	}, zap.NewNop())

	for i := 0; i < 2; i++ {
		assert.Error(t, n.Notify(context.Background(), sampleNotification()))
	}
	err := n.Notify(context.Background(), sampleNotification())

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "open breaker must not reach the endpoint")
	assert.Equal(t, BreakerOpen, n.Breaker().State())
}

func TestWebhookNotifier_client_error_keeps_breaker_closed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{
		URL:            srv.URL,
		CircuitBreaker: config.CircuitBreakerConfig{FailureThreshold: 1},
	}, zap.NewNop())

	assert.Error(t, n.Notify(context.Background(), sampleNotification()))
	assert.Equal(t, BreakerClosed, n.Breaker().State())
}

var (
	_ model.Notifier = (*LogNotifier)(nil)
	_ model.Notifier = (*WebhookNotifier)(nil)
	_ model.Notifier = Multi(nil)
)
