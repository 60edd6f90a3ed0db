package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/config"
	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/model"
)

// webhookPayload is the JSON body posted for every notification.
type webhookPayload struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Recipients   []string `json:"recipients"`
	Channels     []string `json:"channels,omitempty"`
	InstanceID   string   `json:"instanceId"`
	WorkflowID   string   `json:"workflowId"`
	WorkflowName string   `json:"workflowName"`
	DocumentID   string   `json:"documentId"`
	Collection   string   `json:"collection"`
	DocumentName string   `json:"documentName,omitempty"`
	StepIndex    int      `json:"stepIndex"`
	StepName     string   `json:"stepName"`
	Outcome      string   `json:"outcome,omitempty"`
	SentAt       string   `json:"sentAt"`
}

// WebhookNotifier posts notifications as JSON to an HTTP endpoint, for
// example a mail or chat relay. A circuit breaker stops hammering an
// endpoint that keeps failing.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time
}

// NewWebhookNotifier creates a WebhookNotifier from configuration.
func NewWebhookNotifier(cfg config.WebhookConfig, logger *zap.Logger) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cb := cfg.CircuitBreaker
	return &WebhookNotifier{
		url: cfg.URL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout),
		logger:  logger.Named("webhook"),
		now:     time.Now,
	}
}

// Breaker exposes the circuit breaker for diagnostics.
func (n *WebhookNotifier) Breaker() *CircuitBreaker {
	return n.breaker
}

// Notify implements model.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, msg model.Notification) (err error) {
	ctx, span := observability.StartSpan(ctx, "notify.webhook",
		observability.AttrInstanceID.String(msg.InstanceID),
		observability.AttrWorkflowID.String(msg.WorkflowID),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	if err := n.breaker.Allow(); err != nil {
		return err
	}

	body, err := json.Marshal(webhookPayload{
		ID:           uuid.New().String(),
		Kind:         msg.Kind,
		Recipients:   msg.Recipients,
		Channels:     msg.Channels,
		InstanceID:   msg.InstanceID,
		WorkflowID:   msg.WorkflowID,
		WorkflowName: msg.WorkflowName,
		DocumentID:   msg.DocumentID,
		Collection:   msg.Collection,
		DocumentName: msg.DocumentName,
		StepIndex:    msg.StepIndex,
		StepName:     msg.StepName,
		Outcome:      msg.Outcome,
		SentAt:       n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	observability.InjectTraceHeaders(ctx, req.Header)

	resp, err := n.client.Do(req)
	if err != nil {
		n.breaker.RecordFailure()
		return fmt.Errorf("notify: post %s: %w", msg.Kind, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 500:
		n.breaker.RecordFailure()
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		// The endpoint is up but refused this payload.
		return fmt.Errorf("notify: webhook rejected notification with %d", resp.StatusCode)
	}

	n.breaker.RecordSuccess()
	n.logger.Debug("notification delivered",
		zap.String("kind", msg.Kind),
		zap.String("instance_id", msg.InstanceID),
	)
	return nil
}
