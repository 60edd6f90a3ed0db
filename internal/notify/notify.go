// Package notify delivers workflow notifications to assignees and
// escalation targets. Delivery is best-effort: the engine logs failures and
// never rolls back state because of them.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pitabwire/signoff/model"
)

// LogNotifier writes notifications to the application log. It is the
// default sink when no external channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify implements model.Notifier.
func (n *LogNotifier) Notify(_ context.Context, msg model.Notification) error {
	n.logger.Info("notification",
		zap.String("kind", msg.Kind),
		zap.Strings("recipients", msg.Recipients),
		zap.Strings("channels", msg.Channels),
		zap.String("instance_id", msg.InstanceID),
		zap.String("workflow_id", msg.WorkflowID),
		zap.String("document_id", msg.DocumentID),
		zap.String("collection", msg.Collection),
		zap.Int("step_index", msg.StepIndex),
		zap.String("step_name", msg.StepName),
		zap.String("outcome", msg.Outcome),
	)
	return nil
}

// Multi fans a notification out to several notifiers. Every notifier is
// tried; the joined error reports all failures.
type Multi []model.Notifier

// Notify implements model.Notifier.
func (m Multi) Notify(ctx context.Context, msg model.Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
