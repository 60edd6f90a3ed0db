package workflow

import "time"

// Recorder receives engine metrics.
type Recorder interface {
	RecordTrigger(workflowID, result string)
	RecordDecision(workflowID, action string)
	RecordStepDuration(workflowID, stepID string, d time.Duration)
	RecordCompletion(workflowID, outcome string, d time.Duration)
	RecordSLAExceeded(workflowID, stepID string)
	RecordEscalation(workflowID, stepID string)
	RecordNotificationFailure(kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTrigger(string, string)                     {}
func (nopRecorder) RecordDecision(string, string)                    {}
func (nopRecorder) RecordStepDuration(string, string, time.Duration) {}
func (nopRecorder) RecordCompletion(string, string, time.Duration)   {}
func (nopRecorder) RecordSLAExceeded(string, string)                 {}
func (nopRecorder) RecordEscalation(string, string)                  {}
func (nopRecorder) RecordNotificationFailure(string)                 {}
