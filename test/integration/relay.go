package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// RelayMessage is a notification as received by the webhook relay.
type RelayMessage struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Recipients []string `json:"recipients"`
	InstanceID string   `json:"instanceId"`
	WorkflowID string   `json:"workflowId"`
	DocumentID string   `json:"documentId"`
	StepIndex  int      `json:"stepIndex"`
	StepName   string   `json:"stepName"`
	Outcome    string   `json:"outcome"`
}

// MockRelay stands in for the mail or chat relay behind the notification
// webhook. It records every delivery and can be told to fail.
type MockRelay struct {
	server *httptest.Server
	status atomic.Int32
	hits   atomic.Int32

	mu       sync.Mutex
	received []RelayMessage
}

func newMockRelay(t *testing.T) *MockRelay {
	t.Helper()
	mr := &MockRelay{}
	mr.status.Store(http.StatusAccepted)

	mr.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr.hits.Add(1)
		status := int(mr.status.Load())
		if status < 300 {
			var msg RelayMessage
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mr.mu.Lock()
			mr.received = append(mr.received, msg)
			mr.mu.Unlock()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(mr.server.Close)
	return mr
}

// URL returns the relay endpoint.
func (mr *MockRelay) URL() string {
	return mr.server.URL
}

// RespondWith makes every following delivery return status.
func (mr *MockRelay) RespondWith(status int) {
	mr.status.Store(int32(status))
}

// Hits returns the number of requests that reached the relay.
func (mr *MockRelay) Hits() int {
	return int(mr.hits.Load())
}

// Received returns the accepted messages of the given kind.
func (mr *MockRelay) Received(kind string) []RelayMessage {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	var out []RelayMessage
	for _, m := range mr.received {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}
