package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/signoff/model"
)

func loadSpec(t *testing.T) *Spec {
	t.Helper()
	s, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestLoad_indexes_operations(t *testing.T) {
	s := loadSpec(t)

	want := []string{
		"cancelWorkflow", "documentEvent", "getAuditTrail", "getWorkflowStatus",
		"listWorkflows", "submitAction", "triggerWorkflow",
	}
	got := s.OperationIDs()
	if len(got) != len(want) {
		t.Fatalf("OperationIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("OperationIDs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if s.Version() != "1.0.0" {
		t.Errorf("Version() = %q", s.Version())
	}
}

func TestOperation_path_and_params(t *testing.T) {
	s := loadSpec(t)

	op, ok := s.Operation("getWorkflowStatus")
	if !ok {
		t.Fatal("getWorkflowStatus not indexed")
	}
	if op.Method != http.MethodGet || op.PathTemplate != "/api/workflows/status/{documentId}" {
		t.Errorf("op = %s %s", op.Method, op.PathTemplate)
	}
	if len(op.Parameters) != 2 {
		t.Errorf("Parameters = %d, want 2", len(op.Parameters))
	}

	if _, ok := s.Operation("nope"); ok {
		t.Error("unknown operation should not be found")
	}
}

func TestLoadFromData_rejects_invalid_document(t *testing.T) {
	_, err := LoadFromData(context.Background(), []byte(`openapi: 3.0.3
info:
  title: broken
paths: {}`))
	if err == nil {
		t.Fatal("expected validation error for missing info.version")
	}
}

func decode(t *testing.T, body string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestValidateBody(t *testing.T) {
	s := loadSpec(t)

	tests := []struct {
		name    string
		op      string
		body    string
		code    string
		message string
	}{
		{"valid action", "submitAction", `{"documentId":"d","collectionSlug":"posts","stepIndex":0,"userId":"u","action":"approve"}`, "", ""},
		{"missing fields", "triggerWorkflow", `{"documentId":"d"}`, model.ErrBadRequest, "Missing required fields"},
		{"bad enum", "submitAction", `{"documentId":"d","collectionSlug":"posts","stepIndex":0,"userId":"u","action":"veto"}`, model.ErrBadRequest, "Invalid request body"},
		{"negative step", "submitAction", `{"documentId":"d","collectionSlug":"posts","stepIndex":-1,"userId":"u","action":"approve"}`, model.ErrBadRequest, "Invalid request body"},
		{"wrong type", "triggerWorkflow", `{"documentId":7,"collectionSlug":"posts"}`, model.ErrBadRequest, "Invalid request body"},
		{"no body schema", "listWorkflows", `{}`, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateBody(tt.op, decode(t, tt.body))
			if tt.code == "" {
				if err != nil {
					t.Fatalf("ValidateBody() = %v, want nil", err)
				}
				return
			}
			env, ok := err.(*model.ErrorEnvelope)
			if !ok {
				t.Fatalf("ValidateBody() = %T %v, want *ErrorEnvelope", err, err)
			}
			if env.Code != tt.code || env.Message != tt.message {
				t.Errorf("got %s %q, want %s %q", env.Code, env.Message, tt.code, tt.message)
			}
		})
	}
}

func TestValidateBody_missing_field_names(t *testing.T) {
	s := loadSpec(t)

	err := s.ValidateBody("triggerWorkflow", decode(t, `{}`))
	env := err.(*model.ErrorEnvelope)
	fields := map[string]bool{}
	for _, d := range env.Details {
		fields[d.Field] = true
	}
	if !fields["documentId"] || !fields["collectionSlug"] {
		t.Errorf("details = %+v, want documentId and collectionSlug", env.Details)
	}
}

func TestHandler_serves_json(t *testing.T) {
	s := loadSpec(t)
	rec := httptest.NewRecorder()
	s.Handler()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if doc["openapi"] != "3.0.3" {
		t.Errorf("openapi = %v", doc["openapi"])
	}
}
