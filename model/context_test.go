package model

import (
	"context"
	"testing"
)

func TestRequestContext_roundtrip(t *testing.T) {
	rc := &RequestContext{SubjectID: "user-1", Roles: []string{RoleManager}}
	ctx := WithRequestContext(context.Background(), rc)

	got := RequestContextFrom(ctx)
	if got != rc {
		t.Fatalf("RequestContextFrom returned %v, want %v", got, rc)
	}
	if !got.HasRole(RoleManager) {
		t.Error("expected manager role")
	}
	if got.HasRole(RoleAdmin) {
		t.Error("unexpected admin role")
	}
}

func TestRequestContextFrom_missing(t *testing.T) {
	if rc := RequestContextFrom(context.Background()); rc != nil {
		t.Errorf("expected nil, got %v", rc)
	}
}

func TestRequestContext_Authenticated(t *testing.T) {
	var nilRC *RequestContext
	if nilRC.Authenticated() {
		t.Error("nil context should not be authenticated")
	}
	if (&RequestContext{}).Authenticated() {
		t.Error("empty subject should not be authenticated")
	}
	if !(&RequestContext{SubjectID: "u"}).Authenticated() {
		t.Error("subject should be authenticated")
	}
}
