package condition

import (
	"testing"

	"github.com/pitabwire/signoff/model"
)

func TestEvaluate(t *testing.T) {
	doc := map[string]any{
		"title":  "Supply agreement",
		"amount": 25000,
		"ratio":  float64(1.5),
		"code":   "007",
		"status": "draft",
		"tags":   []any{"legal", "vendor"},
		"notes":  "",
		"author": map[string]any{"department": "Legal"},
	}

	tests := []struct {
		name string
		cond model.Condition
		want bool
	}{
		{"equals string", model.Condition{Field: "status", Operator: model.OpEquals, Value: "draft"}, true},
		{"equals numeric across types", model.Condition{Field: "amount", Operator: model.OpEquals, Value: "25000"}, true},
		{"equals float as text", model.Condition{Field: "ratio", Operator: model.OpEquals, Value: "1.5"}, true},
		{"equals compares text not value", model.Condition{Field: "ratio", Operator: model.OpEquals, Value: "1.50"}, false},
		{"equals leading zeros", model.Condition{Field: "code", Operator: model.OpEquals, Value: 7}, false},
		{"not equals text", model.Condition{Field: "code", Operator: model.OpNotEquals, Value: "7"}, true},
		{"not equals", model.Condition{Field: "status", Operator: model.OpNotEquals, Value: "published"}, true},
		{"greater than string literal", model.Condition{Field: "amount", Operator: model.OpGreater, Value: "10000"}, true},
		{"greater than false", model.Condition{Field: "amount", Operator: model.OpGreater, Value: 30000}, false},
		{"less than", model.Condition{Field: "amount", Operator: model.OpLess, Value: 30000.5}, true},
		{"greater than non numeric", model.Condition{Field: "status", Operator: model.OpGreater, Value: 1}, false},
		{"contains substring", model.Condition{Field: "title", Operator: model.OpContains, Value: "agree"}, true},
		{"contains list member", model.Condition{Field: "tags", Operator: model.OpContains, Value: "vendor"}, true},
		{"not contains", model.Condition{Field: "tags", Operator: model.OpNotContain, Value: "hr"}, true},
		{"is empty string", model.Condition{Field: "notes", Operator: model.OpEmpty}, true},
		{"is empty missing", model.Condition{Field: "missing", Operator: model.OpEmpty}, true},
		{"is not empty", model.Condition{Field: "title", Operator: model.OpNotEmpty}, true},
		{"nested path", model.Condition{Field: "author.department", Operator: model.OpEquals, Value: "Legal"}, true},
		{"nested path through scalar", model.Condition{Field: "status.x", Operator: model.OpNotEmpty}, false},
		{"unknown operator", model.Condition{Field: "status", Operator: "matches", Value: "d.*"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.cond, doc); got != tt.want {
				t.Errorf("Evaluate(%+v) = %v, want %v", tt.cond, got, tt.want)
			}
		})
	}
}

func TestAll(t *testing.T) {
	doc := map[string]any{"amount": 5, "region": "EU"}
	conds := []model.Condition{
		{Field: "amount", Operator: model.OpLess, Value: 10},
		{Field: "region", Operator: model.OpEquals, Value: "EU"},
	}
	if !All(conds, doc) {
		t.Error("expected all conditions to hold")
	}
	conds = append(conds, model.Condition{Field: "region", Operator: model.OpEquals, Value: "US"})
	if All(conds, doc) {
		t.Error("expected failure when one condition fails")
	}
	if !All(nil, doc) {
		t.Error("empty condition list should hold")
	}
}

func TestKnown(t *testing.T) {
	if !Known(model.OpNotEmpty) {
		t.Error("is_not_empty should be known")
	}
	if Known("regex") {
		t.Error("regex should not be known")
	}
}
