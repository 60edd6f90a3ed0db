// Package openapi serves and enforces the HTTP API description. The
// document is embedded in the binary, validated at startup and indexed by
// operationId so handlers can check request bodies against it.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/pitabwire/signoff/model"
)

//go:embed signoff.yaml
var specYAML []byte

// Operation is one indexed API operation.
type Operation struct {
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	RequestBody  *openapi3.RequestBody
}

// Spec is a loaded, validated API description.
type Spec struct {
	doc        *openapi3.T
	json       []byte
	operations map[string]Operation
}

// Load parses and validates the embedded API description.
func Load(ctx context.Context) (*Spec, error) {
	return LoadFromData(ctx, specYAML)
}

// LoadFromData parses and validates an API description from raw YAML or
// JSON.
func LoadFromData(ctx context.Context, data []byte) (*Spec, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validating: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi: encoding: %w", err)
	}

	s := &Spec{doc: doc, json: raw, operations: make(map[string]Operation)}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				continue
			}
			params := make([]*openapi3.Parameter, 0, len(item.Parameters)+len(op.Parameters))
			for _, ref := range item.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			for _, ref := range op.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			var body *openapi3.RequestBody
			if op.RequestBody != nil {
				body = op.RequestBody.Value
			}
			s.operations[op.OperationID] = Operation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				Parameters:   params,
				RequestBody:  body,
			}
		}
	}
	return s, nil
}

// Operation returns the operation with the given id.
func (s *Spec) Operation(id string) (Operation, bool) {
	op, ok := s.operations[id]
	return op, ok
}

// OperationIDs returns every indexed operation id, sorted.
func (s *Spec) OperationIDs() []string {
	ids := make([]string, 0, len(s.operations))
	for id := range s.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Version returns the API version from the info block.
func (s *Spec) Version() string {
	return s.doc.Info.Version
}

// ValidateBody checks a decoded JSON body against the operation's request
// schema. Missing required properties are reported the same way the engine
// reports them; any other violation is a BAD_REQUEST with field details.
func (s *Spec) ValidateBody(operationID string, body any) error {
	op, ok := s.operations[operationID]
	if !ok {
		return fmt.Errorf("openapi: unknown operation %q", operationID)
	}
	if op.RequestBody == nil {
		return nil
	}
	media := op.RequestBody.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		return nil
	}

	err := media.Schema.Value.VisitJSON(body, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	var (
		missing []string
		invalid []model.FieldError
	)
	for _, e := range flatten(err) {
		var se *openapi3.SchemaError
		if !errors.As(e, &se) {
			invalid = append(invalid, model.FieldError{Code: "INVALID", Message: e.Error()})
			continue
		}
		field := strings.Join(se.JSONPointer(), ".")
		if se.SchemaField == "required" {
			missing = append(missing, field)
			continue
		}
		invalid = append(invalid, model.FieldError{Field: field, Code: "INVALID", Message: se.Reason})
	}

	if len(missing) > 0 && len(invalid) == 0 {
		return model.NewMissingFieldsError(missing...)
	}
	env := model.NewBadRequestError("Invalid request body")
	for _, f := range missing {
		env.Details = append(env.Details, model.FieldError{Field: f, Code: "REQUIRED", Message: f + " is required"})
	}
	env.Details = append(env.Details, invalid...)
	return env
}

func flatten(err error) []error {
	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		return []error{err}
	}
	var out []error
	for _, e := range multi {
		out = append(out, flatten(e)...)
	}
	return out
}

// Handler serves the API description as JSON.
func (s *Spec) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Write(s.json)
	}
}
