// Package transport contains the HTTP router, middleware chain and request
// handlers for the workflow API.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/pitabwire/signoff/internal/observability"
	"github.com/pitabwire/signoff/internal/openapi"
	"github.com/pitabwire/signoff/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrUnauthorized:       http.StatusUnauthorized,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrConflict:           http.StatusConflict,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrStorageUnavailable: http.StatusServiceUnavailable,
	model.ErrWorkflowNotFound:   http.StatusNotFound,
	model.ErrWorkflowInactive:   http.StatusConflict,
	model.ErrInvalidStep:        http.StatusUnprocessableEntity,
	model.ErrNotAssigned:        http.StatusForbidden,
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope with the matching HTTP status. Any
// other error becomes a generic 500 so internal detail never leaks.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	out := *ee
	if r != nil {
		out.TraceID = observability.TraceIDFromContext(r.Context())
	}
	WriteJSON(w, status, errorResponse{Error: &out})
}

// decodeBody reads a JSON object from the request, checks it against the
// operation's request schema when spec is set and fills dst.
func decodeBody(r *http.Request, spec *openapi.Spec, operationID string, dst any) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewBadRequestError("Request body too large")
		}
		return model.NewBadRequestError("Unable to read request body")
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return model.NewBadRequestError("Invalid JSON body")
	}
	if _, ok := generic.(map[string]any); !ok {
		return model.NewBadRequestError("Request body must be a JSON object")
	}
	if spec != nil {
		if err := spec.ValidateBody(operationID, generic); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return model.NewBadRequestError("Invalid JSON body")
	}
	return nil
}
