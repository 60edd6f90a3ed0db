package transport

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/signoff/internal/openapi"
	"github.com/pitabwire/signoff/internal/workflow"
	"github.com/pitabwire/signoff/model"
)

type triggerResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	InstanceID string `json:"instanceId,omitempty"`
	Created    bool   `json:"created"`
}

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func triggerMessage(res model.TriggerResult) triggerResponse {
	switch {
	case !res.Matched:
		return triggerResponse{Success: true, Message: "No applicable workflow for this document"}
	case !res.Created:
		return triggerResponse{Success: true, Message: "Workflow already active", InstanceID: res.Instance.ID}
	default:
		return triggerResponse{Success: true, Message: "Workflow triggered successfully", InstanceID: res.Instance.ID, Created: true}
	}
}

// actingUser returns the authenticated subject when present, else the user
// named in the request.
func actingUser(r *http.Request, fromBody string) string {
	if rctx := model.RequestContextFrom(r.Context()); rctx.Authenticated() {
		return rctx.SubjectID
	}
	return fromBody
}

func handleTrigger(engine *workflow.Engine, spec *openapi.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DocumentID     string `json:"documentId"`
			CollectionSlug string `json:"collectionSlug"`
		}
		if err := decodeBody(r, spec, "triggerWorkflow", &body); err != nil {
			WriteError(w, r, err)
			return
		}

		res, err := engine.Trigger(r.Context(), body.DocumentID, body.CollectionSlug)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, triggerMessage(res))
	}
}

func handleStatus(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := chi.URLParam(r, "documentId")
		collection := r.URL.Query().Get("collection")
		if collection == "" {
			WriteError(w, r, model.NewMissingFieldsError("collection"))
			return
		}

		status, err := engine.Status(r.Context(), documentID, collection)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, status)
	}
}

func handleAction(engine *workflow.Engine, spec *openapi.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DocumentID     string `json:"documentId"`
			CollectionSlug string `json:"collectionSlug"`
			StepIndex      *int   `json:"stepIndex"`
			UserID         string `json:"userId"`
			Action         string `json:"action"`
			Comment        string `json:"comment"`
		}
		if err := decodeBody(r, spec, "submitAction", &body); err != nil {
			WriteError(w, r, err)
			return
		}
		if body.StepIndex == nil {
			WriteError(w, r, model.NewMissingFieldsError("stepIndex"))
			return
		}

		err := engine.Submit(r.Context(), workflow.Decision{
			DocumentID: body.DocumentID,
			Collection: body.CollectionSlug,
			StepIndex:  *body.StepIndex,
			UserID:     actingUser(r, body.UserID),
			Action:     body.Action,
			Comment:    body.Comment,
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, actionResponse{
			Success: true,
			Message: fmt.Sprintf("Action %s processed successfully", body.Action),
		})
	}
}

func handleCancel(engine *workflow.Engine, spec *openapi.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DocumentID     string `json:"documentId"`
			CollectionSlug string `json:"collectionSlug"`
			UserID         string `json:"userId"`
			Reason         string `json:"reason"`
		}
		if err := decodeBody(r, spec, "cancelWorkflow", &body); err != nil {
			WriteError(w, r, err)
			return
		}

		err := engine.Cancel(r.Context(), body.DocumentID, body.CollectionSlug, actingUser(r, body.UserID), body.Reason)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, actionResponse{Success: true, Message: "Workflow cancelled"})
	}
}

func handleList(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := model.InstanceFilters{
			WorkflowID: q.Get("workflowId"),
			Collection: q.Get("collection"),
			ActiveOnly: q.Get("all") != "true",
			Limit:      queryInt(r, "limit", 100),
		}

		instances, err := engine.List(r.Context(), filters)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if instances == nil {
			instances = []model.WorkflowInstance{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"instances": instances})
	}
}

func handleAuditTrail(engine *workflow.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := chi.URLParam(r, "documentId")
		collection := r.URL.Query().Get("collection")
		if collection == "" {
			WriteError(w, r, model.NewMissingFieldsError("collection"))
			return
		}

		entries, err := engine.AuditTrail(r.Context(), documentID, collection)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if entries == nil {
			entries = []model.AuditLogEntry{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
