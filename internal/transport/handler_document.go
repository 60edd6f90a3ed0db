package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/signoff/internal/openapi"
	"github.com/pitabwire/signoff/internal/workflow"
	"github.com/pitabwire/signoff/model"
)

// handleDocumentEvent receives document lifecycle events from the content
// store. A document body sent with the event is saved first when the store
// accepts writes, so conditions see the latest fields.
func handleDocumentEvent(engine *workflow.Engine, documents model.DocumentStore, spec *openapi.Spec, logger *zap.Logger) http.HandlerFunc {
	writer, _ := documents.(model.DocumentWriter)

	return func(w http.ResponseWriter, r *http.Request) {
		collection := chi.URLParam(r, "collection")
		documentID := chi.URLParam(r, "documentId")

		var body struct {
			Operation string         `json:"operation"`
			Document  model.Document `json:"document"`
		}
		if err := decodeBody(r, spec, "documentEvent", &body); err != nil {
			WriteError(w, r, err)
			return
		}
		if body.Operation == "" {
			WriteError(w, r, model.NewMissingFieldsError("operation"))
			return
		}

		if body.Document != nil {
			if writer == nil {
				WriteError(w, r, model.NewBadRequestError("The document store does not accept document bodies"))
				return
			}
			if err := writer.SaveDocument(r.Context(), collection, documentID, body.Document); err != nil {
				logger.Error("saving document", zap.String("collection", collection), zap.String("document_id", documentID), zap.Error(err))
				WriteError(w, r, model.NewStorageUnavailableError())
				return
			}
		}

		res, err := engine.HandleDocumentEvent(r.Context(), collection, documentID, body.Operation)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, triggerMessage(res))
	}
}
