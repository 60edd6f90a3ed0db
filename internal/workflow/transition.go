package workflow

import (
	"github.com/pitabwire/signoff/internal/audit"
	"github.com/pitabwire/signoff/model"
)

// transition accumulates the effects of one locked operation on an
// instance: audit events and state are committed together, notifications
// and metrics are emitted afterwards.
type transition struct {
	def     model.WorkflowDefinition
	inst    *model.WorkflowInstance
	doc     model.Document
	subject audit.Subject
	create  bool

	events        []audit.Event
	notifications []model.Notification
	afterCommit   []func()
}

func newTransition(def model.WorkflowDefinition, inst *model.WorkflowInstance, doc model.Document, create bool) *transition {
	if doc == nil {
		doc = model.Document{}
	}
	return &transition{
		def:  def,
		inst: inst,
		doc:  doc,
		subject: audit.Subject{
			InstanceID:   inst.ID,
			WorkflowID:   def.ID,
			WorkflowName: def.Name,
			Document: model.DocumentRef{
				ID:         inst.DocumentID,
				Collection: inst.Collection,
				Title:      doc.Title(),
			},
		},
		create: create,
	}
}

func (t *transition) record(ev audit.Event) {
	t.events = append(t.events, ev)
}

func (t *transition) notify(n model.Notification) {
	if len(n.Recipients) == 0 {
		return
	}
	t.notifications = append(t.notifications, n)
}

func (t *transition) after(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}
