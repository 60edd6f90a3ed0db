package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/signoff/internal/condition"
	"github.com/pitabwire/signoff/model"
)

// snapshot is an immutable view of the catalog.
type snapshot struct {
	ordered   []model.WorkflowDefinition
	workflows map[string]model.WorkflowDefinition
	files     int
	checksum  string
}

// Registry is a read-optimized, thread-safe store of workflow definitions.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given catalog files.
func NewRegistry(files []model.CatalogFile) *Registry {
	r := &Registry{}
	r.Replace(files)
	return r
}

// Replace atomically swaps the registry contents. Catalog order follows the
// order of files and of workflows within each file.
func (r *Registry) Replace(files []model.CatalogFile) {
	s := &snapshot{
		workflows: make(map[string]model.WorkflowDefinition),
		files:     len(files),
	}

	var checksumParts []string
	for _, f := range files {
		checksumParts = append(checksumParts, f.Checksum)
		for _, w := range f.Workflows {
			if _, dup := s.workflows[w.ID]; dup {
				continue
			}
			s.workflows[w.ID] = w
			s.ordered = append(s.ordered, w)
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetWorkflow returns the workflow definition with the given ID.
func (r *Registry) GetWorkflow(workflowID string) (model.WorkflowDefinition, bool) {
	w, ok := r.current().workflows[workflowID]
	return w, ok
}

// All returns every workflow in catalog order.
func (r *Registry) All() []model.WorkflowDefinition {
	s := r.current()
	out := make([]model.WorkflowDefinition, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// FindApplicable returns the first active workflow in catalog order with an
// AppliesTo entry for collection whose condition, if any, holds for doc.
func (r *Registry) FindApplicable(collection string, doc model.Document) (model.WorkflowDefinition, bool) {
	for _, wf := range r.current().ordered {
		if !wf.IsActive {
			continue
		}
		for _, at := range wf.AppliesTo {
			if at.Collection != collection {
				continue
			}
			if at.Condition == nil || condition.Evaluate(*at.Condition, doc) {
				return wf, true
			}
		}
	}
	return model.WorkflowDefinition{}, false
}

// Len returns the number of loaded workflows.
func (r *Registry) Len() int {
	return len(r.current().ordered)
}

// Checksum returns the combined checksum of all loaded catalog files.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
