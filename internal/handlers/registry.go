package handlers

import (
	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/errs"
	"github.com/linlanniao/odinscheduler/internal/types"
)

// Registry is the Handler Registry of spec §4.5: an exact-match mapping
// from resource-kind tag to Handler instance.
type Registry struct {
	handlers map[types.ResourceKind]Handler
}

// NewRegistry wires the default set of Handlers against a single
// Cluster Client, the way the teacher's manager.go wires its one
// Clientset into every controller.
func NewRegistry(cc *cluster.Client) *Registry {
	pod := NewPodHandler(cc)
	job := NewBatchJobHandler(cc)
	r := &Registry{handlers: map[types.ResourceKind]Handler{
		types.ResourcePod:      pod,
		types.ResourceBatchJob: job,
	}}
	for _, kind := range []types.ResourceKind{
		types.ResourceTFJob, types.ResourcePyTorchJob, types.ResourceElasticJob, types.ResourceMPIJob,
	} {
		r.handlers[kind] = NewMultiWorkerHandler(kind, cc)
	}
	return r
}

// NewRegistryWithHandlers builds a Registry directly from a kind->Handler
// mapping, bypassing NewRegistry's Cluster Client wiring. Used by tests
// that exercise Resolve/Executor dispatch against fake Handlers.
func NewRegistryWithHandlers(handlers map[types.ResourceKind]Handler) *Registry {
	return &Registry{handlers: handlers}
}

// Resolve returns the Handler for kind, or UnsupportedResourceKind if
// none is registered (spec §4.5).
func (r *Registry) Resolve(kind types.ResourceKind) (Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, errs.UnsupportedResourceKind(string(kind))
	}
	return h, nil
}
