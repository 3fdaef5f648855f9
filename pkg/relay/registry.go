package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/finestra/pkg/events"
)

// ViewHandle identifies one attached view. See events.ViewHandle.
type ViewHandle = events.ViewHandle

// viewState is the per-handle record. Config fields are guarded by mu;
// navigation calls against the control are serialized by navMu. Lifecycle
// handlers only ever take mu, so a control that fires callbacks from inside
// a navigation cannot deadlock against Commit.
type viewState struct {
	handle  ViewHandle
	control Control

	mu               sync.Mutex
	source           *Source
	sourceUpdated    bool
	lastKind         SourceKind
	injectedJS       string
	messagingEnabled bool

	navMu sync.Mutex

	disposers []Disposer

	// evalCtx covers fire-and-forget script evaluations and is cancelled on
	// detach.
	evalCtx    context.Context
	evalCancel context.CancelFunc
}

// Registry maps handles to their view state. Insertion and removal of
// different handles may happen concurrently.
type Registry struct {
	mu    sync.RWMutex
	views map[ViewHandle]*viewState
}

func NewRegistry() *Registry {
	return &Registry{
		views: map[ViewHandle]*viewState{},
	}
}

func (r *Registry) add(handle ViewHandle, st *viewState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[handle]; ok {
		return errors.Wrapf(ErrViewAlreadyAttached, "handle %d", handle)
	}
	r.views[handle] = st
	return nil
}

func (r *Registry) get(handle ViewHandle) (*viewState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.views[handle]
	return st, ok
}

func (r *Registry) remove(handle ViewHandle) (*viewState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.views[handle]
	if ok {
		delete(r.views, handle)
	}
	return st, ok
}

// Handles returns the attached handles in ascending order.
func (r *Registry) Handles() []ViewHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]ViewHandle, 0, len(r.views))
	for h := range r.views {
		ret = append(ret, h)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}
