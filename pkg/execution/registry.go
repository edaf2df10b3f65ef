// Package execution implements the simulated run engine: the run
// registry the rendering layer observes, the dependency walker that
// traverses a group's subgraph, and the orchestrator exposing
// run/stop commands at node, group and workspace scope.
package execution

import (
	"sort"
	"sync"
)

// Registry tracks which nodes, groups and connectors are currently
// simulated as running. It is shared between the walker, the
// orchestrator and the read side; every mutation happens under one
// lock so readers always see a fully-formed set.
type Registry struct {
	mu sync.Mutex

	runningNodes     map[string]struct{}
	runningGroups    map[string]struct{}
	activeConnectors map[string]struct{}
	globalRunning    bool
}

// Snapshot is an immutable copy of the registry state, with ids sorted
// for stable output.
type Snapshot struct {
	RunningNodes     []string `json:"running_nodes"`
	RunningGroups    []string `json:"running_groups"`
	ActiveConnectors []string `json:"active_connectors"`
	GlobalRunning    bool     `json:"is_global_running"`
}

func NewRegistry() *Registry {
	return &Registry{
		runningNodes:     make(map[string]struct{}),
		runningGroups:    make(map[string]struct{}),
		activeConnectors: make(map[string]struct{}),
	}
}

func (r *Registry) MarkNodeRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runningNodes[id] = struct{}{}
}

func (r *Registry) UnmarkNodeRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runningNodes, id)
}

func (r *Registry) IsNodeRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.runningNodes[id]

	return ok
}

func (r *Registry) MarkGroupRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runningGroups[id] = struct{}{}
}

func (r *Registry) UnmarkGroupRunning(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runningGroups, id)
}

func (r *Registry) IsGroupRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.runningGroups[id]

	return ok
}

func (r *Registry) ActivateConnector(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activeConnectors[id] = struct{}{}
}

func (r *Registry) DeactivateConnector(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.activeConnectors, id)
}

func (r *Registry) SetGlobalRunning(running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.globalRunning = running
}

func (r *Registry) IsGlobalRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.globalRunning
}

// ClearNodes removes the given node ids from the running set.
func (r *Registry) ClearNodes(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.runningNodes, id)
	}
}

// ClearConnectors removes the given connector ids from the active set.
func (r *Registry) ClearConnectors(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		delete(r.activeConnectors, id)
	}
}

// Reset empties every bucket. Used by stop-all.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runningNodes = make(map[string]struct{})
	r.runningGroups = make(map[string]struct{})
	r.activeConnectors = make(map[string]struct{})
	r.globalRunning = false
}

// Snapshot returns a consistent copy of the registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Snapshot{
		RunningNodes:     sortedKeys(r.runningNodes),
		RunningGroups:    sortedKeys(r.runningGroups),
		ActiveConnectors: sortedKeys(r.activeConnectors),
		GlobalRunning:    r.globalRunning,
	}
}

// Empty reports whether nothing is running or animating.
func (r *Registry) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.runningNodes) == 0 &&
		len(r.runningGroups) == 0 &&
		len(r.activeConnectors) == 0 &&
		!r.globalRunning
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
