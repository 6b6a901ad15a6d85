// Package progress implements the in-process publish/subscribe channel for
// analysis progress. State is partitioned by analysis id: publishes for one
// analysis are totally ordered, and there is no ordering guarantee across
// analyses. State lives only for the process lifetime.
package progress

import (
	"sync"
	"time"

	"github.com/cloo-solutions/attestai/internal/domain"
)

const (
	// subscriberBuffer is the per-subscriber channel capacity. A subscriber
	// that falls this far behind skips intermediate snapshots; it always
	// ends up observing the newest state.
	subscriberBuffer = 64

	// interimTail bounds the interim-result list carried in each snapshot.
	// Older entries are dropped from the snapshot tail; the full results
	// are persisted as evidence mappings regardless.
	interimTail = 50
)

// Subscription is one observer's handle on an analysis progress stream
type Subscription struct {
	id int
	C  <-chan domain.ProgressState
}

type analysisState struct {
	state   domain.ProgressState
	subs    map[int]chan domain.ProgressState
	nextSub int
}

// Registry holds the latest known ProgressState per analysis and fans
// published updates out to subscribers. It is an explicit instance injected
// into the orchestrator and the subscription endpoint, never package state.
type Registry struct {
	mu       sync.Mutex
	analyses map[string]*analysisState
	now      func() time.Time
}

// NewRegistry creates a new Registry instance
func NewRegistry() *Registry {
	return &Registry{
		analyses: make(map[string]*analysisState),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish merges the update into the analysis' current state, stamps it and
// forwards the new snapshot to every current subscriber. The state is
// retained even with no subscribers so late observers receive it on connect.
func (r *Registry) Publish(analysisID string, update domain.ProgressUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	as := r.ensureLocked(analysisID)
	as.state.Apply(update)
	as.state.UpdatedAt = r.now()
	r.broadcastLocked(as)
}

// AppendInterim appends one per-control result to the snapshot tail and
// re-publishes the state.
func (r *Registry) AppendInterim(analysisID string, result domain.InterimResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	as := r.ensureLocked(analysisID)
	as.state.InterimResults = append(as.state.InterimResults, result)
	if len(as.state.InterimResults) > interimTail {
		as.state.InterimResults = as.state.InterimResults[len(as.state.InterimResults)-interimTail:]
	}
	as.state.UpdatedAt = r.now()
	r.broadcastLocked(as)
}

// Subscribe attaches an observer to the analysis' progress stream. The first
// event delivered is always the latest known state, even if the analysis
// already finished; subsequent events arrive in publish order.
func (r *Registry) Subscribe(analysisID string) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	as := r.ensureLocked(analysisID)
	ch := make(chan domain.ProgressState, subscriberBuffer)
	id := as.nextSub
	as.nextSub++
	as.subs[id] = ch

	// Snapshot first. The channel is empty and buffered, so this never blocks.
	ch <- as.state

	return &Subscription{id: id, C: ch}
}

// Unsubscribe detaches one observer and closes its channel. State is never
// evicted here; Evict is an explicit, separate operation.
func (r *Registry) Unsubscribe(analysisID string, sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	as, ok := r.analyses[analysisID]
	if !ok {
		return
	}
	if ch, ok := as.subs[sub.id]; ok {
		delete(as.subs, sub.id)
		close(ch)
	}
}

// Latest returns the latest known state for the analysis, if any
func (r *Registry) Latest(analysisID string) (domain.ProgressState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	as, ok := r.analyses[analysisID]
	if !ok {
		return domain.ProgressState{}, false
	}
	return as.state, true
}

// SeedIfAbsent installs an initial state for the analysis without notifying
// anyone, if no state is tracked yet. Used to rehydrate a snapshot from the
// persisted row when a client subscribes to a job this process never ran.
func (r *Registry) SeedIfAbsent(analysisID string, state domain.ProgressState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.analyses[analysisID]; ok {
		return
	}
	state.AnalysisID = analysisID
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = r.now()
	}
	r.analyses[analysisID] = &analysisState{
		state: state,
		subs:  make(map[int]chan domain.ProgressState),
	}
}

// Evict drops the analysis' state and closes any remaining subscriber
// channels. Eviction is always explicit; nothing in the registry garbage
// collects terminal states on its own.
func (r *Registry) Evict(analysisID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	as, ok := r.analyses[analysisID]
	if !ok {
		return
	}
	for id, ch := range as.subs {
		delete(as.subs, id)
		close(ch)
	}
	delete(r.analyses, analysisID)
}

func (r *Registry) ensureLocked(analysisID string) *analysisState {
	as, ok := r.analyses[analysisID]
	if !ok {
		as = &analysisState{
			state: domain.ProgressState{
				AnalysisID: analysisID,
				Stage:      domain.StageQueued,
			},
			subs: make(map[int]chan domain.ProgressState),
		}
		r.analyses[analysisID] = as
	}
	return as
}

// broadcastLocked delivers the current snapshot to every subscriber without
// blocking the publisher. A full subscriber channel drains its oldest entry
// first, so slow observers skip intermediate states but keep publish order.
func (r *Registry) broadcastLocked(as *analysisState) {
	for _, ch := range as.subs {
		for {
			select {
			case ch <- as.state:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
