package encoder

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

// Handle is image data held in memory behind a revocable reference.
type Handle struct {
	ID       string
	MimeType string
	Data     []byte
	Created  time.Time
}

// HandleLimits bounds how many handles a registry keeps. Zero values mean
// no limit.
type HandleLimits struct {
	// MaxCount is the number of live handles kept. Registering past it
	// releases the oldest handle.
	MaxCount int
	// TTL is how long a handle lives after it was registered.
	TTL time.Duration
}

// HandleRegistry issues handle references. Handles live until revoked,
// until they expire or are displaced under HandleLimits, or until the
// process exits.
type HandleRegistry struct {
	baseURL string
	limits  HandleLimits
	now     func() time.Time

	mu      sync.Mutex
	handles map[string]*list.Element
	// order holds *Handle oldest first.
	order *list.List
}

// NewHandleRegistry creates a registry whose references are baseURL + id.
func NewHandleRegistry(baseURL string, limits HandleLimits) *HandleRegistry {
	return &HandleRegistry{
		baseURL: baseURL,
		limits:  limits,
		now:     time.Now,
		handles: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Register stores data and returns its reference.
func (r *HandleRegistry) Register(data []byte, mimeType string) string {
	r.mu.Lock()
	h := &Handle{
		ID:       uuid.NewString(),
		MimeType: mimeType,
		Data:     data,
		Created:  r.now(),
	}

	r.pruneLocked()
	if r.limits.MaxCount > 0 {
		for r.order.Len() >= r.limits.MaxCount {
			r.removeLocked(r.order.Front())
			metrics.HandlesExpired.WithLabelValues("capacity").Inc()
		}
	}
	r.handles[h.ID] = r.order.PushBack(h)
	n := len(r.handles)
	r.mu.Unlock()

	metrics.HandlesActive.Set(float64(n))
	return r.baseURL + h.ID
}

// Resolve looks up a handle by reference or bare id. Expired handles do
// not resolve.
func (r *HandleRegistry) Resolve(ref string) (*Handle, bool) {
	r.mu.Lock()
	pruned := r.pruneLocked()
	el, ok := r.handles[r.id(ref)]
	n := len(r.handles)
	r.mu.Unlock()

	if pruned > 0 {
		metrics.HandlesActive.Set(float64(n))
	}
	if !ok {
		return nil, false
	}
	return el.Value.(*Handle), true
}

// Revoke releases a handle. It reports whether the handle existed.
func (r *HandleRegistry) Revoke(ref string) bool {
	r.mu.Lock()
	el, ok := r.handles[r.id(ref)]
	if ok {
		r.removeLocked(el)
	}
	n := len(r.handles)
	r.mu.Unlock()

	metrics.HandlesActive.Set(float64(n))
	return ok
}

// RevokeAll releases every handle and returns how many there were.
func (r *HandleRegistry) RevokeAll() int {
	r.mu.Lock()
	n := len(r.handles)
	r.handles = make(map[string]*list.Element)
	r.order.Init()
	r.mu.Unlock()

	metrics.HandlesActive.Set(0)
	return n
}

// Prune releases expired handles and returns how many it released.
func (r *HandleRegistry) Prune() int {
	r.mu.Lock()
	pruned := r.pruneLocked()
	n := len(r.handles)
	r.mu.Unlock()

	metrics.HandlesActive.Set(float64(n))
	if pruned > 0 {
		logging.Debug("Released %d expired handles", pruned)
	}
	return pruned
}

// Len returns the number of live handles, including expired ones not yet
// pruned.
func (r *HandleRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// pruneLocked drops expired handles from the front of order. Handles are
// appended in creation order, so the first live one ends the scan.
func (r *HandleRegistry) pruneLocked() int {
	if r.limits.TTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.limits.TTL)
	pruned := 0
	for el := r.order.Front(); el != nil; el = r.order.Front() {
		if el.Value.(*Handle).Created.After(cutoff) {
			break
		}
		r.removeLocked(el)
		pruned++
	}
	if pruned > 0 {
		metrics.HandlesExpired.WithLabelValues("ttl").Add(float64(pruned))
	}
	return pruned
}

func (r *HandleRegistry) removeLocked(el *list.Element) {
	delete(r.handles, el.Value.(*Handle).ID)
	r.order.Remove(el)
}

func (r *HandleRegistry) id(ref string) string {
	return strings.TrimPrefix(ref, r.baseURL)
}

// PruneEvery releases expired handles every interval until stop is closed.
func (r *HandleRegistry) PruneEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Prune()
		case <-stop:
			return
		}
	}
}
