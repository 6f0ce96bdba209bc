package postkit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UploadIDHeader carries the id of a tracked upload or import.
const UploadIDHeader = "X-Upload-ID"

// UploadProgress is the externally visible state of a running upload.
type UploadProgress struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Step      string    `json:"step"`
	Name      string    `json:"name,omitempty"`
	Done      int       `json:"done"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type uploadEntry struct {
	progress UploadProgress
	cancel   context.CancelFunc
}

// UploadRegistry tracks running uploads and imports. Entries live from Start
// until Finish or Cancel.
type UploadRegistry struct {
	mu      sync.Mutex
	entries map[string]*uploadEntry
	now     func() time.Time
}

// NewUploadRegistry returns an empty registry.
func NewUploadRegistry() *UploadRegistry {
	return &UploadRegistry{entries: make(map[string]*uploadEntry), now: time.Now}
}

// Start registers an upload under id, or under a fresh uuid when id is
// empty or already in use. The returned context is cancelled by Cancel.
func (r *UploadRegistry) Start(ctx context.Context, id, kind string) (context.Context, string) {
	ctx, cancel := context.WithCancel(ctx)
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.entries[id]; id == "" || taken || len(id) > 64 {
		id = uuid.NewString()
	}
	r.entries[id] = &uploadEntry{
		progress: UploadProgress{ID: id, Kind: kind, Step: "started", StartedAt: now, UpdatedAt: now},
		cancel:   cancel,
	}
	return ctx, id
}

// Update applies fn to the entry's progress. Unknown ids are ignored.
func (r *UploadRegistry) Update(id string, fn func(*UploadProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		fn(&e.progress)
		e.progress.UpdatedAt = r.now()
	}
}

// Get returns a snapshot of the entry's progress.
func (r *UploadRegistry) Get(id string) (UploadProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return UploadProgress{}, false
	}
	return e.progress, true
}

// Finish removes a completed or failed entry.
func (r *UploadRegistry) Finish(id string) {
	r.remove(id)
}

// Cancel aborts the upload's context and removes the entry. It reports
// whether the entry existed.
func (r *UploadRegistry) Cancel(id string) bool {
	return r.remove(id)
}

func (r *UploadRegistry) remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		e.cancel()
	}
	return ok
}

// Len returns the number of running entries.
func (r *UploadRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
