package usecase

import (
	"context"
	"sync"
	"time"

	"go-candidate-tracker/internal/domain"

	"github.com/google/uuid"
)

type draftSession struct {
	editor   *Editor
	lastUsed time.Time
}

// DraftRegistry keeps open editors addressable by session id and closes
// sessions nobody touched for longer than the idle timeout.
type DraftRegistry struct {
	store  domain.CandidateStore
	photos domain.PhotoAssets
	opts   EditorOptions
	idle   time.Duration

	mu       sync.Mutex
	sessions map[string]*draftSession
}

func NewDraftRegistry(store domain.CandidateStore, photos domain.PhotoAssets, idle time.Duration, opts EditorOptions) *DraftRegistry {
	return &DraftRegistry{
		store:    store,
		photos:   photos,
		opts:     opts.withDefaults(),
		idle:     idle,
		sessions: make(map[string]*draftSession),
	}
}

// OpenAdd starts an add-mode session.
func (r *DraftRegistry) OpenAdd() (string, *Editor) {
	return r.register(NewAddEditor(r.store, r.photos, r.opts))
}

// OpenEdit starts an edit-mode session for candidate id.
func (r *DraftRegistry) OpenEdit(ctx context.Context, id int64) (string, *Editor) {
	return r.register(NewEditEditor(ctx, r.store, r.photos, id, r.opts))
}

func (r *DraftRegistry) register(e *Editor) (string, *Editor) {
	id := uuid.NewString()

	r.mu.Lock()
	r.sessions[id] = &draftSession{editor: e, lastUsed: r.opts.Now()}
	r.mu.Unlock()
	return id, e
}

// Get returns the session's editor and marks it as used.
func (r *DraftRegistry) Get(id string) (*Editor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrDraftNotFound
	}
	s.lastUsed = r.opts.Now()
	return s.editor, nil
}

// Discard closes and forgets a session.
func (r *DraftRegistry) Discard(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return domain.ErrDraftNotFound
	}
	s.editor.Close()
	return nil
}

// Sweep closes sessions idle for longer than the timeout and returns how many went.
func (r *DraftRegistry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.opts.Now().Add(-r.idle)

	var expired []*Editor
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			expired = append(expired, s.editor)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		e.Close()
	}
	if len(expired) > 0 {
		r.opts.Logger.Debug("Discarded idle drafts", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done, then closes every session.
func (r *DraftRegistry) Run(ctx context.Context) {
	interval := r.idle / 4
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *DraftRegistry) closeAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*draftSession)
	r.mu.Unlock()

	for _, s := range sessions {
		s.editor.Close()
	}
}

func (r *DraftRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
