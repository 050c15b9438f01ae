package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/pkg/audit"
	"go-candidate-tracker/pkg/logger"
	"go-candidate-tracker/pkg/validation"

	"github.com/go-playground/validator/v10"
)

// State is what the rendering layer observes. Version increases on every change.
type State struct {
	Version uint64 `json:"version"`
	Mode    Mode   `json:"mode"`
	// CandidateID is the record an edit session was opened for. Draft.ID
	// stays 0 until that record has been loaded.
	CandidateID int64 `json:"candidate_id,omitempty"`
	Loading    bool   `json:"loading"`
	NotFound   bool   `json:"not_found"`
	LoadFailed bool   `json:"load_failed"`
	Deleted    bool   `json:"deleted"`
	Draft      Draft  `json:"draft"`
}

// SaveResult reports the outcome of a save attempt that did not hit storage errors.
type SaveResult struct {
	Saved     bool             `json:"saved"`
	Candidate domain.Candidate `json:"candidate"`
	Invalid   []Field          `json:"invalid,omitempty"`
}

type EditorOptions struct {
	Now      func() time.Time
	Validate *validator.Validate
	Logger   *slog.Logger
	Audit    *audit.Logger
}

func (o EditorOptions) withDefaults() EditorOptions {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Validate == nil {
		o.Validate = validation.New()
	}
	if o.Logger == nil {
		o.Logger = logger.Component("candidate_editor")
	}
	return o
}

// Editor drives the add/edit flow for one candidate.
type Editor struct {
	store  domain.CandidateStore
	photos domain.PhotoAssets
	opts   EditorOptions
	mode   Mode

	// io serialises store writes; mu is never held across them.
	io sync.Mutex

	mu     sync.Mutex
	state  State
	subs   map[int]chan State
	nextID int
	closed bool

	loaded     chan struct{}
	loadOnce   sync.Once
	cancelLoad context.CancelFunc
}

// NewAddEditor starts an editor with an empty draft.
func NewAddEditor(store domain.CandidateStore, photos domain.PhotoAssets, opts EditorOptions) *Editor {
	e := newEditor(store, photos, opts, ModeAdd)
	e.finishLoad()
	return e
}

// NewEditEditor starts an editor for candidate id and loads it in the
// background. ctx supplies request-scoped values only; the load lives until
// it finishes or Close is called.
func NewEditEditor(ctx context.Context, store domain.CandidateStore, photos domain.PhotoAssets, id int64, opts EditorOptions) *Editor {
	e := newEditor(store, photos, opts, ModeEdit)
	e.state.Loading = true
	e.state.CandidateID = id

	loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancelLoad = cancel
	go e.load(loadCtx, id)
	return e
}

func newEditor(store domain.CandidateStore, photos domain.PhotoAssets, opts EditorOptions, mode Mode) *Editor {
	return &Editor{
		store:      store,
		photos:     photos,
		opts:       opts.withDefaults(),
		mode:       mode,
		state:      State{Mode: mode},
		subs:       make(map[int]chan State),
		loaded:     make(chan struct{}),
		cancelLoad: func() {},
	}
}

func (e *Editor) load(ctx context.Context, id int64) {
	defer e.finishLoad()

	c, err := e.store.GetByID(ctx, id)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	next := e.state
	next.Loading = false
	switch {
	case err != nil:
		e.opts.Logger.Warn("Failed to load candidate", "candidate_id", id, "error", err)
		next.LoadFailed = true
	case c == nil:
		next.NotFound = true
	default:
		next.Draft = DraftFromCandidate(*c)
	}
	e.commitLocked(next)
}

func (e *Editor) finishLoad() {
	e.loadOnce.Do(func() { close(e.loaded) })
}

// Loaded is closed once the initial load has completed or the editor was closed.
func (e *Editor) Loaded() <-chan struct{} {
	return e.loaded
}

// awaitLoad holds writes back until an edit session knows which record it
// targets.
func (e *Editor) awaitLoad(ctx context.Context) error {
	select {
	case <-e.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the editor down. A load still in flight is discarded and
// subscriber channels are closed.
func (e *Editor) Close() {
	e.cancelLoad()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.finishLoad()
}

// State returns the current state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Editor) Mode() Mode {
	return e.mode
}

// Subscribe returns a channel that holds the latest state, starting with the
// current one. Slow readers skip intermediate versions.
func (e *Editor) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}

	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	ch <- e.state

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if sub, ok := e.subs[id]; ok {
			close(sub)
			delete(e.subs, id)
		}
	}
}

func (e *Editor) commitLocked(next State) {
	next.Version = e.state.Version + 1
	e.state = next
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// Dispatch applies ev. Save and Delete outcomes are reflected in the state;
// callers needing the SaveResult use Save directly.
func (e *Editor) Dispatch(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case SetFavorite:
		return e.SetFavorite(ctx, ev.Value)
	case Save:
		_, err := e.Save(ctx)
		return err
	case Delete:
		return e.Delete(ctx)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.ErrDraftNotFound
	}

	next := e.state
	next.Draft = reduce(next.Draft, ev, e.opts.Now())
	e.commitLocked(next)
	return nil
}

// SetFavorite writes the flag through to the store right away.
func (e *Editor) SetFavorite(ctx context.Context, value bool) error {
	if err := e.awaitLoad(ctx); err != nil {
		return err
	}
	e.io.Lock()
	defer e.io.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrDraftNotFound
	}
	id := e.state.Draft.ID
	e.mu.Unlock()
	if e.mode != ModeEdit || id == 0 {
		return domain.ErrEditModeOnly
	}

	if err := e.store.SetFavorite(ctx, id, value); err != nil {
		e.opts.Logger.Warn("Failed to update favorite", "candidate_id", id, "error", err)
		e.auditFailure(ctx, id, "set_favorite", err)
		return asStorageError(err)
	}

	e.mu.Lock()
	if !e.closed {
		next := e.state
		next.Draft.IsFavorite = value
		e.commitLocked(next)
	}
	e.mu.Unlock()

	e.opts.Audit.Log(ctx, audit.Event{
		Event:       audit.EventFavoriteChanged,
		CandidateID: id,
		Details:     map[string]interface{}{"value": value},
	})
	return nil
}

// Save validates the draft and persists it. Validation failures are reported
// in the result and the field flags, never as an error. Storage failures
// leave the draft untouched apart from SaveFailed and return domain.ErrStorage.
//
// Edits dispatched while the write is in flight are kept; the saved id is
// merged into them instead of replacing the draft.
func (e *Editor) Save(ctx context.Context) (SaveResult, error) {
	if err := e.awaitLoad(ctx); err != nil {
		return SaveResult{}, err
	}
	e.io.Lock()
	defer e.io.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return SaveResult{}, domain.ErrDraftNotFound
	}

	next := e.state
	invalid := e.validate(next.Draft)

	next.Draft.Errors = FieldErrors{}
	for _, f := range invalid {
		next.Draft.Errors.set(f, true)
	}
	if next.Draft.BirthDate != nil {
		next.Draft.BirthDateIssue = ""
		if next.Draft.Errors.BirthDate {
			next.Draft.BirthDateIssue = validation.ErrUnderage.Error()
		}
	}

	if len(invalid) > 0 {
		next.Draft.SaveFailed = false
		e.commitLocked(next)
		e.mu.Unlock()
		e.opts.Audit.Log(ctx, audit.Event{
			Event:       audit.EventValidationFailed,
			CandidateID: next.Draft.ID,
			Details:     map[string]interface{}{"fields": invalid},
		})
		return SaveResult{Invalid: invalid}, nil
	}

	if next.Draft.Errors != e.state.Draft.Errors || next.Draft.BirthDateIssue != e.state.Draft.BirthDateIssue {
		e.commitLocked(next)
	}
	base := e.state.Version
	candidate := next.Draft.Candidate()
	e.mu.Unlock()

	saved, err := e.store.Upsert(ctx, candidate)

	e.mu.Lock()
	if err != nil {
		if !e.closed {
			failed := e.state
			failed.Draft.SaveFailed = true
			e.commitLocked(failed)
		}
		e.mu.Unlock()
		e.opts.Logger.Warn("Failed to save candidate", "candidate_id", candidate.ID, "error", err)
		e.auditFailure(ctx, candidate.ID, "save", err)
		return SaveResult{}, asStorageError(err)
	}
	if !e.closed {
		e.commitLocked(e.afterSaveLocked(saved, base))
	}
	e.mu.Unlock()

	eventType := audit.EventCandidateUpdated
	if candidate.IsNew() {
		eventType = audit.EventCandidateCreated
	}
	e.opts.Audit.Log(ctx, audit.Event{
		Event:       eventType,
		CandidateID: saved.ID,
		Email:       saved.Email,
		Phone:       saved.PhoneNumber,
	})
	return SaveResult{Saved: true, Candidate: saved}, nil
}

// afterSaveLocked builds the state following a successful write that started
// at version base.
func (e *Editor) afterSaveLocked(saved domain.Candidate, base uint64) State {
	next := e.state
	if next.Version == base {
		if e.mode == ModeAdd {
			next.Draft = Draft{}
		} else {
			next.Draft = DraftFromCandidate(saved)
			next.CandidateID = saved.ID
		}
		return next
	}

	next.Draft.SaveFailed = false
	if e.mode == ModeEdit {
		next.Draft.ID = saved.ID
		next.CandidateID = saved.ID
	}
	return next
}

// Delete removes the candidate being edited together with its owned photo.
// A draft whose id was already cleared makes this a no-op.
func (e *Editor) Delete(ctx context.Context) error {
	if err := e.awaitLoad(ctx); err != nil {
		return err
	}
	e.io.Lock()
	defer e.io.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrDraftNotFound
	}
	if e.mode != ModeEdit {
		e.mu.Unlock()
		return domain.ErrEditModeOnly
	}
	candidate := e.state.Draft.Candidate()
	e.mu.Unlock()
	if candidate.ID == 0 {
		return nil
	}

	if candidate.PhotoURI != nil && e.photos != nil {
		e.photos.DeleteIfLocal(ctx, *candidate.PhotoURI)
	}

	if err := e.store.Delete(ctx, candidate); err != nil {
		e.opts.Logger.Warn("Failed to delete candidate", "candidate_id", candidate.ID, "error", err)
		e.mu.Lock()
		if !e.closed {
			next := e.state
			next.Draft.SaveFailed = true
			e.commitLocked(next)
		}
		e.mu.Unlock()
		e.auditFailure(ctx, candidate.ID, "delete", err)
		return asStorageError(err)
	}

	e.mu.Lock()
	if !e.closed {
		next := e.state
		next.Draft.ID = 0
		next.Draft.SaveFailed = false
		next.Deleted = true
		e.commitLocked(next)
	}
	e.mu.Unlock()

	e.opts.Audit.Log(ctx, audit.Event{Event: audit.EventCandidateDeleted, CandidateID: candidate.ID})
	return nil
}

// validate returns the failing required fields in rule order.
func (e *Editor) validate(d Draft) []Field {
	input := draftInput{
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		PhoneNumber: d.PhoneNumber,
		Email:       d.Email,
	}
	if d.BirthDate != nil {
		input.BirthDate = *d.BirthDate
	}

	err := e.opts.Validate.Struct(input)
	if err == nil {
		return nil
	}

	failed := validation.FailedFields(err)
	if len(failed) == 0 {
		// not a field error; refuse to save rather than persist unchecked data
		e.opts.Logger.Error("Unexpected validator failure", "error", err)
		return []Field{FieldFirstName, FieldLastName, FieldPhoneNumber, FieldEmail, FieldBirthDate}
	}

	fields := make([]Field, 0, len(failed))
	for _, name := range failed {
		fields = append(fields, Field(name))
	}

	// validator's adult rule uses the wall clock; re-check with the editor's clock
	if d.BirthDate != nil {
		fields = recheckAge(fields, *d.BirthDate, e.opts.Now())
	}
	return fields
}

func recheckAge(fields []Field, birth, now time.Time) []Field {
	adult := validation.IsAdult(birth, now)
	out := fields[:0]
	flagged := false
	for _, f := range fields {
		if f == FieldBirthDate {
			flagged = true
			if adult {
				continue
			}
		}
		out = append(out, f)
	}
	if !flagged && !adult {
		out = append(out, FieldBirthDate)
	}
	return out
}

type draftInput struct {
	FirstName   string    `validate:"not_blank"`
	LastName    string    `validate:"not_blank"`
	PhoneNumber string    `validate:"not_blank"`
	Email       string    `validate:"not_blank,email"`
	BirthDate   time.Time `validate:"adult"`
}

func (e *Editor) auditFailure(ctx context.Context, id int64, op string, err error) {
	e.opts.Audit.Log(ctx, audit.Event{
		Event:       audit.EventPersistFailed,
		CandidateID: id,
		Details:     map[string]interface{}{"operation": op, "error": err.Error()},
	})
}

func asStorageError(err error) error {
	if errors.Is(err, domain.ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}
