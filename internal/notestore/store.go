// Package notestore holds the session's authoritative note collection and
// reconciles local optimistic edits against the remote document feed. Local
// mutations apply synchronously and are always visible before their remote
// write is even issued; remote writes are serialized per note by the pending
// tracker and never retried.
package notestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quill/internal/identity"
	"quill/internal/pending"
	"quill/internal/remote"
)

var (
	errMissingRemote     = errors.New("remote document service is required")
	errMissingIdentity   = errors.New("identity provider is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrNoteNotFound indicates the note id is absent from the collection.
	ErrNoteNotFound = errors.New("notestore: note not found")
	// ErrUnknownNoteType indicates a create with an unrecognized note type.
	ErrUnknownNoteType = errors.New("notestore: unknown note type")

	noOpLogger = zap.NewNop()
)

// ServiceError carries an operation-scoped error code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew        = "notestore.new"
	opCreateNote      = "notestore.create_note"
	opUpdateNote      = "notestore.update_note"
	opDeleteNote      = "notestore.delete_note"
	opRestoreNote     = "notestore.restore_note"
	opPurgeNote       = "notestore.permanently_delete_note"
	opTogglePin       = "notestore.toggle_pin"
	opStart           = "notestore.start"
	opApplySnapshot   = "notestore.apply_snapshot"
	opSyncWithDrive   = "notestore.sync_with_drive"
	opProcessCapture  = "notestore.process_capture"
	opGenerateSummary = "notestore.generate_summary"
	opRefineSummary   = "notestore.refine_summary"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider issues note identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// StoreConfig wires the store's collaborators.
type StoreConfig struct {
	Remote     remote.Service
	Identity   identity.Provider
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Store is the optimistic sync store for notes.
type Store struct {
	remoteSvc  remote.Service
	identity   identity.Provider
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	tracker    *pending.Tracker

	mu            sync.Mutex
	notes         []Note
	activeID      string
	pendingFields map[string]map[string]int
}

// NewStore constructs a store, validating its dependencies.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Remote == nil {
		return nil, newServiceError(opStoreNew, "missing_remote", errMissingRemote)
	}
	if cfg.Identity == nil {
		return nil, newServiceError(opStoreNew, "missing_identity", errMissingIdentity)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		remoteSvc:     cfg.Remote,
		identity:      cfg.Identity,
		clock:         clock,
		idProvider:    cfg.IDProvider,
		logger:        logger,
		tracker:       pending.NewTracker(),
		pendingFields: make(map[string]map[string]int),
	}, nil
}

func noteCollection(userID string) string {
	return "users/" + userID + "/notes"
}

// Create builds a note of the given type, inserts it optimistically, and
// enqueues the remote create. Without a signed-in user the note exists only
// for this session; that is logged, never an error.
func (s *Store) Create(ctx context.Context, noteType NoteType, initial NoteUpdate) (Note, error) {
	switch noteType {
	case NoteTypeText, NoteTypeAudio, NoteTypeImage:
	default:
		return Note{}, newServiceError(opCreateNote, "invalid_type", fmt.Errorf("%w: %q", ErrUnknownNoteType, noteType))
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err)
		return Note{}, newServiceError(opCreateNote, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	note := Note{ID: id, Type: noteType}
	applyUpdate(&note, initial)
	note.CreatedAtSeconds = now
	note.UpdatedAtSeconds = now
	note.DeletedAtSeconds = 0
	note.IsProcessing = false

	s.mu.Lock()
	s.notes = sortNotes(append(s.notes, note))
	s.mu.Unlock()

	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		s.logger.Warn("note created without signed-in user; it will not be persisted",
			zap.String("note_id", id))
		return note, nil
	}

	doc, err := note.ToDocument()
	if err != nil {
		s.logError(opCreateNote, "encode_failed", err, zap.String("note_id", id))
		return note, nil
	}
	writeCtx := context.WithoutCancel(ctx)
	collection := noteCollection(userID)
	s.tracker.Enqueue(id, func() error {
		return s.remoteSvc.Create(writeCtx, collection, id, doc)
	}, func(err error) {
		s.logError(opCreateNote, "remote_write_failed", err, zap.String("note_id", id))
	})
	return note, nil
}

// Update applies a partial mutation optimistically and enqueues the remote
// write. Remote failures are logged, never returned: from the caller's
// perspective updates are fire-and-forget, and the local edit stays visible
// even when the write permanently fails.
func (s *Store) Update(ctx context.Context, id string, update NoteUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	stamped := NoteUpdate{
		Set:   make(map[string]any, len(update.Set)+1),
		Clear: append([]string(nil), update.Clear...),
	}
	for field, value := range update.Set {
		stamped.Set[field] = value
	}
	stamped.Set[FieldUpdatedAt] = s.clock().UTC().Unix()
	fields := stamped.Fields()

	userID, signedIn := s.identity.CurrentUserID()

	s.mu.Lock()
	index := s.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return newServiceError(opUpdateNote, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, id))
	}
	applyUpdate(&s.notes[index], stamped)
	if signedIn {
		s.markPendingLocked(id, fields)
	}
	s.mu.Unlock()

	if !signedIn {
		s.logger.Warn("note updated without signed-in user; change is session-local",
			zap.String("note_id", id))
		return nil
	}

	writeCtx := context.WithoutCancel(ctx)
	collection := noteCollection(userID)
	remoteUpdate := stamped.remoteUpdate()
	s.tracker.Enqueue(id, func() error {
		err := s.remoteSvc.Update(writeCtx, collection, id, remoteUpdate)
		// Pending markers are released on failure too, so a write that will
		// never succeed cannot block remote snapshots forever.
		s.clearPending(id, fields)
		return err
	}, func(err error) {
		s.logError(opUpdateNote, "remote_write_failed", err, zap.String("note_id", id))
	})
	return nil
}

// Delete soft-deletes the note by stamping deletedAt. The note moves to the
// trash and can be restored.
func (s *Store) Delete(ctx context.Context, id string) error {
	now := s.clock().UTC().Unix()
	if err := s.Update(ctx, id, NoteUpdate{Set: map[string]any{FieldDeletedAt: now}}); err != nil {
		return newServiceError(opDeleteNote, "not_found", errors.Unwrap(err))
	}
	s.mu.Lock()
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()
	return nil
}

// Restore removes the deletedAt field entirely, returning the note to
// non-trash views.
func (s *Store) Restore(ctx context.Context, id string) error {
	if err := s.Update(ctx, id, NoteUpdate{Clear: []string{FieldDeletedAt}}); err != nil {
		return newServiceError(opRestoreNote, "not_found", errors.Unwrap(err))
	}
	return nil
}

// PermanentlyDelete removes the note from the collection and issues a remote
// delete.
func (s *Store) PermanentlyDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	index := s.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return newServiceError(opPurgeNote, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, id))
	}
	s.notes = append(s.notes[:index], s.notes[index+1:]...)
	if s.activeID == id {
		s.activeID = ""
	}
	s.mu.Unlock()

	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		s.logger.Warn("note removed without signed-in user", zap.String("note_id", id))
		return nil
	}
	writeCtx := context.WithoutCancel(ctx)
	collection := noteCollection(userID)
	s.tracker.Enqueue(id, func() error {
		return s.remoteSvc.Delete(writeCtx, collection, id)
	}, func(err error) {
		s.logError(opPurgeNote, "remote_delete_failed", err, zap.String("note_id", id))
	})
	return nil
}

// TogglePin flips the pin flag with the usual optimistic write pattern.
func (s *Store) TogglePin(ctx context.Context, id string) error {
	s.mu.Lock()
	index := s.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return newServiceError(opTogglePin, "not_found", fmt.Errorf("%w: %s", ErrNoteNotFound, id))
	}
	pinned := s.notes[index].IsPinned
	s.mu.Unlock()
	return s.Update(ctx, id, NoteUpdate{Set: map[string]any{FieldIsPinned: !pinned}})
}

// Start subscribes the store to the current user's remote note feed. The
// subscription stays up until the returned function runs or ctx ends.
func (s *Store) Start(ctx context.Context) (remote.Unsubscribe, error) {
	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		return nil, newServiceError(opStart, "no_signed_in_user", errors.New("sync requires a signed-in user"))
	}
	unsubscribe, err := s.remoteSvc.Subscribe(ctx, noteCollection(userID), s.ApplySnapshot, func(err error) {
		s.logError(opStart, "subscription_failed", err)
	})
	if err != nil {
		s.logError(opStart, "subscribe_failed", err)
		return nil, newServiceError(opStart, "subscribe_failed", err)
	}
	return unsubscribe, nil
}

// Note returns the note with the given id.
func (s *Store) Note(id string) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(id)
	if index < 0 {
		return Note{}, false
	}
	return s.notes[index], true
}

// Notes returns the full collection, trash included, newest first.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

// AllNotes returns the non-deleted notes, newest first.
func (s *Store) AllNotes() []Note {
	return s.filtered(func(n Note) bool { return !n.IsDeleted() })
}

// TrashedNotes returns only soft-deleted notes.
func (s *Store) TrashedNotes() []Note {
	return s.filtered(func(n Note) bool { return n.IsDeleted() })
}

// NotesByTag returns non-deleted notes carrying the tag.
func (s *Store) NotesByTag(tag string) []Note {
	return s.filtered(func(n Note) bool {
		if n.IsDeleted() {
			return false
		}
		for _, candidate := range n.Tags {
			if candidate == tag {
				return true
			}
		}
		return false
	})
}

// NotesByFolder returns non-deleted notes in the folder. A dangling folder
// reference is treated as membership in a folder nobody can see, never as an
// error.
func (s *Store) NotesByFolder(folderID string) []Note {
	return s.filtered(func(n Note) bool {
		return !n.IsDeleted() && n.FolderID == folderID
	})
}

func (s *Store) filtered(keep func(Note) bool) []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Note, 0, len(s.notes))
	for _, note := range s.notes {
		if keep(note) {
			out = append(out, note)
		}
	}
	return out
}

// SetActive marks the note as selected for editing.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	s.activeID = id
	return nil
}

// ClearActive deselects any active note.
func (s *Store) ClearActive() {
	s.mu.Lock()
	s.activeID = ""
	s.mu.Unlock()
}

// Active returns the note currently selected for editing.
func (s *Store) Active() (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return Note{}, false
	}
	index := s.indexOf(s.activeID)
	if index < 0 {
		return Note{}, false
	}
	return s.notes[index], true
}

// PendingFields lists the field names with unconfirmed local writes for id.
func (s *Store) PendingFields(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := s.pendingFields[id]
	fields := make([]string, 0, len(counters))
	for field := range counters {
		fields = append(fields, field)
	}
	return fields
}

// WaitForWrites blocks until every enqueued remote write has settled.
func (s *Store) WaitForWrites() {
	s.tracker.Wait()
}

func (s *Store) indexOf(id string) int {
	for index := range s.notes {
		if s.notes[index].ID == id {
			return index
		}
	}
	return -1
}

// markPendingLocked increments the pending counter for each field. Counters
// rather than a set: a field re-updated while an earlier write is in flight
// must stay pending after the earlier write settles.
func (s *Store) markPendingLocked(id string, fields []string) {
	counters := s.pendingFields[id]
	if counters == nil {
		counters = make(map[string]int, len(fields))
		s.pendingFields[id] = counters
	}
	for _, field := range fields {
		counters[field]++
	}
}

func (s *Store) clearPending(id string, fields []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := s.pendingFields[id]
	if counters == nil {
		return
	}
	for _, field := range fields {
		if counters[field] <= 1 {
			delete(counters, field)
		} else {
			counters[field]--
		}
	}
	if len(counters) == 0 {
		delete(s.pendingFields, id)
	}
}

func (s *Store) setProcessingLocked(id string, processing bool) {
	index := s.indexOf(id)
	if index >= 0 {
		s.notes[index].IsProcessing = processing
	}
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("note store error", attrs...)
}
