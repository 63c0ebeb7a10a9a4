// Package folderstore holds the session's folder collection. Folders use the
// same optimistic write pattern as notes but have no per-field protection:
// the only mutable field is the name, and last write wins.
package folderstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
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
	// ErrFolderNotFound indicates the folder id is absent from the collection.
	ErrFolderNotFound = errors.New("folderstore: folder not found")
	// ErrEmptyName rejects folders without a usable name.
	ErrEmptyName = errors.New("folderstore: folder name must not be empty")

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
	opStoreNew      = "folderstore.new"
	opCreateFolder  = "folderstore.create_folder"
	opRenameFolder  = "folderstore.rename_folder"
	opDeleteFolder  = "folderstore.delete_folder"
	opStart         = "folderstore.start"
	opApplySnapshot = "folderstore.apply_snapshot"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Folder is one user-defined grouping for notes.
type Folder struct {
	ID               string `json:"-"`
	Name             string `json:"name"`
	CreatedAtSeconds int64  `json:"createdAt"`
	UpdatedAtSeconds int64  `json:"updatedAt"`
}

// IDProvider issues folder identifiers.
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

// Store is the optimistic sync store for folders.
type Store struct {
	remoteSvc  remote.Service
	identity   identity.Provider
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	tracker    *pending.Tracker

	mu      sync.Mutex
	folders []Folder
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
		remoteSvc:  cfg.Remote,
		identity:   cfg.Identity,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
		tracker:    pending.NewTracker(),
	}, nil
}

func folderCollection(userID string) string {
	return "users/" + userID + "/folders"
}

// Create inserts a new folder optimistically and enqueues the remote write.
func (s *Store) Create(ctx context.Context, name string) (Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Folder{}, newServiceError(opCreateFolder, "empty_name", ErrEmptyName)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateFolder, "id_generation_failed", err)
		return Folder{}, newServiceError(opCreateFolder, "id_generation_failed", err)
	}

	now := s.clock().UTC().Unix()
	folder := Folder{ID: id, Name: name, CreatedAtSeconds: now, UpdatedAtSeconds: now}

	s.mu.Lock()
	s.folders = sortFolders(append(s.folders, folder))
	s.mu.Unlock()

	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		s.logger.Warn("folder created without signed-in user; it will not be persisted",
			zap.String("folder_id", id))
		return folder, nil
	}

	doc, err := folderDocument(folder)
	if err != nil {
		s.logError(opCreateFolder, "encode_failed", err, zap.String("folder_id", id))
		return folder, nil
	}
	writeCtx := context.WithoutCancel(ctx)
	collection := folderCollection(userID)
	s.tracker.Enqueue(id, func() error {
		return s.remoteSvc.Create(writeCtx, collection, id, doc)
	}, func(err error) {
		s.logError(opCreateFolder, "remote_write_failed", err, zap.String("folder_id", id))
	})
	return folder, nil
}

// Rename changes the folder's name optimistically. Remote failures are
// logged, never returned.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return newServiceError(opRenameFolder, "empty_name", ErrEmptyName)
	}

	now := s.clock().UTC().Unix()

	s.mu.Lock()
	index := s.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return newServiceError(opRenameFolder, "not_found", fmt.Errorf("%w: %s", ErrFolderNotFound, id))
	}
	s.folders[index].Name = name
	s.folders[index].UpdatedAtSeconds = now
	s.folders = sortFolders(s.folders)
	s.mu.Unlock()

	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		s.logger.Warn("folder renamed without signed-in user; change is session-local",
			zap.String("folder_id", id))
		return nil
	}

	writeCtx := context.WithoutCancel(ctx)
	collection := folderCollection(userID)
	update := remote.Update{Set: map[string]any{"name": name, "updatedAt": now}}
	s.tracker.Enqueue(id, func() error {
		return s.remoteSvc.Update(writeCtx, collection, id, update)
	}, func(err error) {
		s.logError(opRenameFolder, "remote_write_failed", err, zap.String("folder_id", id))
	})
	return nil
}

// Delete removes the folder permanently. Notes referencing the folder are not
// touched: their folderId simply dangles, and callers clear it explicitly if
// they want the notes back in the unfiled view.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	index := s.indexOf(id)
	if index < 0 {
		s.mu.Unlock()
		return newServiceError(opDeleteFolder, "not_found", fmt.Errorf("%w: %s", ErrFolderNotFound, id))
	}
	s.folders = append(s.folders[:index], s.folders[index+1:]...)
	s.mu.Unlock()

	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		s.logger.Warn("folder removed without signed-in user", zap.String("folder_id", id))
		return nil
	}
	writeCtx := context.WithoutCancel(ctx)
	collection := folderCollection(userID)
	s.tracker.Enqueue(id, func() error {
		return s.remoteSvc.Delete(writeCtx, collection, id)
	}, func(err error) {
		s.logError(opDeleteFolder, "remote_delete_failed", err, zap.String("folder_id", id))
	})
	return nil
}

// Start subscribes the store to the current user's remote folder feed.
func (s *Store) Start(ctx context.Context) (remote.Unsubscribe, error) {
	userID, signedIn := s.identity.CurrentUserID()
	if !signedIn {
		return nil, newServiceError(opStart, "no_signed_in_user", errors.New("sync requires a signed-in user"))
	}
	unsubscribe, err := s.remoteSvc.Subscribe(ctx, folderCollection(userID), s.ApplySnapshot, func(err error) {
		s.logError(opStart, "subscription_failed", err)
	})
	if err != nil {
		s.logError(opStart, "subscribe_failed", err)
		return nil, newServiceError(opStart, "subscribe_failed", err)
	}
	return unsubscribe, nil
}

// ApplySnapshot replaces the collection with the remote state. Folders have
// no pending-field protection; the feed is authoritative.
func (s *Store) ApplySnapshot(docs []remote.Snapshot) {
	next := make([]Folder, 0, len(docs))
	for _, doc := range docs {
		folder, err := folderFromSnapshot(doc)
		if err != nil {
			s.logError(opApplySnapshot, "decode_failed", err, zap.String("folder_id", doc.ID))
			continue
		}
		next = append(next, folder)
	}

	s.mu.Lock()
	s.folders = sortFolders(next)
	s.mu.Unlock()
}

// Folder returns the folder with the given id.
func (s *Store) Folder(id string) (Folder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(id)
	if index < 0 {
		return Folder{}, false
	}
	return s.folders[index], true
}

// Folders returns the collection sorted by name.
func (s *Store) Folders() []Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Folder(nil), s.folders...)
}

// WaitForWrites blocks until every enqueued remote write has settled.
func (s *Store) WaitForWrites() {
	s.tracker.Wait()
}

func (s *Store) indexOf(id string) int {
	for index := range s.folders {
		if s.folders[index].ID == id {
			return index
		}
	}
	return -1
}

func sortFolders(folders []Folder) []Folder {
	sort.SliceStable(folders, func(i, j int) bool {
		left := strings.ToLower(folders[i].Name)
		right := strings.ToLower(folders[j].Name)
		if left != right {
			return left < right
		}
		return folders[i].ID < folders[j].ID
	})
	return folders
}

func folderDocument(folder Folder) (remote.Document, error) {
	raw, err := json.Marshal(folder)
	if err != nil {
		return nil, err
	}
	var doc remote.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func folderFromSnapshot(snapshot remote.Snapshot) (Folder, error) {
	raw, err := json.Marshal(snapshot.Fields)
	if err != nil {
		return Folder{}, err
	}
	var folder Folder
	if err := json.Unmarshal(raw, &folder); err != nil {
		return Folder{}, err
	}
	folder.ID = snapshot.ID
	if strings.TrimSpace(folder.Name) == "" {
		return Folder{}, fmt.Errorf("%w: document %s has no name", ErrEmptyName, snapshot.ID)
	}
	return folder, nil
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
	s.logger.Error("folder store error", attrs...)
}
