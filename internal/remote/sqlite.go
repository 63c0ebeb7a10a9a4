package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("remote: database handle is required")
	// ErrDocumentNotFound indicates an update or delete against a missing id.
	ErrDocumentNotFound = errors.New("remote: document not found")
)

// StoredDocument is the GORM row backing one remote document.
type StoredDocument struct {
	Collection       string `gorm:"column:collection;primaryKey;size:190;not null"`
	DocID            string `gorm:"column:doc_id;primaryKey;size:190;not null"`
	FieldsJSON       string `gorm:"column:fields_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_remote_docs_updated"`
}

// TableName provides the explicit table binding for GORM.
func (StoredDocument) TableName() string {
	return "remote_documents"
}

// SQLiteConfig configures the SQLite-backed document service.
type SQLiteConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// SQLiteService implements Service on a local SQLite database, pushing a
// fresh collection snapshot to subscribers after every mutation.
type SQLiteService struct {
	db         *gorm.DB
	clock      func() time.Time
	logger     *zap.Logger
	dispatcher *dispatcher
}

// NewSQLiteService constructs the service, validating its dependencies.
func NewSQLiteService(cfg SQLiteConfig) (*SQLiteService, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteService{
		db:         cfg.Database,
		clock:      clock,
		logger:     logger,
		dispatcher: newDispatcher(),
	}, nil
}

// Subscribe delivers the current collection contents synchronously, then
// after every mutation until unsubscribed or ctx ends.
func (s *SQLiteService) Subscribe(ctx context.Context, collection string, onSnapshot SnapshotHandler, onError ErrorHandler) (Unsubscribe, error) {
	if onSnapshot == nil {
		return nil, errors.New("remote: snapshot handler is required")
	}
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	_, cleanup := s.dispatcher.register(collection, onSnapshot, onError)
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cleanup()
		}()
	}

	onSnapshot(docs)
	return cleanup, nil
}

// Create stores doc under id, overwriting any existing document.
func (s *SQLiteService) Create(ctx context.Context, collection, id string, doc Document) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("remote: encode document %s/%s: %w", collection, id, err)
	}
	row := StoredDocument{
		Collection:       collection,
		DocID:            id,
		FieldsJSON:       string(encoded),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("remote: create %s/%s: %w", collection, id, err)
	}
	s.broadcast(ctx, collection)
	return nil
}

// Update applies a partial write; removed fields are dropped from the stored
// field map, never written back as nulls.
func (s *SQLiteService) Update(ctx context.Context, collection, id string, update Update) error {
	if err := update.Validate(); err != nil {
		return err
	}
	if update.IsEmpty() {
		return nil
	}

	var row StoredDocument
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, collection, id)
	}
	if err != nil {
		return fmt.Errorf("remote: load %s/%s: %w", collection, id, err)
	}

	fields := Document{}
	if row.FieldsJSON != "" {
		if err := json.Unmarshal([]byte(row.FieldsJSON), &fields); err != nil {
			return fmt.Errorf("remote: decode %s/%s: %w", collection, id, err)
		}
	}
	for field, value := range update.Set {
		fields[field] = value
	}
	for _, field := range update.Remove {
		delete(fields, field)
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("remote: encode %s/%s: %w", collection, id, err)
	}
	row.FieldsJSON = string(encoded)
	row.UpdatedAtSeconds = s.clock().UTC().Unix()
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("remote: update %s/%s: %w", collection, id, err)
	}
	s.broadcast(ctx, collection)
	return nil
}

// Delete removes the document entirely.
func (s *SQLiteService) Delete(ctx context.Context, collection, id string) error {
	result := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&StoredDocument{})
	if result.Error != nil {
		return fmt.Errorf("remote: delete %s/%s: %w", collection, id, result.Error)
	}
	s.broadcast(ctx, collection)
	return nil
}

func (s *SQLiteService) loadCollection(ctx context.Context, collection string) ([]Snapshot, error) {
	var rows []StoredDocument
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("doc_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("remote: load collection %s: %w", collection, err)
	}

	docs := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		fields := Document{}
		if row.FieldsJSON != "" {
			if err := json.Unmarshal([]byte(row.FieldsJSON), &fields); err != nil {
				s.logger.Warn("skipping undecodable document",
					zap.String("collection", collection),
					zap.String("doc_id", row.DocID),
					zap.Error(err))
				continue
			}
		}
		docs = append(docs, Snapshot{ID: row.DocID, Fields: fields})
	}
	return docs, nil
}

func (s *SQLiteService) broadcast(ctx context.Context, collection string) {
	if !s.dispatcher.hasSubscribers(collection) {
		return
	}
	docs, err := s.loadCollection(ctx, collection)
	if err != nil {
		s.logger.Error("snapshot broadcast failed",
			zap.String("collection", collection),
			zap.Error(err))
		s.dispatcher.publishError(collection, err)
		return
	}
	s.dispatcher.publish(collection, docs)
}
