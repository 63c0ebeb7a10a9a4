// Package settings stores per-user preference values (theme, default folder,
// export options) as plain strings keyed by name.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("settings: database handle is required")
	// ErrEmptyKey rejects blank setting names.
	ErrEmptyKey = errors.New("settings: key must not be empty")
)

// Record is the GORM row backing one setting.
type Record struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Key              string `gorm:"column:key;primaryKey;size:190;not null"`
	Value            string `gorm:"column:value;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "user_settings"
}

// Repository is the settings access contract.
type Repository interface {
	Get(ctx context.Context, userID, key string) (string, bool, error)
	Set(ctx context.Context, userID, key, value string) error
	Clear(ctx context.Context, userID, key string) error
	All(ctx context.Context, userID string) (map[string]string, error)
}

// SQLiteRepository implements Repository on the shared GORM handle.
type SQLiteRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewSQLiteRepository constructs the repository.
func NewSQLiteRepository(db *gorm.DB, clock func() time.Time) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &SQLiteRepository{db: db, clock: clock}, nil
}

// Get returns the stored value and whether it exists.
func (r *SQLiteRepository) Get(ctx context.Context, userID, key string) (string, bool, error) {
	var record Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s/%s: %w", userID, key, err)
	}
	return record.Value, true, nil
}

// Set stores or replaces the value.
func (r *SQLiteRepository) Set(ctx context.Context, userID, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	record := Record{
		UserID:           userID,
		Key:              key,
		Value:            value,
		UpdatedAtSeconds: r.clock().UTC().Unix(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("settings: set %s/%s: %w", userID, key, err)
	}
	return nil
}

// Clear removes the setting. Clearing an absent key is not an error.
func (r *SQLiteRepository) Clear(ctx context.Context, userID, key string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		Delete(&Record{})
	if result.Error != nil {
		return fmt.Errorf("settings: clear %s/%s: %w", userID, key, result.Error)
	}
	return nil
}

// All returns every setting for the user.
func (r *SQLiteRepository) All(ctx context.Context, userID string) (map[string]string, error) {
	var records []Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("settings: list %s: %w", userID, err)
	}
	values := make(map[string]string, len(records))
	for _, record := range records {
		values[record.Key] = record.Value
	}
	return values, nil
}
