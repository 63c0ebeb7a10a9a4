// Package users keeps a local record of who has signed in to this instance.
// Profiles carry display metadata only; authorization is entirely the session
// token's job.
package users

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"quill/internal/identity"
)

// ErrInvalidProfile indicates the claims did not contain a usable identifier.
var ErrInvalidProfile = errors.New("users: invalid profile")

// Profile is the GORM row for one known user.
type Profile struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:user_email;size:320"`
	DisplayName      string `gorm:"column:user_display_name;size:320"`
	LastSeenAtSecond int64  `gorm:"column:last_seen_at_s;not null"`
	CreatedAtSecond  int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

// ServiceConfig describes the dependencies for profile recording.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service records sign-ins and serves stored profiles.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// RecordSignIn upserts the profile for the validated session claims. New
// metadata wins; blank claim fields never erase stored values.
func (s *Service) RecordSignIn(claims identity.SessionClaims) error {
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return ErrInvalidProfile
	}

	now := s.now().UTC().Unix()

	var profile Profile
	err := s.db.Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:           userID,
			Email:            strings.TrimSpace(claims.UserEmail),
			DisplayName:      strings.TrimSpace(claims.UserDisplayName),
			LastSeenAtSecond: now,
			CreatedAtSecond:  now,
		}
		return s.db.Create(&profile).Error
	}
	if err != nil {
		return err
	}

	updates := map[string]any{"last_seen_at_s": now}
	if email := strings.TrimSpace(claims.UserEmail); email != "" && email != profile.Email {
		updates["user_email"] = email
	}
	if display := strings.TrimSpace(claims.UserDisplayName); display != "" && display != profile.DisplayName {
		updates["user_display_name"] = display
	}
	return s.db.Model(&Profile{}).Where("user_id = ?", userID).Updates(updates).Error
}

// Profile returns the stored profile for the user.
func (s *Service) Profile(userID string) (Profile, bool, error) {
	var profile Profile
	err := s.db.Where("user_id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return profile, true, nil
}
