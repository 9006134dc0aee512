package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// settingRow is the backing table for internal/settings.Provider. The
// settings store's own schema and admin-facing CRUD are out of scope (spec
// §1) — this type exists only to satisfy settings.Store's single read
// method, adapted from the teacher's setting_repo.go key/value row shape.
type settingRow struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (settingRow) TableName() string { return "settings" }

// SettingsStore implements settings.Store over gorm.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) GetAll(ctx context.Context) (map[string]string, error) {
	var rows []settingRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[string]string, len(rows))
	for _, r := range rows {
		result[r.Key] = r.Value
	}
	return result, nil
}
