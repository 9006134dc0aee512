package repository

import (
	"github.com/arcrelay/geminiproxy/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate runs schema migrations for every persisted model: the three
// domain tables (spec §3) plus this package's own settingRow. Rewritten
// from the teacher's same-named function, which registered the ten
// admin-dashboard tables this module has no use for.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Account{},
		&model.RequestLog{},
		&model.HourlySummaryOverall{},
		&model.HourlySummaryByModel{},
		&model.HourlySummaryByAccount{},
		&settingRow{},
	)
}
