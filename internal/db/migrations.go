package db

import (
	"fmt"

	"gorm.io/gorm"

	"violation-service/internal/repository"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS violations (
		id              UUID PRIMARY KEY,
		vehicle_number  TEXT NOT NULL,
		violation_type  TEXT NOT NULL,
		location        TEXT,
		camera_id       TEXT,
		officer_id      TEXT,
		status          TEXT NOT NULL DEFAULT 'pending',
		fine_amount     NUMERIC(10,2) NOT NULL DEFAULT 0,
		confidence      NUMERIC(5,4),
		detection_class TEXT,
		bbox            JSONB,
		timestamp       TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_vehicle_number ON violations(vehicle_number);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_violation_type ON violations(violation_type);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_status ON violations(status);`,
	`CREATE INDEX IF NOT EXISTS idx_violations_timestamp ON violations(timestamp);`,
	`CREATE TABLE IF NOT EXISTS cooldown_entries (
		id               BIGSERIAL PRIMARY KEY,
		violation_type   TEXT NOT NULL,
		vehicle_identity TEXT NOT NULL,
		registered_at    TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_cooldown_lookup ON cooldown_entries(violation_type, registered_at);`,
}

func runMigrations(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return db.AutoMigrate(&repository.Violation{}, &repository.CooldownEntry{})
	}
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
