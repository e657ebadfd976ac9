package db

import (
	"fmt"

	"github.com/teamleap/crmauto/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates all tables via gorm AutoMigrate.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.Pipeline{},
		&models.Stage{},
		&models.Deal{},
		&models.StageMove{},
		&models.Task{},
		&models.StageTaskRule{},
		&models.StageSequenceRule{},
		&models.StaleDealRule{},
		&models.WonChecklistRule{},
		&models.OverdueTaskRule{},
		&models.FireRecord{},
	)
}
