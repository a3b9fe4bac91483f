package db

import (
	"fmt"

	"github.com/modelgate/modelgate/internal/models"
	"gorm.io/gorm"
)

// Migrate runs schema migrations for all routing-core tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.PolicyTable{},
		&models.Tier{},
		&models.User{},
		&models.UsageDay{},
		&models.EvaluationDataset{},
		&models.EvaluationSample{},
		&models.EvaluationRun{},
	)
}
