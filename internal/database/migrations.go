package database

import (
	"log"
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "1",
			Migrate: func(txn *gorm.DB) error {
				// commentaire_rejet was added after the initial schema.
				return txn.Migrator().AddColumn(&FicheConsultation{}, "CommentaireRejet")
			},
			Rollback: func(txn *gorm.DB) error {
				return txn.Migrator().DropColumn(&FicheConsultation{}, "CommentaireRejet")
			},
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Run by the migrator if no previous migration is detected. It allows
		// bypassing the sequential migrations and just creates the latest state.

		log.Println("clean database detected, running full schema initialization")

		dbType := db.Dialector.Name()
		if dbType == "sqlite" || dbType == "sqlite3" {
			// Sqlite does not enable foreign key constraints by default.
			if err := txn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				slog.Error("error enabling foreign keys for SQLite", "error", err)
			}
		}

		return txn.AutoMigrate(
			&User{}, &FicheConsultation{}, &Conversation{}, &Message{}, &AnalysisTask{},
		)
	})

	return migrator
}
