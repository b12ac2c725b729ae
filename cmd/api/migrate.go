package main

import (
	"log"

	"github.com/spf13/cobra"

	"flowtask-backend/internal/config"
	"flowtask-backend/internal/db"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll migrations back instead of applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	database, err := db.Connect(cfg.ConnString())
	if err != nil {
		return err
	}
	defer database.Close()

	if migrateDown {
		if err := db.MigrateDown(database); err != nil {
			return err
		}
		log.Println("migrations rolled back")
		return nil
	}

	if err := db.MigrateUp(database); err != nil {
		return err
	}
	log.Println("migrations applied")
	return nil
}
