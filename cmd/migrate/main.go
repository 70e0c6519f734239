package main

import (
	"log"
	"os"

	"github.com/safar/go-shop-api/internal/config"
	"github.com/safar/go-shop-api/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down]")
	}

	direction := database.MigrateDirection(os.Args[1])
	if direction != database.MigrateUp && direction != database.MigrateDown {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	dbCfg := config.LoadDatabase()

	db, err := database.NewConnection(&dbCfg)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Running migrations %s", direction)
	if err := database.Migrate(db, direction); err != nil {
		log.Fatalf("Migrate %s: %v", direction, err)
	}

	log.Printf("Successfully ran migrations %s", direction)
}
