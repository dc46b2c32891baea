package watchlists

import (
	"log"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "crm"); err != nil {
		log.Fatal("Failed to ensure schema crm: ", err)
	}

	if err := db.DB.AutoMigrate(
		&Watchlist{},
		&WatchlistEntry{},
	); err != nil {
		log.Fatal("Failed to auto-migrate watchlist tables: ", err)
	}

	log.Println("Watchlists module initialized")
}
