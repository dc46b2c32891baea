package market

import (
	"log"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
)

func Init() {
	if err := db.EnsureSchema(db.DB, "market"); err != nil {
		log.Fatal("Failed to ensure schema market: ", err)
	}

	if err := db.DB.AutoMigrate(
		&Facility{},
		&OwnershipProfile{},
		&FacilityOwnership{},
		&MarketMetric{},
		&OpportunityScore{},
	); err != nil {
		log.Fatal("Failed to auto-migrate market tables: ", err)
	}

	log.Println("Market module initialized")
}
