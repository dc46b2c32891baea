package auth

import (
	"log"
	"os"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
)

// Tokens is the shared token service, set by Init.
var Tokens *TokenService

func Init() {
	if err := db.EnsureSchema(db.DB, "app_auth"); err != nil {
		log.Fatal("Failed to ensure schema app_auth: ", err)
	}

	if err := db.DB.AutoMigrate(&User{}); err != nil {
		log.Fatal("Failed to auto-migrate auth tables: ", err)
	}

	svc, err := NewTokenService(os.Getenv("TOKEN_SECRET"), TokenTTL)
	if err != nil {
		log.Fatal("Failed to init token service: ", err)
	}
	Tokens = svc

	log.Println("Auth module initialized")
}
