package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/auth"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/deals"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/market"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/middleware"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/watchlists"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")
	db.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5050"
	}

	auth.Init()
	deals.Init()
	watchlists.Init()
	market.Init()

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Get("/", RootHandler)

	r.Mount("/auth", auth.SetupRoutes())
	r.Mount("/deals", deals.SetupRoutes())
	r.Mount("/watchlists", watchlists.SetupRoutes())
	r.Mount("/market", market.SetupRoutes())

	fmt.Printf("Server listening on port :%s...\n", port)

	http.ListenAndServe("0.0.0.0:"+port, r)
}
