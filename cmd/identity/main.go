package main

import (
	"log"

	"github.com/aussiebroadwan/storefront/internal/identity/app"
	"github.com/joho/godotenv"
)

func main() {
	// A .env file is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
