package main

import (
	"log"

	"github.com/subsyncapp/subsync/app/models"
	"github.com/subsyncapp/subsync/internal/pkg/database"
	"github.com/subsyncapp/subsync/internal/pkg/env"
)

// Seeds a demo user and organization so the billing API can be exercised
// locally against Stripe test mode without the external identity services.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	db := database.GetDB()

	user := models.NewUser("Demo User", "demo@example.com")
	if err := user.Validate(); err != nil {
		log.Fatalf("Invalid demo user: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		log.Fatalf("Failed to create demo user: %v", err)
	}
	log.Printf("Created user %s (%s)", user.UUID, user.Email)

	org := models.NewOrganization("Demo Organization")
	if err := db.Create(org).Error; err != nil {
		log.Fatalf("Failed to create demo organization: %v", err)
	}
	log.Printf("Created organization %s (%s)", org.UUID, org.Name)
}
