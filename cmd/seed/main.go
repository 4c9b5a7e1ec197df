package main

import (
	"flag"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/db"
)

// SeedConfig holds seed configuration
type SeedConfig struct {
	Email    string
	Password string
	Force    bool
}

// NewSeedConfig creates a new seed configuration
func NewSeedConfig() *SeedConfig {
	email := flag.String("email", "admin@example.com", "Admin email")
	password := flag.String("password", "adminpass", "Admin password")
	force := flag.Bool("force", false, "Force recreation of admin user")

	flag.Parse()

	return &SeedConfig{
		Email:    *email,
		Password: *password,
		Force:    *force,
	}
}

func main() {
	config := NewSeedConfig()

	// Validate configuration
	if config.Email == "" || !strings.Contains(config.Email, "@") {
		log.Fatal("A valid email is required")
	}
	if config.Password == "" {
		log.Fatal("Password cannot be empty")
	}
	if len(config.Password) < 6 {
		log.Fatal("Password must be at least 6 characters long")
	}

	log.Println("Starting database seeding...")

	// Initialize database connection
	dbConn, err := db.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if admin user already exists
	var existingUser db.User
	err = dbConn.Where("email = ?", config.Email).First(&existingUser).Error
	if err == nil {
		if !config.Force {
			log.Printf("User '%s' already exists. Use -force flag to recreate.", config.Email)
			return
		}

		log.Printf("Recreating user '%s'...", config.Email)
		if err := dbConn.Delete(&existingUser).Error; err != nil {
			log.Fatalf("Failed to delete existing user: %v", err)
		}
	} else if err != gorm.ErrRecordNotFound {
		log.Fatalf("Database error checking existing user: %v", err)
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(config.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	// Create admin user
	adminUser := db.User{
		Email:    config.Email,
		Password: string(hashedPassword),
	}

	if err := dbConn.Create(&adminUser).Error; err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	log.Printf("Successfully created user: %s", adminUser.Email)
	log.Printf("User ID: %d", adminUser.ID)
	log.Println("Database seeding completed successfully")
}
