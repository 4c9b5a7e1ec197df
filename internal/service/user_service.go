package service

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/db"
)

// CreateUser creates a new user with proper validation
func CreateUser(dbConn *gorm.DB, email, passwordHash string) error {
	if email == "" || passwordHash == "" {
		return fmt.Errorf("email and password cannot be empty")
	}

	user := db.User{
		Email:    email,
		Password: passwordHash,
	}

	return dbConn.Create(&user).Error
}

// GetUserByEmail retrieves a user by email
func GetUserByEmail(dbConn *gorm.DB, email string) (*db.User, error) {
	var user db.User
	err := dbConn.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
