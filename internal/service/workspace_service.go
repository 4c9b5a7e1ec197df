package service

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/db"
)

// CreateWorkspace creates a new workspace owned by the given user email
func CreateWorkspace(dbConn *gorm.DB, email, name, repositoryURL string) (*db.Workspace, error) {
	if email == "" {
		return nil, fmt.Errorf("owner email cannot be empty")
	}
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	if repositoryURL == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}

	workspace := db.Workspace{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             name,
		GithubRepository: repositoryURL,
	}

	if err := dbConn.Create(&workspace).Error; err != nil {
		return nil, err
	}
	return &workspace, nil
}

// GetWorkspaceByID retrieves a workspace with its analysis, if any
func GetWorkspaceByID(dbConn *gorm.DB, id string) (*db.Workspace, error) {
	var workspace db.Workspace
	err := dbConn.Preload("Analysis").Where("id = ?", id).First(&workspace).Error
	if err != nil {
		return nil, err
	}
	return &workspace, nil
}

// OwnedBy is the authorization predicate for workspace access. It is
// evaluated explicitly on every read rather than folded into query filters.
func OwnedBy(workspace *db.Workspace, email string) bool {
	return workspace != nil && email != "" && workspace.Email == email
}

// DeleteWorkspace deletes a workspace and cascades its analysis
func DeleteWorkspace(dbConn *gorm.DB, id string) error {
	return dbConn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("workspace_id = ?", id).Delete(&db.Analysis{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&db.Workspace{}).Error
	})
}
