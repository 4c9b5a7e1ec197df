package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/analysis"
	"github.com/repolens/workspace-api/internal/analyzer"
	"github.com/repolens/workspace-api/internal/db"
	"github.com/repolens/workspace-api/internal/middleware"
	"github.com/repolens/workspace-api/internal/service"
)

// PostWorkspaceRequest represents the workspace creation request
type PostWorkspaceRequest struct {
	Name             string `json:"name" binding:"required,min=1,max=255"`
	GithubRepository string `json:"github_repository" binding:"required,url"`
}

// StatusResponse represents the status check response
type StatusResponse struct {
	Status   db.AnalysisStatus `json:"status"`
	Analysis *db.Analysis      `json:"analysis"`
}

// PaginatedResponse represents a paginated response
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Total int64       `json:"total"`
	Pages int         `json:"pages"`
}

// PostWorkspaceHandler handles workspace creation. The repository is
// submitted to the analyzer in the same request; if the analyzer is down
// the workspace is still created and simply has no analysis record.
func PostWorkspaceHandler(dbConn *gorm.DB, reconciler *analysis.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PostWorkspaceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Printf("Workspace creation validation error: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid workspace request",
				"details": err.Error(),
			})
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		req.GithubRepository = strings.TrimSpace(req.GithubRepository)
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
			return
		}

		user, ok := middleware.GetUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		workspace, err := service.CreateWorkspace(dbConn, user.Email, req.Name, req.GithubRepository)
		if err != nil {
			log.Printf("Failed to create workspace: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save workspace"})
			return
		}

		// Submission failure is not a creation failure; a workspace with no
		// analysis record reads as "analysis not started".
		submitted, err := reconciler.SubmitAnalysis(c.Request.Context(), workspace)
		if err != nil {
			log.Printf("Analyzer submission failed for workspace %s: %v", workspace.ID, err)
		} else {
			workspace.Analysis = submitted
		}

		log.Printf("Created workspace %s (%s) for %s", workspace.ID, workspace.Name, user.Email)
		c.JSON(http.StatusCreated, workspace)
	}
}

// ListWorkspacesHandler handles workspace listing with pagination
func ListWorkspacesHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.GetUserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}

		pageSize, err := strconv.Atoi(c.DefaultQuery("size", "10"))
		if err != nil || pageSize < 1 || pageSize > 100 {
			pageSize = 10
		}

		sort := c.DefaultQuery("sort", "created_at desc")
		allowedSorts := map[string]bool{
			"created_at desc": true,
			"created_at asc":  true,
			"updated_at desc": true,
			"updated_at asc":  true,
			"name asc":        true,
			"name desc":       true,
		}
		if !allowedSorts[sort] {
			sort = "created_at desc"
		}

		query := dbConn.Model(&db.Workspace{}).Where("email = ?", user.Email)

		if search := strings.TrimSpace(c.Query("q")); search != "" {
			query = query.Where("name LIKE ? OR github_repository LIKE ?", "%"+search+"%", "%"+search+"%")
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			log.Printf("Failed to count workspaces: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		offset := (page - 1) * pageSize
		pages := int((total + int64(pageSize) - 1) / int64(pageSize))

		var workspaces []db.Workspace
		if err := query.Preload("Analysis").Order(sort).Limit(pageSize).Offset(offset).Find(&workspaces).Error; err != nil {
			log.Printf("Failed to fetch workspaces: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, PaginatedResponse{
			Data:  workspaces,
			Page:  page,
			Size:  pageSize,
			Total: total,
			Pages: pages,
		})
	}
}

// GetWorkspaceHandler handles retrieving a single workspace. Pure read:
// no analyzer call is ever made here.
func GetWorkspaceHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := loadOwnedWorkspace(c, dbConn)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, workspace)
	}
}

// WorkspaceStatusHandler triggers a status reconciliation for the
// workspace's analysis and returns the resulting snapshot
func WorkspaceStatusHandler(dbConn *gorm.DB, reconciler *analysis.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := loadOwnedWorkspace(c, dbConn)
		if !ok {
			return
		}

		snapshot, err := reconciler.CheckStatus(c.Request.Context(), workspace.ID)
		if err != nil {
			if errors.Is(err, analysis.ErrNoAnalysis) {
				// Submission never happened; the workspace reads as pending.
				c.JSON(http.StatusOK, StatusResponse{Status: db.StatusPending, Analysis: nil})
				return
			}
			if errors.Is(err, analyzer.ErrUnavailable) {
				log.Printf("Analyzer unavailable for workspace %s: %v", workspace.ID, err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "Analyzer service unavailable"})
				return
			}
			log.Printf("Status check failed for workspace %s: %v", workspace.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, StatusResponse{Status: snapshot.Status, Analysis: snapshot})
	}
}

// DeleteWorkspaceHandler handles workspace deletion, cascading the analysis
func DeleteWorkspaceHandler(dbConn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspace, ok := loadOwnedWorkspace(c, dbConn)
		if !ok {
			return
		}

		if err := service.DeleteWorkspace(dbConn, workspace.ID); err != nil {
			log.Printf("Failed to delete workspace %s: %v", workspace.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete workspace"})
			return
		}

		log.Printf("Deleted workspace %s", workspace.ID)
		c.JSON(http.StatusOK, gin.H{"message": "Workspace deleted", "workspace_id": workspace.ID})
	}
}

// loadOwnedWorkspace loads the workspace from the :id param and enforces
// the ownership predicate. A workspace owned by someone else is
// indistinguishable from a missing one.
func loadOwnedWorkspace(c *gin.Context, dbConn *gorm.DB) (*db.Workspace, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid workspace ID"})
		return nil, false
	}

	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return nil, false
	}

	workspace, err := service.GetWorkspaceByID(dbConn, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Workspace not found"})
			return nil, false
		}
		log.Printf("Failed to fetch workspace %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}

	if !service.OwnedBy(workspace, user.Email) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Workspace not found"})
		return nil, false
	}

	return workspace, true
}
