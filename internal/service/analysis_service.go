package service

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/db"
)

// CreateAnalysis persists a freshly submitted analysis record
func CreateAnalysis(dbConn *gorm.DB, analysis *db.Analysis) error {
	return dbConn.Create(analysis).Error
}

// GetAnalysisByWorkspaceID retrieves the analysis for a workspace
func GetAnalysisByWorkspaceID(dbConn *gorm.DB, workspaceID string) (*db.Analysis, error) {
	var analysis db.Analysis
	err := dbConn.Where("workspace_id = ?", workspaceID).First(&analysis).Error
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// UpdateAnalysisFields applies a partial update to the workspace's analysis
func UpdateAnalysisFields(dbConn *gorm.DB, workspaceID string, updates map[string]interface{}) error {
	return dbConn.Model(&db.Analysis{}).Where("workspace_id = ?", workspaceID).Updates(updates).Error
}

// SetAnalysisResult stores the final result document exactly once. The
// conditional write keeps the first result under concurrent completers;
// the boolean reports whether this call was the writer.
func SetAnalysisResult(dbConn *gorm.DB, workspaceID string, result datatypes.JSON, completedAt time.Time) (bool, error) {
	res := dbConn.Model(&db.Analysis{}).
		Where("workspace_id = ? AND result IS NULL", workspaceID).
		Updates(map[string]interface{}{
			"result":       result,
			"completed_at": completedAt,
			"status":       db.StatusCompleted,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
