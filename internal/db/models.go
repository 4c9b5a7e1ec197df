package db

import (
	"time"

	"gorm.io/datatypes"
)

type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// User represents an authenticated user
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Password  string    `gorm:"not null;size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Workspace represents a user-registered repository to be analyzed
type Workspace struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Email            string    `gorm:"index;not null;size:255" json:"email"`
	Name             string    `gorm:"not null;size:255" json:"name"`
	GithubRepository string    `gorm:"not null;size:768" json:"github_repository"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Analysis         *Analysis `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"analysis,omitempty"`
}

// Analysis tracks one workspace's analyzer job lifecycle and eventual result.
// Result is written exactly once; CompletedAt is set in the same write.
type Analysis struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	WorkspaceID string         `gorm:"uniqueIndex;not null;size:36" json:"workspace_id"`
	ExternalID  string         `gorm:"size:255" json:"external_workspace_id"`
	Status      AnalysisStatus `gorm:"default:'pending';size:64" json:"status"`
	Progress    *int           `json:"progress"`
	Message     string         `json:"message"`
	CurrentStep string         `json:"current_step"`
	StatusURL   string         `gorm:"size:768" json:"status_url"`
	ResultURL   string         `gorm:"size:768" json:"result_url"`
	Result      datatypes.JSON `json:"result"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Completed reports whether the analysis reached its terminal state. A
// NULL result column scans as the literal JSON null, which still means
// "no result".
func (a *Analysis) Completed() bool {
	return len(a.Result) > 0 && string(a.Result) != "null"
}
