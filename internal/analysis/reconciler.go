package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/analyzer"
	"github.com/repolens/workspace-api/internal/db"
	"github.com/repolens/workspace-api/internal/service"
)

// ErrNoAnalysis indicates the workspace has no analysis record. Callers
// treat the workspace as pending, not as a failure.
var ErrNoAnalysis = errors.New("no analysis record for workspace")

// Reconciler bridges stored analysis state with the external analyzer. It
// decides per call whether to read cached state, poll the analyzer, or
// fetch and persist a final result.
type Reconciler struct {
	db     *gorm.DB
	client *analyzer.Client
}

// NewReconciler creates a new reconciler
func NewReconciler(dbConn *gorm.DB, client *analyzer.Client) *Reconciler {
	return &Reconciler{db: dbConn, client: client}
}

// SubmitAnalysis submits the workspace's repository to the analyzer and
// persists the initial analysis record. Relative URLs in the analyzer's
// response are normalized against its base origin. On analyzer failure no
// record is created; the workspace itself stands either way.
func (r *Reconciler) SubmitAnalysis(ctx context.Context, workspace *db.Workspace) (*db.Analysis, error) {
	resp, err := r.client.Submit(ctx, workspace.GithubRepository, workspace.ID)
	if err != nil {
		return nil, err
	}

	status := db.AnalysisStatus(resp.Status)
	if status == "" {
		status = db.StatusPending
	}

	analysis := &db.Analysis{
		ID:          uuid.NewString(),
		WorkspaceID: workspace.ID,
		ExternalID:  resp.WorkspaceID,
		Status:      status,
		Message:     resp.Message,
		StatusURL:   r.client.ResolveURL(resp.StatusURL),
		ResultURL:   r.client.ResolveURL(resp.ResultURL),
		StartedAt:   time.Now().UTC(),
	}

	if err := service.CreateAnalysis(r.db, analysis); err != nil {
		return nil, err
	}

	log.Printf("Submitted analysis for workspace %s (external ID: %q)", workspace.ID, analysis.ExternalID)
	return analysis, nil
}

// CheckStatus reconciles the stored analysis with the analyzer's view.
//
// A completed record is returned as-is without any network call, so the
// result is fetched at most once per analysis. Otherwise the analyzer's
// status is merged field-by-field into the stored record (absent fields
// keep their previous values) and committed before any result fetch, so a
// failure between the two leaves a recoverable intermediate state.
func (r *Reconciler) CheckStatus(ctx context.Context, workspaceID string) (*db.Analysis, error) {
	stored, err := service.GetAnalysisByWorkspaceID(r.db, workspaceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoAnalysis
		}
		return nil, err
	}

	// Terminal: result already persisted, pure read from here on.
	if stored.Completed() {
		return stored, nil
	}

	// Failed submission path: nothing to poll, report stored state.
	if stored.StatusURL == "" && stored.ExternalID == "" {
		return stored, nil
	}

	statusURL := stored.StatusURL
	if statusURL == "" {
		statusURL = r.client.StatusURL(stored.ExternalID)
	}

	raw, err := r.client.FetchJSON(ctx, statusURL)
	if err != nil {
		return nil, err
	}

	var status analyzer.StatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("%w: decoding status response: %v", analyzer.ErrUnavailable, err)
	}

	// Per-field coalesce: the analyzer's value wins only if present, so a
	// sparse response never regresses progress already recorded.
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if status.Status != "" {
		stored.Status = db.AnalysisStatus(status.Status)
		updates["status"] = stored.Status
	}
	if status.Progress != nil {
		stored.Progress = status.Progress
		updates["progress"] = *status.Progress
	}
	if status.Message != nil {
		stored.Message = *status.Message
		updates["message"] = stored.Message
	}
	if status.CurrentStep != nil {
		stored.CurrentStep = *status.CurrentStep
		updates["current_step"] = stored.CurrentStep
	}
	if stored.ExternalID == "" && status.WorkspaceID != "" {
		stored.ExternalID = status.WorkspaceID
		updates["external_id"] = stored.ExternalID
	}

	if err := service.UpdateAnalysisFields(r.db, workspaceID, updates); err != nil {
		return nil, err
	}

	if stored.Status != db.StatusCompleted {
		return stored, nil
	}

	return r.fetchResult(ctx, stored)
}

// fetchResult retrieves and persists the final result document. The write
// is conditional on no result being present yet, so concurrent completers
// cannot overwrite the first result.
func (r *Reconciler) fetchResult(ctx context.Context, stored *db.Analysis) (*db.Analysis, error) {
	resultURL := stored.ResultURL
	if resultURL == "" {
		if stored.ExternalID == "" {
			// Completed upstream but no way to locate the result document.
			log.Printf("Analysis %s completed but has no result URL or external ID", stored.ID)
			return stored, nil
		}
		resultURL = r.client.ResultURL(stored.ExternalID)
	}

	raw, err := r.client.FetchJSON(ctx, resultURL)
	if err != nil {
		return nil, err
	}

	written, err := service.SetAnalysisResult(r.db, stored.WorkspaceID, datatypes.JSON(raw), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !written {
		log.Printf("Result for workspace %s already persisted by a concurrent caller", stored.WorkspaceID)
	}

	return service.GetAnalysisByWorkspaceID(r.db, stored.WorkspaceID)
}
