package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/repolens/workspace-api/internal/analysis"
	"github.com/repolens/workspace-api/internal/analyzer"
	"github.com/repolens/workspace-api/internal/db"
	"github.com/repolens/workspace-api/internal/middleware"
	"github.com/repolens/workspace-api/internal/service"
)

const testEmail = "owner@example.com"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dbConn, err := db.Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	return dbConn
}

// stubAuth injects a fixed identity, standing in for the JWT middleware.
func stubAuth(email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", middleware.UserContext{UserID: 1, Email: email})
		c.Next()
	}
}

func newTestRouter(dbConn *gorm.DB, reconciler *analysis.Reconciler, email string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	authorized := r.Group("/")
	authorized.Use(stubAuth(email))
	{
		authorized.POST("/workspaces", PostWorkspaceHandler(dbConn, reconciler))
		authorized.GET("/workspaces", ListWorkspacesHandler(dbConn))
		authorized.GET("/workspaces/:id", GetWorkspaceHandler(dbConn))
		authorized.GET("/workspaces/:id/status", WorkspaceStatusHandler(dbConn, reconciler))
		authorized.DELETE("/workspaces/:id", DeleteWorkspaceHandler(dbConn))
	}

	return r
}

func newReconciler(t *testing.T, dbConn *gorm.DB, baseURL string) *analysis.Reconciler {
	t.Helper()
	client, err := analyzer.NewClient(baseURL, 5*time.Second)
	require.NoError(t, err)
	return analysis.NewReconciler(dbConn, client)
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostWorkspace_CreatedWithAnalysis(t *testing.T) {
	dbConn := openTestDB(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"workspace_id": "ext-1",
			"status":       "pending",
			"status_url":   "/api/status/ext-1",
		})
	}))
	defer ts.Close()

	router := newTestRouter(dbConn, newReconciler(t, dbConn, ts.URL), testEmail)

	w := doJSON(t, router, http.MethodPost, "/workspaces", gin.H{
		"name":              "demo",
		"github_repository": "https://github.com/x/y",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created db.Workspace
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "demo", created.Name)
	assert.Equal(t, testEmail, created.Email)
	require.NotNil(t, created.Analysis)
	assert.Equal(t, "ext-1", created.Analysis.ExternalID)
	assert.Equal(t, db.StatusPending, created.Analysis.Status)
	assert.Equal(t, ts.URL+"/api/status/ext-1", created.Analysis.StatusURL)
}

func TestPostWorkspace_AnalyzerDownStillCreates(t *testing.T) {
	dbConn := openTestDB(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	router := newTestRouter(dbConn, newReconciler(t, dbConn, ts.URL), testEmail)

	w := doJSON(t, router, http.MethodPost, "/workspaces", gin.H{
		"name":              "demo",
		"github_repository": "https://github.com/x/y",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created db.Workspace
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Nil(t, created.Analysis)

	// No analysis record exists: the workspace reads as "not started".
	var count int64
	require.NoError(t, dbConn.Model(&db.Analysis{}).Where("workspace_id = ?", created.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPostWorkspace_InvalidBody(t *testing.T) {
	dbConn := openTestDB(t)
	router := newTestRouter(dbConn, newReconciler(t, dbConn, "http://localhost:0"), testEmail)

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing name", gin.H{"github_repository": "https://github.com/x/y"}},
		{"missing repository", gin.H{"name": "demo"}},
		{"malformed repository URL", gin.H{"name": "demo", "github_repository": "not-a-url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/workspaces", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetWorkspace_OwnershipEnforced(t *testing.T) {
	dbConn := openTestDB(t)
	workspace, err := service.CreateWorkspace(dbConn, testEmail, "demo", "https://github.com/x/y")
	require.NoError(t, err)

	intruder := newTestRouter(dbConn, newReconciler(t, dbConn, "http://localhost:0"), "intruder@example.com")
	w := doJSON(t, intruder, http.MethodGet, "/workspaces/"+workspace.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	owner := newTestRouter(dbConn, newReconciler(t, dbConn, "http://localhost:0"), testEmail)
	w = doJSON(t, owner, http.MethodGet, "/workspaces/"+workspace.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetWorkspace_IsPureRead(t *testing.T) {
	dbConn := openTestDB(t)

	var analyzerCalls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&analyzerCalls, 1)
	}))
	defer ts.Close()

	workspace, err := service.CreateWorkspace(dbConn, testEmail, "demo", "https://github.com/x/y")
	require.NoError(t, err)
	require.NoError(t, service.CreateAnalysis(dbConn, &db.Analysis{
		ID:          uuid.NewString(),
		WorkspaceID: workspace.ID,
		ExternalID:  "ext-1",
		Status:      db.StatusProcessing,
		StatusURL:   ts.URL + "/api/status/ext-1",
		StartedAt:   time.Now().UTC(),
	}))

	router := newTestRouter(dbConn, newReconciler(t, dbConn, ts.URL), testEmail)
	w := doJSON(t, router, http.MethodGet, "/workspaces/"+workspace.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var loaded db.Workspace
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loaded))
	require.NotNil(t, loaded.Analysis)
	assert.Equal(t, db.StatusProcessing, loaded.Analysis.Status)
	assert.Zero(t, atomic.LoadInt32(&analyzerCalls))
}

func TestWorkspaceStatus_NoAnalysisReadsAsPending(t *testing.T) {
	dbConn := openTestDB(t)
	workspace, err := service.CreateWorkspace(dbConn, testEmail, "demo", "https://github.com/x/y")
	require.NoError(t, err)

	router := newTestRouter(dbConn, newReconciler(t, dbConn, "http://localhost:0"), testEmail)
	w := doJSON(t, router, http.MethodGet, "/workspaces/"+workspace.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, db.StatusPending, resp.Status)
	assert.Nil(t, resp.Analysis)
}

func TestWorkspaceStatus_UpstreamFailureIs502(t *testing.T) {
	dbConn := openTestDB(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	workspace, err := service.CreateWorkspace(dbConn, testEmail, "demo", "https://github.com/x/y")
	require.NoError(t, err)
	require.NoError(t, service.CreateAnalysis(dbConn, &db.Analysis{
		ID:          uuid.NewString(),
		WorkspaceID: workspace.ID,
		ExternalID:  "ext-1",
		Status:      db.StatusProcessing,
		StatusURL:   ts.URL + "/api/status/ext-1",
		StartedAt:   time.Now().UTC(),
	}))

	router := newTestRouter(dbConn, newReconciler(t, dbConn, ts.URL), testEmail)
	w := doJSON(t, router, http.MethodGet, "/workspaces/"+workspace.ID+"/status", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWorkspaceStatus_ReturnsMergedSnapshot(t *testing.T) {
	dbConn := openTestDB(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "running",
			"progress": 30,
		})
	}))
	defer ts.Close()

	workspace, err := service.CreateWorkspace(dbConn, testEmail, "demo", "https://github.com/x/y")
	require.NoError(t, err)
	require.NoError(t, service.CreateAnalysis(dbConn, &db.Analysis{
		ID:          uuid.NewString(),
		WorkspaceID: workspace.ID,
		ExternalID:  "ext-1",
		Status:      db.StatusPending,
		StatusURL:   ts.URL + "/api/status/ext-1",
		StartedAt:   time.Now().UTC(),
	}))

	router := newTestRouter(dbConn, newReconciler(t, dbConn, ts.URL), testEmail)
	w := doJSON(t, router, http.MethodGet, "/workspaces/"+workspace.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, db.AnalysisStatus("running"), resp.Status)
	require.NotNil(t, resp.Analysis)
	require.NotNil(t, resp.Analysis.Progress)
	assert.Equal(t, 30, *resp.Analysis.Progress)
}

func TestDeleteWorkspace(t *testing.T) {
	dbConn := openTestDB(t)
	workspace, err := service.CreateWorkspace(dbConn, testEmail, "demo", "https://github.com/x/y")
	require.NoError(t, err)

	router := newTestRouter(dbConn, newReconciler(t, dbConn, "http://localhost:0"), testEmail)
	w := doJSON(t, router, http.MethodDelete, "/workspaces/"+workspace.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err = service.GetWorkspaceByID(dbConn, workspace.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListWorkspaces_ScopedToCaller(t *testing.T) {
	dbConn := openTestDB(t)

	_, err := service.CreateWorkspace(dbConn, testEmail, "mine", "https://github.com/x/y")
	require.NoError(t, err)
	_, err = service.CreateWorkspace(dbConn, "other@example.com", "theirs", "https://github.com/a/b")
	require.NoError(t, err)

	router := newTestRouter(dbConn, newReconciler(t, dbConn, "http://localhost:0"), testEmail)
	w := doJSON(t, router, http.MethodGet, "/workspaces", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data  []db.Workspace `json:"data"`
		Total int64          `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "mine", resp.Data[0].Name)
	assert.Equal(t, int64(1), resp.Total)
}
