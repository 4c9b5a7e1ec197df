package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/repolens/workspace-api/internal/analysis"
	"github.com/repolens/workspace-api/internal/analyzer"
	"github.com/repolens/workspace-api/internal/db"
	"github.com/repolens/workspace-api/internal/poller"
)

// PollConfig holds poll tool configuration
type PollConfig struct {
	WorkspaceID     string
	Interval        time.Duration
	AnalyzerBaseURL string
}

// NewPollConfig creates a new poll configuration
func NewPollConfig() *PollConfig {
	workspaceID := flag.String("workspace", "", "Workspace ID to poll")
	interval := flag.Duration("interval", poller.DefaultInterval, "Poll interval")

	flag.Parse()

	analyzerBaseURL := os.Getenv("ANALYZER_BASE_URL")
	if analyzerBaseURL == "" {
		analyzerBaseURL = "http://localhost:8000"
	}

	return &PollConfig{
		WorkspaceID:     *workspaceID,
		Interval:        *interval,
		AnalyzerBaseURL: analyzerBaseURL,
	}
}

func main() {
	config := NewPollConfig()

	if config.WorkspaceID == "" {
		log.Fatal("Workspace ID is required (-workspace)")
	}

	dbConn, err := db.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	client, err := analyzer.NewClient(config.AnalyzerBaseURL, 30*time.Second)
	if err != nil {
		log.Fatalf("Failed to create analyzer client: %v", err)
	}
	reconciler := analysis.NewReconciler(dbConn, client)

	check := func(ctx context.Context) (*db.Analysis, error) {
		return reconciler.CheckStatus(ctx, config.WorkspaceID)
	}

	p := poller.New(check, &poller.Config{
		Interval: config.Interval,
		OnUpdate: func(a *db.Analysis) {
			progress := 0
			if a.Progress != nil {
				progress = *a.Progress
			}
			log.Printf("status=%s progress=%d%% step=%s message=%q", a.Status, progress, a.CurrentStep, a.Message)
			if a.Completed() {
				log.Printf("Result document: %s", string(a.Result))
			}
		},
		OnError: func(err error) {
			log.Printf("Polling stopped: %v", err)
		},
	})

	log.Printf("Polling workspace %s every %s...", config.WorkspaceID, config.Interval)
	if err := p.Start(); err != nil {
		log.Fatalf("Failed to start poller: %v", err)
	}
	<-p.Done()
}
