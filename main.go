package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repolens/workspace-api/internal/analysis"
	"github.com/repolens/workspace-api/internal/analyzer"
	"github.com/repolens/workspace-api/internal/api"
	"github.com/repolens/workspace-api/internal/db"
	"github.com/repolens/workspace-api/internal/middleware"
)

// Config holds application configuration
type Config struct {
	Port            string
	AnalyzerBaseURL string
	AnalyzerTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewConfig creates a new configuration from environment variables
func NewConfig() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	analyzerBaseURL := os.Getenv("ANALYZER_BASE_URL")
	if analyzerBaseURL == "" {
		analyzerBaseURL = "http://localhost:8000"
	}

	return &Config{
		Port:            port,
		AnalyzerBaseURL: analyzerBaseURL,
		AnalyzerTimeout: 30 * time.Second,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func main() {
	// Initialize configuration
	config := NewConfig()

	// Initialize database
	log.Println("Initializing database...")
	dbConn, err := db.InitDB()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Database initialized successfully")

	// Initialize analyzer client and reconciler
	log.Printf("Using analyzer at %s", config.AnalyzerBaseURL)
	analyzerClient, err := analyzer.NewClient(config.AnalyzerBaseURL, config.AnalyzerTimeout)
	if err != nil {
		log.Fatalf("Failed to create analyzer client: %v", err)
	}
	reconciler := analysis.NewReconciler(dbConn, analyzerClient)

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Add middleware
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"service":   "workspace-api",
		})
	})

	// Authentication endpoint
	r.POST("/auth/login", api.LoginHandler(dbConn))

	// Protected routes
	authorized := r.Group("/")
	authorized.Use(middleware.JWTRequired())
	{
		authorized.POST("/workspaces", api.PostWorkspaceHandler(dbConn, reconciler))
		authorized.GET("/workspaces", api.ListWorkspacesHandler(dbConn))
		authorized.GET("/workspaces/:id", api.GetWorkspaceHandler(dbConn))
		authorized.GET("/workspaces/:id/status", api.WorkspaceStatusHandler(dbConn, reconciler))
		authorized.DELETE("/workspaces/:id", api.DeleteWorkspaceHandler(dbConn))
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on port %s", config.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create shutdown context
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	// Shutdown server gracefully
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
