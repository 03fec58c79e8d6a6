// Package server provides the HTTP REST API for the insight engine.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nextraction/insight-engine/internal/db"
	"github.com/nextraction/insight-engine/internal/pipeline"
	"github.com/nextraction/insight-engine/internal/tasks"
)

// AnalysisRunner executes one analysis pipeline run.
type AnalysisRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Results, error)
}

// ProjectCreator inserts the pending project row before a run starts.
type ProjectCreator interface {
	CreateProject(ctx context.Context, p db.NewProject) error
}

// Config holds server configuration
type Config struct {
	Port      int
	JWTSecret string
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	registry   *tasks.Registry
	runner     AnalysisRunner
	projects   ProjectCreator
	validate   *validator.Validate
	jwtSecret  string
}

// New creates a new server instance
func New(cfg Config, registry *tasks.Registry, runner AnalysisRunner, projects ProjectCreator) *Server {
	s := &Server{
		registry:  registry,
		runner:    runner,
		projects:  projects,
		validate:  validator.New(),
		jwtSecret: cfg.JWTSecret,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /start_analysis", s.requireAuth(s.handleStartAnalysis))
	mux.HandleFunc("GET /tasks/{id}/status", s.requireAuth(s.handleTaskStatus))
	mux.HandleFunc("GET /tasks/{id}/events", s.requireAuth(s.handleTaskEvents))
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.withLogging(s.withCORS(mux)),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: event streams stay open for the whole run
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start begins listening for requests
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}
